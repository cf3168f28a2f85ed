package config

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level            string   `json:"level" yaml:"level"`                       // debug/info/warn/error
	Encoding         string   `json:"encoding" yaml:"encoding"`                 // json/console
	EnableColor      bool     `json:"enableColor" yaml:"enableColor"`           // console 模式下是否彩色输出
	Development      bool     `json:"development" yaml:"development"`           // 开发模式（error 级别带堆栈）
	OutputPaths      []string `json:"outputPaths" yaml:"outputPaths"`           // 普通日志输出路径
	ErrorOutputPaths []string `json:"errorOutputPaths" yaml:"errorOutputPaths"` // zap 内部错误输出路径
}

// DefaultLoggerConfig 返回默认日志配置（容器场景输出到 stdout/stderr）
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:            "info",
		Encoding:         "json",
		EnableColor:      false,
		Development:      false,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
