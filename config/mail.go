package config

// MailConfig 管理员通知邮件配置（Host 为空时不发送）
type MailConfig struct {
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
	From     string   `json:"from" yaml:"from"`
	To       []string `json:"to" yaml:"to"`
}

// DefaultMailConfig 默认关闭邮件通知
func DefaultMailConfig() MailConfig {
	return MailConfig{
		Port: 465,
	}
}
