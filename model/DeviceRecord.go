package model

import "time"

// GeoLocation IP 定位结果（尽力而为，可能为空）
type GeoLocation struct {
	Country  string  `json:"country"`
	Region   string  `json:"region"`
	City     string  `json:"city"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Timezone string  `json:"timezone"`
}

// DeviceRecord 账号下一个被识别的设备
// 以 Fingerprint 为唯一标识：同一指纹重复登录只更新 LastSeen/IPAddress。
// 不同物理设备指纹碰撞是已知限制。
type DeviceRecord struct {
	ID          string       `json:"id"`
	Fingerprint string       `json:"fingerprint"`
	SessionID   string       `json:"sessionId,omitempty"` // 每次安装生成的会话 ID
	Platform    string       `json:"platform"`            // 由 UserAgent 推导（Windows/macOS/iOS/Android/Linux）
	UserAgent   string       `json:"userAgent,omitempty"`
	Screen      string       `json:"screen"` // 如 1920x1080@24
	Language    string       `json:"language"`
	IPAddress   string       `json:"ipAddress"`
	Geolocation *GeoLocation `json:"geolocation"`
	FirstSeen   time.Time    `json:"firstSeen"`
	LastSeen    time.Time    `json:"lastSeen"`
}

// UnknownIP 无法获取客户端 IP 时的占位值
const UnknownIP = "unknown"

// DevicePresence 设备在线状态（独立于账号文档存储，避免心跳触发全账号通知）
type DevicePresence struct {
	Online   bool  `json:"online"`
	ActiveAt int64 `json:"activeAt"` // unix 秒
}

// DeviceView 返回给客户端的设备信息（附带在线状态）
type DeviceView struct {
	DeviceRecord
	Online   bool  `json:"online"`
	ActiveAt int64 `json:"activeAt,omitempty"`
	Current  bool  `json:"current"`
}
