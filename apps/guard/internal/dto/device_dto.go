package dto

import (
	"time"

	"EduServer/apps/guard/internal/identity"
	"EduServer/apps/guard/internal/service"
	"EduServer/model"
)

// DeviceLoginRequest 登录后上报设备环境
type DeviceLoginRequest struct {
	Environment identity.ClientEnvironment `json:"environment"`
	SessionID   string                     `json:"sessionId"` // 客户端本地保存的会话 ID，首次为空
}

// DeviceLoginResponse 设备登记结果。
// 客户端之后的请求通过 X-Device-Fingerprint 回传 Fingerprint，建立 /ws 时带上 LoginAt。
type DeviceLoginResponse struct {
	Fingerprint string               `json:"fingerprint"`
	SessionID   string               `json:"sessionId"`
	Outcome     string               `json:"outcome"`
	Device      *model.DeviceRecord  `json:"device"`
	View        service.SecurityView `json:"view"`
	LoginAt     int64                `json:"loginAt"` // 毫秒
}

// LeaveDeviceRequest 多设备提示中选择退出某台设备，为空表示当前设备
type LeaveDeviceRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// DeviceListResponse 设备列表
type DeviceListResponse struct {
	Devices []model.DeviceView `json:"devices"`
}

// OfflineBeaconRequest 页面关闭时的 sendBeacon 请求，无法携带请求头，令牌放在 body
type OfflineBeaconRequest struct {
	Token       string `json:"token" binding:"required"`
	Fingerprint string `json:"fingerprint" binding:"required"`
}

// NewDeviceLoginResponse 组装登记结果
func NewDeviceLoginResponse(res *service.LoginDeviceResult) *DeviceLoginResponse {
	resp := &DeviceLoginResponse{
		Outcome: res.Outcome,
		Device:  res.Device,
		View:    res.View,
		LoginAt: res.LoginAt.UnixMilli(),
	}
	if res.Device != nil {
		resp.Fingerprint = res.Device.Fingerprint
		resp.SessionID = res.Device.SessionID
	}
	return resp
}

// MillisToTime 0 或负数返回零值
func MillisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
