package service

import (
	"fmt"
	"time"

	"EduServer/model"
)

// BanInfo 封禁遮罩需要的信息
type BanInfo struct {
	Status           string     `json:"status"`
	Reason           string     `json:"reason,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	RemainingSeconds int64      `json:"remainingSeconds,omitempty"`
	BanCount         int        `json:"banCount"`
	Permanent        bool       `json:"permanent"`
}

// DeviceWarning 多设备提示
type DeviceWarning struct {
	DeviceCount  int                  `json:"deviceCount"`
	OtherDevices []model.DeviceRecord `json:"otherDevices"`
	Message      string               `json:"message"`
}

// SecurityView 客户端订阅收到的视图
type SecurityView struct {
	Status        string         `json:"status"`
	BanInfo       *BanInfo       `json:"banInfo"`
	DeviceWarning *DeviceWarning `json:"deviceWarning"`
}

// BuildView 从账号状态计算视图，管理员永远没有封禁和设备提示
func BuildView(state *model.AccountSecurityState, fingerprint string, now time.Time) SecurityView {
	status := state.Status(now)
	v := SecurityView{Status: status.String()}
	if state == nil || state.IsAdmin() {
		v.Status = model.BanStatusActive.String()
		return v
	}

	switch status {
	case model.BanStatusTemporary:
		v.BanInfo = &BanInfo{
			Status:           status.String(),
			Reason:           state.BanReason,
			ExpiresAt:        state.BanExpiresAt,
			RemainingSeconds: int64(state.BanExpiresAt.Sub(now).Seconds()),
			BanCount:         state.BanCount,
		}
	case model.BanStatusPermanent:
		v.BanInfo = &BanInfo{
			Status:    status.String(),
			Reason:    state.BanReason,
			BanCount:  state.BanCount,
			Permanent: true,
		}
	}

	if len(state.Devices) > 1 {
		others := make([]model.DeviceRecord, 0, len(state.Devices)-1)
		for _, d := range state.Devices {
			if d.Fingerprint != fingerprint {
				others = append(others, d)
			}
		}
		v.DeviceWarning = &DeviceWarning{
			DeviceCount:  len(state.Devices),
			OtherDevices: others,
			Message:      fmt.Sprintf("该账号已在 %d 台设备上登录，请退出其他设备", len(state.Devices)),
		}
	}
	return v
}
