package enforce

import (
	"time"

	"EduServer/model"
)

// RegistryOutcome 设备登记结果
type RegistryOutcome int

const (
	OutcomeFirstDevice         RegistryOutcome = iota + 1 // 设备列表为空
	OutcomeKnownDevice                                    // 指纹已登记，仅刷新 lastSeen/ipAddress
	OutcomeNewAdditionalDevice                            // 已有设备且指纹未知，唯一可能触发封禁的分支
)

func (o RegistryOutcome) String() string {
	switch o {
	case OutcomeFirstDevice:
		return "first_device"
	case OutcomeKnownDevice:
		return "known_device"
	case OutcomeNewAdditionalDevice:
		return "new_additional_device"
	default:
		return "unknown"
	}
}

// RegisterDevice 把 incoming 登记到设备列表，返回结果和新的设备列表。
// 不修改传入的切片。管理员账号新增设备时顺带清理超过 pruneAge 未活跃的记录，
// 普通账号不清理：陈旧记录是后续违规判定的依据。
func RegisterDevice(devices []model.DeviceRecord, incoming model.DeviceRecord, isAdmin bool, now time.Time, pruneAge time.Duration) (RegistryOutcome, []model.DeviceRecord) {
	for i := range devices {
		if devices[i].Fingerprint != incoming.Fingerprint {
			continue
		}
		out := append([]model.DeviceRecord(nil), devices...)
		d := &out[i]
		d.LastSeen = now
		d.IPAddress = incoming.IPAddress
		if incoming.Geolocation != nil {
			d.Geolocation = incoming.Geolocation
		}
		if incoming.SessionID != "" {
			d.SessionID = incoming.SessionID
		}
		return OutcomeKnownDevice, out
	}

	rec := incoming
	rec.FirstSeen = now
	rec.LastSeen = now

	if len(devices) == 0 {
		return OutcomeFirstDevice, []model.DeviceRecord{rec}
	}

	out := make([]model.DeviceRecord, 0, len(devices)+1)
	for _, d := range devices {
		if isAdmin && pruneAge > 0 && now.Sub(d.LastSeen) > pruneAge {
			continue
		}
		out = append(out, d)
	}
	out = append(out, rec)
	return OutcomeNewAdditionalDevice, out
}

// withoutDevice 返回去掉指定指纹后的设备列表
func withoutDevice(devices []model.DeviceRecord, fingerprint string) []model.DeviceRecord {
	out := make([]model.DeviceRecord, 0, len(devices))
	for _, d := range devices {
		if d.Fingerprint != fingerprint {
			out = append(out, d)
		}
	}
	return out
}

func withoutString(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
