package identity

import (
	"context"
	"errors"
	"time"

	"EduServer/model"
	"EduServer/pkg/logger"

	"github.com/google/uuid"
)

// Resolver 由客户端环境和请求 IP 生成设备记录
type Resolver struct {
	geo GeoLocator
	now func() time.Time
}

// NewResolver geo 为 nil 时不做定位
func NewResolver(geo GeoLocator) *Resolver {
	return &Resolver{geo: geo, now: time.Now}
}

// Resolve 永远返回设备记录，定位失败只会让 Geolocation 为空，不阻塞登录
func (r *Resolver) Resolve(ctx context.Context, env ClientEnvironment, clientIP, sessionID string) *model.DeviceRecord {
	now := r.now()
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	rec := &model.DeviceRecord{
		ID:          uuid.NewString(),
		Fingerprint: Fingerprint(env),
		SessionID:   sessionID,
		Platform:    PlatformLabel(env.UserAgent),
		UserAgent:   env.UserAgent,
		Screen:      ScreenSignature(env),
		Language:    env.Language,
		IPAddress:   clientIP,
		FirstSeen:   now,
		LastSeen:    now,
	}
	if rec.IPAddress == "" {
		rec.IPAddress = model.UnknownIP
		return rec
	}
	if r.geo == nil {
		return rec
	}

	geo, err := r.geo.Lookup(ctx, clientIP)
	if err != nil {
		if !errors.Is(err, ErrNotPublicIP) {
			logger.Warn(ctx, "IP 定位失败，设备记录不带地理信息",
				logger.String("ip", clientIP),
				logger.ErrorField("error", err),
			)
		}
		return rec
	}
	rec.Geolocation = geo
	return rec
}
