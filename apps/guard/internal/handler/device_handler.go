package handler

import (
	"strings"
	"time"

	"EduServer/apps/guard/internal/dto"
	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/realtime"
	"EduServer/apps/guard/internal/service"
	"EduServer/consts"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/result"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
)

const headerSessionID = "X-Session-ID"

// DeviceHandler 设备登记、设备列表、安全状态、离线信标
type DeviceHandler struct {
	device service.DeviceService
	cache  *realtime.BanCache
	jwt    *util.JWTManager
	now    func() time.Time
}

func NewDeviceHandler(device service.DeviceService, cache *realtime.BanCache, jwt *util.JWTManager) *DeviceHandler {
	return &DeviceHandler{device: device, cache: cache, jwt: jwt, now: time.Now}
}

// Login POST /api/v1/auth/device/login
// 账号被封禁时同样返回成功，由客户端根据 view 展示封禁遮罩
func (h *DeviceHandler) Login(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req dto.DeviceLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	accountID, _ := middleware.GetAccountID(c)
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(c.GetHeader(headerSessionID))
	}

	res, err := h.device.CheckAndHandleDeviceLogin(ctx, &service.LoginDeviceRequest{
		AccountID: accountID,
		Email:     middleware.GetEmail(c),
		Name:      middleware.GetName(c),
		Role:      middleware.GetRole(c),
		Env:       req.Environment,
		ClientIP:  middleware.ClientIPFromGinContext(c),
		SessionID: sessionID,
	})
	if err != nil {
		failWithError(c, ctx, "设备登记失败", err)
		return
	}
	h.cache.Set(accountID, res.State)
	result.Success(c, dto.NewDeviceLoginResponse(res))
}

// Leave POST /api/v1/auth/device/leave
func (h *DeviceHandler) Leave(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req dto.LeaveDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	accountID, _ := middleware.GetAccountID(c)
	fingerprint := strings.TrimSpace(req.Fingerprint)
	if fingerprint == "" {
		fingerprint, _ = middleware.GetFingerprint(c)
	}
	if fingerprint == "" {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	if err := h.device.LeaveDevice(ctx, accountID, fingerprint); err != nil {
		failWithError(c, ctx, "退出设备失败", err)
		return
	}
	h.cache.Purge(accountID)
	result.Success(c, nil)
}

// List GET /api/v1/auth/devices
func (h *DeviceHandler) List(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	accountID, _ := middleware.GetAccountID(c)
	fingerprint, _ := middleware.GetFingerprint(c)

	devices, err := h.device.ListDevices(ctx, accountID, fingerprint)
	if err != nil {
		failWithError(c, ctx, "获取设备列表失败", err)
		return
	}
	result.Success(c, dto.DeviceListResponse{Devices: devices})
}

// Status GET /api/v1/auth/security/status，优先读进程内缓存
func (h *DeviceHandler) Status(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	accountID, _ := middleware.GetAccountID(c)
	fingerprint, _ := middleware.GetFingerprint(c)

	now := h.now()
	if view, ok := h.cache.View(accountID, fingerprint, now); ok {
		result.Success(c, view)
		return
	}

	state, err := h.device.GetState(ctx, accountID)
	if err != nil {
		failWithError(c, ctx, "获取安全状态失败", err)
		return
	}
	h.cache.Set(accountID, state)
	result.Success(c, service.BuildView(state, fingerprint, now))
}

// OfflineBeacon POST /api/v1/beacon/offline
// 页面卸载时发送，令牌无效也返回成功，避免客户端重试
func (h *DeviceHandler) OfflineBeacon(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req dto.OfflineBeaconRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	claims, err := h.jwt.ParseToken(req.Token)
	if err != nil {
		result.Success(c, nil)
		return
	}
	h.device.MarkPresence(ctxmeta.WithAccountID(ctx, claims.AccountID), claims.AccountID, req.Fingerprint, false)
	result.Success(c, nil)
}
