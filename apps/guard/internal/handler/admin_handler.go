package handler

import (
	"EduServer/apps/guard/internal/dto"
	"EduServer/apps/guard/internal/service"
	"EduServer/consts"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/result"

	"github.com/gin-gonic/gin"
)

// AdminHandler 管理员操作，路由层已挂 AdminOnly，service 层会再次校验
type AdminHandler struct {
	admin service.AdminService
}

func NewAdminHandler(admin service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Ban POST /api/v1/admin/ban
func (h *AdminHandler) Ban(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	var req dto.BanUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	ev, err := h.admin.BanUser(ctx, req.AccountID, req.Reason)
	if err != nil {
		failWithError(c, ctx, "封禁账号失败", err)
		return
	}
	result.Success(c, ev)
}

// Unban POST /api/v1/admin/unban
func (h *AdminHandler) Unban(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	var req dto.AccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	if err := h.admin.UnbanUser(ctx, req.AccountID); err != nil {
		failWithError(c, ctx, "解封账号失败", err)
		return
	}
	result.Success(c, nil)
}

// Kick POST /api/v1/admin/kick
func (h *AdminHandler) Kick(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	var req dto.KickDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	if err := h.admin.KickDevice(ctx, req.AccountID, req.Fingerprint); err != nil {
		failWithError(c, ctx, "踢出设备失败", err)
		return
	}
	result.Success(c, nil)
}

// MassLogout POST /api/v1/admin/mass-logout
func (h *AdminHandler) MassLogout(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	var req dto.BatchAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	res, err := h.admin.MassLogout(ctx, req.AccountIDs)
	if err != nil {
		failWithError(c, ctx, "批量下线失败", err)
		return
	}
	result.Success(c, res)
}

// ClearForceLogout POST /api/v1/admin/clear-force-logout
func (h *AdminHandler) ClearForceLogout(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	var req dto.BatchAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}
	res, err := h.admin.ClearForceLogoutFlags(ctx, req.AccountIDs)
	if err != nil {
		failWithError(c, ctx, "清除强制下线标记失败", err)
		return
	}
	result.Success(c, res)
}

// SecurityState GET /api/v1/admin/accounts/:id/security
func (h *AdminHandler) SecurityState(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	state, err := h.admin.GetSecurityState(ctx, c.Param("id"))
	if err != nil {
		failWithError(c, ctx, "获取账号安全状态失败", err)
		return
	}
	result.Success(c, state)
}

// Devices GET /api/v1/admin/accounts/:id/devices
func (h *AdminHandler) Devices(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	devices, err := h.admin.ListDevices(ctx, c.Param("id"))
	if err != nil {
		failWithError(c, ctx, "获取设备列表失败", err)
		return
	}
	result.Success(c, dto.DeviceListResponse{Devices: devices})
}
