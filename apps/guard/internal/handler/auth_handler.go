package handler

import (
	"EduServer/apps/guard/internal/dto"
	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/service"
	"EduServer/consts"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/result"

	"github.com/gin-gonic/gin"
)

// AuthHandler 注册、登录、退出
type AuthHandler struct {
	auth   service.AuthService
	device service.DeviceService
}

func NewAuthHandler(auth service.AuthService, device service.DeviceService) *AuthHandler {
	return &AuthHandler{auth: auth, device: device}
}

// SignUp POST /api/v1/public/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req dto.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 参数错误由客户端输入导致，属于正常业务流程，不记录日志
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	res, err := h.auth.SignUp(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		failWithError(c, ctx, "注册服务内部错误", err)
		return
	}
	result.Success(c, res)
}

// SignIn POST /api/v1/public/signin，之后客户端调用设备登记接口
func (h *AuthHandler) SignIn(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)

	var req dto.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		result.Fail(c, nil, consts.CodeParamError)
		return
	}

	res, err := h.auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		failWithError(c, ctx, "登录服务内部错误", err)
		return
	}
	result.Success(c, res)
}

// SignOut POST /api/v1/auth/signout，对调用方总是成功
func (h *AuthHandler) SignOut(c *gin.Context) {
	ctx := ctxmeta.FromGin(c)
	accountID, _ := middleware.GetAccountID(c)
	fingerprint, _ := middleware.GetFingerprint(c)

	if fingerprint != "" {
		h.device.SignOut(ctx, accountID, fingerprint)
	}
	h.auth.SignOut(ctx, accountID, fingerprint)
	result.Success(c, nil)
}
