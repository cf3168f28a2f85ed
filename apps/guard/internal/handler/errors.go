package handler

import (
	"context"
	"errors"

	"EduServer/apps/guard/internal/service"
	"EduServer/consts"
	"EduServer/pkg/logger"
	"EduServer/pkg/result"

	"github.com/gin-gonic/gin"
)

// errorCode 业务错误映射为错误码，未知错误返回 CodeInternalError
func errorCode(err error) int32 {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return consts.CodeParamError
	case errors.Is(err, service.ErrPermissionDenied):
		return consts.CodePermissionDeny
	case errors.Is(err, service.ErrAccountNotFound):
		return consts.CodeUserNotFound
	case errors.Is(err, service.ErrDeviceNotFound):
		return consts.CodeDeviceNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		return consts.CodePasswordError
	case errors.Is(err, service.ErrEmailTaken):
		return consts.CodeUserAlreadyExist
	case errors.Is(err, service.ErrAdminExempt):
		return consts.CodeAdminExempt
	case errors.Is(err, service.ErrAlreadyPermanent):
		return consts.CodeAccountPermanentBanned
	case errors.Is(err, service.ErrManualLogoutRequired):
		return consts.CodeManualLogoutRequired
	case errors.Is(err, service.ErrStoreUnavailable):
		return consts.CodeServiceUnavailable
	default:
		return consts.CodeInternalError
	}
}

// failWithError 业务错误直接返回错误码，服务端错误额外记录日志
func failWithError(c *gin.Context, ctx context.Context, msg string, err error) {
	code := errorCode(err)
	if code == consts.CodeInternalError || code == consts.CodeServiceUnavailable {
		logger.Error(ctx, msg, logger.ErrorField("error", err))
	}
	result.Fail(c, nil, code)
}
