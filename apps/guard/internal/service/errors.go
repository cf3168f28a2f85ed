package service

import (
	"errors"

	"EduServer/apps/guard/internal/enforce"
)

var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAccountNotFound      = errors.New("account not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailTaken           = errors.New("email already registered")
	ErrStoreUnavailable     = errors.New("security store unavailable")
	ErrAdminExempt          = enforce.ErrAdminExempt
	ErrAlreadyPermanent     = enforce.ErrAlreadyPermanent
	// ErrManualLogoutRequired 设备移除重试耗尽，需要用户手动退出
	ErrManualLogoutRequired = errors.New("automatic logout failed, manual logout required")
)
