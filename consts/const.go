package consts

// 通用错误码
const (
	CodeSuccess = 0 // 成功
)

// 客户端错误 (1xxxx)
const (
	CodeParamError       = 10001 // 参数验证失败
	CodeBodyError        = 10002 // 请求体格式错误
	CodeResourceNotFound = 10003 // 资源不存在
	CodeTooManyRequests  = 10005 // 请求过于频繁
)

// 认证错误 (2xxxx)
const (
	CodeUnauthorized   = 20001 // 未认证
	CodeInvalidToken   = 20002 // Token 无效
	CodeTokenExpired   = 20003 // Token 已过期
	CodePermissionDeny = 20004 // 权限不足
)

// 设备与封禁错误 (21xxx)
const (
	CodeAccountBanned          = 21001 // 账号临时封禁中
	CodeAccountPermanentBanned = 21002 // 账号永久封禁
	CodeDeviceKicked           = 21003 // 设备已被管理员踢出
	CodeDeviceNotFound         = 21004 // 设备不存在
	CodeManualLogoutRequired   = 21005 // 自动登出失败，需要手动退出其他设备
	CodeAdminExempt            = 21006 // 管理员账号不参与封禁
)

// 账号模块错误 (11xxx)
const (
	CodeUserNotFound     = 11001 // 用户不存在
	CodeUserAlreadyExist = 11002 // 用户已存在
	CodePasswordError    = 11003 // 密码错误
)

// 服务端错误 (3xxxx)
const (
	CodeInternalError      = 30001 // 服务器内部错误
	CodeServiceUnavailable = 30002 // 服务暂不可用
)

// 错误消息映射
var CodeMessage = map[int32]string{
	CodeSuccess: "success",

	CodeParamError:       "参数验证失败",
	CodeBodyError:        "请求体格式错误",
	CodeResourceNotFound: "资源不存在",
	CodeTooManyRequests:  "请求过于频繁",

	CodeUnauthorized:   "未认证",
	CodeInvalidToken:   "Token 无效",
	CodeTokenExpired:   "Token 已过期",
	CodePermissionDeny: "权限不足",

	CodeAccountBanned:          "账号因多设备登录被临时封禁",
	CodeAccountPermanentBanned: "账号已被永久封禁",
	CodeDeviceKicked:           "该设备已被踢出",
	CodeDeviceNotFound:         "设备不存在",
	CodeManualLogoutRequired:   "自动登出失败，请手动退出其他设备后重试",
	CodeAdminExempt:            "管理员账号不参与设备限制",

	CodeUserNotFound:     "用户不存在",
	CodeUserAlreadyExist: "用户已存在",
	CodePasswordError:    "密码错误",

	CodeInternalError:      "服务器内部错误",
	CodeServiceUnavailable: "服务暂不可用",
}

// GetMessage 根据错误码获取错误消息
func GetMessage(code int32) string {
	if msg, ok := CodeMessage[code]; ok {
		return msg
	}
	return "未知错误"
}
