package identity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// fingerprintLen 指纹长度（base36 截断）
const fingerprintLen = 11

// ClientEnvironment 客户端上报的环境属性，用于计算设备指纹
type ClientEnvironment struct {
	UserAgent           string `json:"userAgent"`
	Language            string `json:"language"`
	ColorDepth          int    `json:"colorDepth"`
	ScreenWidth         int    `json:"screenWidth"`
	ScreenHeight        int    `json:"screenHeight"`
	TimezoneOffset      int    `json:"timezoneOffset"` // 分钟
	Platform            string `json:"platform"`
	HardwareConcurrency int    `json:"hardwareConcurrency"`
}

// Fingerprint 非加密哈希，同一环境得到同一指纹。
// 不同物理设备可能碰撞，属于已知限制。
func Fingerprint(env ClientEnvironment) string {
	raw := strings.Join([]string{
		env.UserAgent,
		env.Language,
		strconv.Itoa(env.ColorDepth),
		fmt.Sprintf("%dx%d", env.ScreenWidth, env.ScreenHeight),
		strconv.Itoa(env.TimezoneOffset),
		env.Platform,
		strconv.Itoa(env.HardwareConcurrency),
	}, "|")
	fp := strconv.FormatUint(xxhash.Sum64String(raw), 36)
	if len(fp) > fingerprintLen {
		fp = fp[:fingerprintLen]
	}
	return fp
}

// ScreenSignature 如 1920x1080@24
func ScreenSignature(env ClientEnvironment) string {
	return fmt.Sprintf("%dx%d@%d", env.ScreenWidth, env.ScreenHeight, env.ColorDepth)
}

// PlatformLabel 由 UserAgent 推导平台名
func PlatformLabel(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "cros"):
		return "ChromeOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

// NewSessionID 每次安装生成一次，客户端保存后随登录请求带回
func NewSessionID() string {
	return uuid.NewString()
}
