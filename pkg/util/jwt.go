package util

import (
	"errors"
	"time"

	"EduServer/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid token 解析失败、签名不符或已过期
	ErrTokenInvalid = errors.New("token is invalid")
)

// Claims 访问令牌载荷
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager 负责签发与校验访问令牌
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager 创建令牌管理器
func NewJWTManager(cfg config.JWTConfig) *JWTManager {
	return &JWTManager{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// GenerateToken 签发令牌，jti 使用 uuid 便于追踪单次登录
func (m *JWTManager) GenerateToken(accountID, email, name, role string) (string, error) {
	now := m.now()
	claims := Claims{
		AccountID: accountID,
		Email:     email,
		Name:      name,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   accountID,
			ID:        NewUUID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 校验签名与过期时间
func (m *JWTManager) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.AccountID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
