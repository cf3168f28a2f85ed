package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var middlewareOnce sync.Once

func initMiddlewareTest() {
	middlewareOnce.Do(func() {
		gin.SetMode(gin.TestMode)
		logger.ReplaceGlobal(zap.NewNop())
	})
}

func testJWT() *util.JWTManager {
	cfg := config.DefaultJWTConfig()
	cfg.Secret = "test-secret"
	return util.NewJWTManager(cfg)
}

func TestJWTAuthMiddleware(t *testing.T) {
	initMiddlewareTest()
	jwt := testJWT()

	r := gin.New()
	r.GET("/me", JWTAuthMiddleware(jwt), func(c *gin.Context) {
		id, _ := GetAccountID(c)
		fp, _ := GetFingerprint(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "fp": fp, "role": GetRole(c), "email": GetEmail(c), "name": GetName(c)})
	})

	t.Run("缺少认证头", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("格式错误", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("无效 token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("通过", func(t *testing.T) {
		token, err := jwt.GenerateToken("acc-1", "a@example.com", "小明", model.RoleStudent)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(HeaderDeviceFingerprint, "fp-a")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"acc-1","fp":"fp-a","role":"student","email":"a@example.com","name":"小明"}`, w.Body.String())
	})
}

func TestAdminOnly(t *testing.T) {
	initMiddlewareTest()
	handler := func(role string) *httptest.ResponseRecorder {
		r := gin.New()
		r.GET("/admin", func(c *gin.Context) {
			c.Set(ctxmeta.GinRole, role)
			c.Next()
		}, AdminOnly(), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		return w
	}

	assert.Equal(t, http.StatusForbidden, handler(model.RoleStudent).Code)
	assert.Equal(t, http.StatusNoContent, handler(model.RoleAdmin).Code)
}

func TestGetClientIP(t *testing.T) {
	initMiddlewareTest()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "X-Real-IP 优先", headers: map[string]string{"X-Real-IP": "8.8.8.8", "X-Forwarded-For": "1.1.1.1"}, remote: "10.0.0.1:1234", want: "8.8.8.8"},
		{name: "XFF 取第一个", headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 10.0.0.2"}, remote: "10.0.0.1:1234", want: "1.1.1.1"},
		{name: "非法头回退到连接地址", headers: map[string]string{"X-Real-IP": "garbage"}, remote: "10.0.0.1:1234", want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(c))
		})
	}
}

func TestRateLimiter_LocalFallback(t *testing.T) {
	initMiddlewareTest()
	limiter := NewRateLimiter(nil, 1, 2)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", LoginRateLimitMiddleware(limiter), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.Header.Set("X-Real-IP", ip)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, do("8.8.8.8"))
	assert.Equal(t, http.StatusNoContent, do("8.8.8.8"))
	assert.Equal(t, http.StatusTooManyRequests, do("8.8.8.8"))
	// 其他 IP 独立计数
	assert.Equal(t, http.StatusNoContent, do("1.1.1.1"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, do("8.8.8.8"))
}
