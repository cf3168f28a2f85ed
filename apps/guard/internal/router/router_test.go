package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"EduServer/apps/guard/internal/enforce"
	"EduServer/apps/guard/internal/handler"
	"EduServer/apps/guard/internal/identity"
	"EduServer/apps/guard/internal/manager"
	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/realtime"
	"EduServer/apps/guard/internal/repository"
	"EduServer/apps/guard/internal/service"
	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/logger"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var routerOnce sync.Once

func newTestRouter(t *testing.T) (*gin.Engine, *util.JWTManager) {
	t.Helper()
	routerOnce.Do(func() {
		gin.SetMode(gin.TestMode)
		logger.ReplaceGlobal(zap.NewNop())
	})

	jwtCfg := config.DefaultJWTConfig()
	jwtCfg.Secret = "router-test-secret"
	jwt := util.NewJWTManager(jwtCfg)

	guardCfg := config.DefaultGuardConfig()
	store := repository.NewMemoryDocumentStore()
	presence := repository.NewMemoryPresenceRepository()
	engine := enforce.NewEngine(enforce.PolicyFromConfig(guardCfg), func() int64 { return 1 })

	deviceSvc := service.NewDeviceService(store, presence, identity.NewResolver(nil), engine, nil, guardCfg)
	adminSvc := service.NewAdminService(store, presence, deviceSvc, engine, service.NewAuditSink(nil, nil), nil, guardCfg)
	authSvc := service.NewAuthService(nil, store, jwt)
	cache := realtime.NewBanCache(16, time.Minute)

	r := InitRouter(Handlers{
		Auth:   handler.NewAuthHandler(authSvc, deviceSvc),
		Device: handler.NewDeviceHandler(deviceSvc, cache, jwt),
		Admin:  handler.NewAdminHandler(adminSvc),
		WS:     handler.NewWSHandler(manager.NewConnectionManager(), jwt, deviceSvc, store, cache, guardCfg.GracePeriod),
	}, Options{
		JWT:          jwt,
		LoginLimiter: middleware.NewRateLimiter(nil, 100, 100),
	})
	return r, jwt
}

func TestRouter_Health(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AuthGroupRequiresToken(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/devices", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AdminGroupRejectsStudent(t *testing.T) {
	r, jwt := newTestRouter(t)
	token, err := jwt.GenerateToken("student-1", "student-1@example.com", "", model.RoleStudent)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/ban", strings.NewReader(`{"accountId":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
