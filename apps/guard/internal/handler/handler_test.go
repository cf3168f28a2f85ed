package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/service"
	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/logger"
	"EduServer/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var handlerOnce sync.Once

func initHandlerTest() {
	handlerOnce.Do(func() {
		gin.SetMode(gin.TestMode)
		logger.ReplaceGlobal(zap.NewNop())
	})
}

func testJWT() *util.JWTManager {
	cfg := config.DefaultJWTConfig()
	cfg.Secret = "handler-test-secret"
	return util.NewJWTManager(cfg)
}

func tokenFor(t *testing.T, jwt *util.JWTManager, accountID, role string) string {
	t.Helper()
	token, err := jwt.GenerateToken(accountID, accountID+"@example.com", "name-"+accountID, role)
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	Code    int32           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any, headers map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func newTestEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.ClientIPMiddleware())
	return r
}

// ==================== fakes ====================

type fakeAuthService struct {
	signUpFn  func(ctx context.Context, email, password, name string) (*service.AuthResult, error)
	signInFn  func(ctx context.Context, email, password string) (*service.AuthResult, error)
	signOutFn func(ctx context.Context, accountID, fingerprint string)
}

var _ service.AuthService = (*fakeAuthService)(nil)

func (f *fakeAuthService) SignUp(ctx context.Context, email, password, name string) (*service.AuthResult, error) {
	if f.signUpFn == nil {
		return &service.AuthResult{}, nil
	}
	return f.signUpFn(ctx, email, password, name)
}

func (f *fakeAuthService) SignIn(ctx context.Context, email, password string) (*service.AuthResult, error) {
	if f.signInFn == nil {
		return &service.AuthResult{}, nil
	}
	return f.signInFn(ctx, email, password)
}

func (f *fakeAuthService) SignOut(ctx context.Context, accountID, fingerprint string) {
	if f.signOutFn != nil {
		f.signOutFn(ctx, accountID, fingerprint)
	}
}

func (f *fakeAuthService) OnAuthStateChanged(service.AuthListener) func() { return func() {} }

type presenceCall struct {
	AccountID   string
	Fingerprint string
	Online      bool
}

type fakeDeviceService struct {
	loginFn    func(ctx context.Context, req *service.LoginDeviceRequest) (*service.LoginDeviceResult, error)
	signOutFn  func(ctx context.Context, accountID, fingerprint string)
	leaveFn    func(ctx context.Context, accountID, fingerprint string) error
	ackKickFn  func(ctx context.Context, accountID, fingerprint string) error
	clearFn    func(ctx context.Context, accountID string) (*time.Time, error)
	getStateFn func(ctx context.Context, accountID string) (*model.AccountSecurityState, error)
	listFn     func(ctx context.Context, accountID, current string) ([]model.DeviceView, error)

	mu       sync.Mutex
	presence []presenceCall
}

var _ service.DeviceService = (*fakeDeviceService)(nil)

func (f *fakeDeviceService) CheckAndHandleDeviceLogin(ctx context.Context, req *service.LoginDeviceRequest) (*service.LoginDeviceResult, error) {
	if f.loginFn == nil {
		return &service.LoginDeviceResult{}, nil
	}
	return f.loginFn(ctx, req)
}

func (f *fakeDeviceService) SignOut(ctx context.Context, accountID, fingerprint string) {
	if f.signOutFn != nil {
		f.signOutFn(ctx, accountID, fingerprint)
	}
}

func (f *fakeDeviceService) LeaveDevice(ctx context.Context, accountID, fingerprint string) error {
	if f.leaveFn == nil {
		return nil
	}
	return f.leaveFn(ctx, accountID, fingerprint)
}

func (f *fakeDeviceService) RemoveDevice(context.Context, string, string) error { return nil }

func (f *fakeDeviceService) AcknowledgeKick(ctx context.Context, accountID, fingerprint string) error {
	if f.ackKickFn == nil {
		return nil
	}
	return f.ackKickFn(ctx, accountID, fingerprint)
}

func (f *fakeDeviceService) ClearExpiredBan(ctx context.Context, accountID string) (*time.Time, error) {
	if f.clearFn == nil {
		return nil, nil
	}
	return f.clearFn(ctx, accountID)
}

func (f *fakeDeviceService) GetState(ctx context.Context, accountID string) (*model.AccountSecurityState, error) {
	if f.getStateFn == nil {
		return &model.AccountSecurityState{AccountID: accountID}, nil
	}
	return f.getStateFn(ctx, accountID)
}

func (f *fakeDeviceService) ListDevices(ctx context.Context, accountID, current string) ([]model.DeviceView, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, accountID, current)
}

func (f *fakeDeviceService) MarkPresence(_ context.Context, accountID, fingerprint string, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, presenceCall{AccountID: accountID, Fingerprint: fingerprint, Online: online})
}

func (f *fakeDeviceService) presenceCalls() []presenceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presenceCall(nil), f.presence...)
}

type fakeAdminService struct {
	banFn        func(ctx context.Context, accountID, reason string) (*model.BanEvent, error)
	unbanFn      func(ctx context.Context, accountID string) error
	kickFn       func(ctx context.Context, accountID, fingerprint string) error
	massLogoutFn func(ctx context.Context, ids []string) (*service.BatchResult, error)
	clearFn      func(ctx context.Context, ids []string) (*service.BatchResult, error)
}

var _ service.AdminService = (*fakeAdminService)(nil)

func (f *fakeAdminService) BanUser(ctx context.Context, accountID, reason string) (*model.BanEvent, error) {
	if f.banFn == nil {
		return &model.BanEvent{}, nil
	}
	return f.banFn(ctx, accountID, reason)
}

func (f *fakeAdminService) UnbanUser(ctx context.Context, accountID string) error {
	if f.unbanFn == nil {
		return nil
	}
	return f.unbanFn(ctx, accountID)
}

func (f *fakeAdminService) KickDevice(ctx context.Context, accountID, fingerprint string) error {
	if f.kickFn == nil {
		return nil
	}
	return f.kickFn(ctx, accountID, fingerprint)
}

func (f *fakeAdminService) MassLogout(ctx context.Context, ids []string) (*service.BatchResult, error) {
	if f.massLogoutFn == nil {
		return &service.BatchResult{}, nil
	}
	return f.massLogoutFn(ctx, ids)
}

func (f *fakeAdminService) ClearForceLogoutFlags(ctx context.Context, ids []string) (*service.BatchResult, error) {
	if f.clearFn == nil {
		return &service.BatchResult{}, nil
	}
	return f.clearFn(ctx, ids)
}

func (f *fakeAdminService) GetSecurityState(_ context.Context, accountID string) (*model.AccountSecurityState, error) {
	return &model.AccountSecurityState{AccountID: accountID}, nil
}

func (f *fakeAdminService) ListDevices(context.Context, string) ([]model.DeviceView, error) {
	return nil, nil
}
