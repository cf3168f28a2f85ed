package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"EduServer/apps/guard/internal/enforce"
	"EduServer/apps/guard/internal/identity"
	"EduServer/apps/guard/internal/repository"
	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/ctxmeta"
	"EduServer/pkg/logger"

	"go.uber.org/zap"
)

var serviceLoggerOnce sync.Once

func initServiceTestLogger() {
	serviceLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testGuardConfig() config.GuardConfig {
	cfg := config.DefaultGuardConfig()
	cfg.CleanupRetryBackoff = time.Millisecond
	cfg.MassLogoutBatchSize = 2
	return cfg
}

func adminContext() context.Context {
	ctx := ctxmeta.WithAccountID(context.Background(), "admin-1")
	return ctxmeta.WithRole(ctx, model.RoleAdmin)
}

// fakeResolver 指纹直接取 Env.Platform，便于构造不同设备
type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, env identity.ClientEnvironment, clientIP, sessionID string) *model.DeviceRecord {
	return &model.DeviceRecord{
		ID:          "dev-" + env.Platform,
		Fingerprint: env.Platform,
		SessionID:   sessionID,
		Platform:    "Windows",
		IPAddress:   clientIP,
	}
}

// flakyStore 在内存存储外包一层，可按账号注入写失败
type flakyStore struct {
	*repository.MemoryDocumentStore
	mu       sync.Mutex
	setFn    func(accountID string) error
	setCalls int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryDocumentStore: repository.NewMemoryDocumentStore()}
}

func (f *flakyStore) SetDocument(ctx context.Context, accountID string, fields map[string]any, merge bool) error {
	f.mu.Lock()
	f.setCalls++
	fn := f.setFn
	f.mu.Unlock()
	if fn != nil {
		if err := fn(accountID); err != nil {
			return err
		}
	}
	return f.MemoryDocumentStore.SetDocument(ctx, accountID, fields, merge)
}

func (f *flakyStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls
}

type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *recordingAudit) Record(_ context.Context, ev AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

type testEnv struct {
	store  *flakyStore
	device *deviceServiceImpl
	admin  *adminServiceImpl
	audit  *recordingAudit
	clock  *time.Time
}

func newTestEnv() *testEnv {
	initServiceTestLogger()
	cfg := testGuardConfig()
	store := newFlakyStore()
	presence := repository.NewMemoryPresenceRepository()
	engine := enforce.NewEngine(enforce.PolicyFromConfig(cfg), nil)
	audit := &recordingAudit{}
	now := testNow
	clock := &now

	dev := NewDeviceService(store, presence, fakeResolver{}, engine, nil, cfg).(*deviceServiceImpl)
	dev.now = func() time.Time { return *clock }
	adm := NewAdminService(store, presence, dev, engine, audit, nil, cfg).(*adminServiceImpl)
	adm.now = func() time.Time { return *clock }

	return &testEnv{store: store, device: dev, admin: adm, audit: audit, clock: clock}
}

func (e *testEnv) advance(d time.Duration) { *e.clock = e.clock.Add(d) }

func (e *testEnv) login(accountID, fp string) (*LoginDeviceResult, error) {
	return e.device.CheckAndHandleDeviceLogin(context.Background(), &LoginDeviceRequest{
		AccountID: accountID,
		Email:     accountID + "@example.com",
		Role:      model.RoleStudent,
		Env:       identity.ClientEnvironment{Platform: fp},
		ClientIP:  "10.0.0.1",
	})
}

func (e *testEnv) seed(accountID string, fields map[string]any) {
	if _, ok := fields[model.FieldRole]; !ok {
		fields[model.FieldRole] = model.RoleStudent
	}
	if err := e.store.MemoryDocumentStore.SetDocument(context.Background(), accountID, fields, true); err != nil {
		panic(err)
	}
}

func (e *testEnv) doc(accountID string) *model.AccountSecurityState {
	d, err := e.store.GetDocument(context.Background(), accountID)
	if err != nil {
		panic(err)
	}
	return d
}

var errWriteFailed = errors.New("write failed")
