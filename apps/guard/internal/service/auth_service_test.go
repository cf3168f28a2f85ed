package service

import (
	"context"
	"sync"
	"testing"

	"EduServer/apps/guard/internal/repository"
	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccountRepository struct {
	mu       sync.Mutex
	byEmail  map[string]*model.Account
	createFn func(context.Context, *model.Account) error
}

func newFakeAccountRepository() *fakeAccountRepository {
	return &fakeAccountRepository{byEmail: map[string]*model.Account{}}
}

func (f *fakeAccountRepository) Create(ctx context.Context, account *model.Account) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, account); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[account.Email]; ok {
		return repository.ErrDuplicateKey
	}
	cp := *account
	f.byEmail[account.Email] = &cp
	return nil
}

func (f *fakeAccountRepository) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountRepository) GetByAccountID(_ context.Context, accountID string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byEmail {
		if a.AccountID == accountID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func newTestAuth() (*authServiceImpl, *fakeAccountRepository, *repository.MemoryDocumentStore, *util.JWTManager) {
	initServiceTestLogger()
	accounts := newFakeAccountRepository()
	store := repository.NewMemoryDocumentStore()
	jwt := util.NewJWTManager(config.DefaultJWTConfig())
	return NewAuthService(accounts, store, jwt).(*authServiceImpl), accounts, store, jwt
}

func TestAuth_SignUpCreatesSecurityDocument(t *testing.T) {
	svc, _, store, jwt := newTestAuth()

	res, err := svc.SignUp(context.Background(), " Student@Example.com ", "secret123", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", res.Email)
	assert.Equal(t, model.RoleStudent, res.Role)

	claims, err := jwt.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.AccountID, claims.AccountID)
	assert.Equal(t, model.RoleStudent, claims.Role)

	doc, err := store.GetDocument(context.Background(), res.AccountID)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.BanCount)
	assert.Empty(t, doc.Devices)
	assert.Equal(t, model.RoleStudent, doc.Role)

	_, err = svc.SignUp(context.Background(), "student@example.com", "secret123", "Ann")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuth_SignIn(t *testing.T) {
	svc, accounts, store, _ := newTestAuth()
	_, err := svc.SignUp(context.Background(), "a@example.com", "secret123", "A")
	require.NoError(t, err)

	// 账号表中提升为管理员后，登录时同步到安全文档
	accounts.byEmail["a@example.com"].Role = model.RoleAdmin

	res, err := svc.SignIn(context.Background(), "a@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, res.Role)
	doc, err := store.GetDocument(context.Background(), res.AccountID)
	require.NoError(t, err)
	assert.True(t, doc.IsAdmin())

	_, err = svc.SignIn(context.Background(), "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(context.Background(), "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuth_OnAuthStateChanged(t *testing.T) {
	svc, _, _, _ := newTestAuth()

	var events []AuthStateEvent
	unsubscribe := svc.OnAuthStateChanged(func(ev AuthStateEvent) { events = append(events, ev) })
	svc.OnAuthStateChanged(func(AuthStateEvent) { panic("bad listener") })

	res, err := svc.SignUp(context.Background(), "b@example.com", "secret123", "B")
	require.NoError(t, err)
	svc.SignOut(context.Background(), res.AccountID, "F1")

	require.Len(t, events, 2)
	assert.True(t, events[0].SignedIn)
	assert.False(t, events[1].SignedIn)
	assert.Equal(t, "F1", events[1].Fingerprint)

	unsubscribe()
	svc.SignOut(context.Background(), res.AccountID, "F1")
	assert.Len(t, events, 2)
}
