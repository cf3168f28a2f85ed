package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"EduServer/apps/guard/internal/repository"
	"EduServer/model"
	"EduServer/pkg/logger"
	"EduServer/pkg/util"

	"golang.org/x/crypto/bcrypt"
)

// authServiceImpl 认证提供方：账号表 + bcrypt + JWT，不涉及设备与封禁
type authServiceImpl struct {
	accounts repository.AccountRepository
	store    repository.DocumentStore
	jwt      *util.JWTManager
	now      func() time.Time

	mu        sync.RWMutex
	listeners map[int]AuthListener
	nextID    int
}

// NewAuthService 创建认证服务实例
func NewAuthService(accounts repository.AccountRepository, store repository.DocumentStore, jwt *util.JWTManager) AuthService {
	return &authServiceImpl{
		accounts:  accounts,
		store:     store,
		jwt:       jwt,
		now:       time.Now,
		listeners: make(map[int]AuthListener),
	}
}

// SignUp 注册：创建账号行，并同时创建空的账号安全文档
func (s *authServiceImpl) SignUp(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 6 {
		return nil, ErrInvalidArgument
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error(ctx, "生成密码哈希失败", logger.ErrorField("error", err))
		return nil, err
	}
	account := &model.Account{
		AccountID:    util.NewUUID(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hashed),
		Role:         model.RoleStudent,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrEmailTaken
		}
		logger.Error(ctx, "创建账号失败", logger.ErrorField("error", err))
		return nil, err
	}

	now := s.now()
	doc := map[string]any{
		model.FieldAccountID:     account.AccountID,
		model.FieldRole:          account.Role,
		model.FieldDevices:       []model.DeviceRecord{},
		model.FieldBanned:        false,
		model.FieldBanCount:      0,
		model.FieldBanHistory:    []model.BanEvent{},
		model.FieldKickedDevices: []string{},
		model.FieldCreatedAt:     &now,
	}
	if err := s.store.SetDocument(ctx, account.AccountID, doc, false); err != nil {
		// 首次设备登录时会补建文档
		logger.Warn(ctx, "创建账号安全文档失败",
			logger.String("account", account.AccountID),
			logger.ErrorField("error", err),
		)
	}

	return s.issue(ctx, account)
}

// SignIn 密码登录，签发携带账号 ID 与角色的访问令牌
func (s *authServiceImpl) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		logger.Error(ctx, "查询账号失败", logger.ErrorField("error", err))
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 角色以账号表为准，同步到安全文档，订阅方据此判断管理员豁免
	if err := s.store.SetDocument(ctx, account.AccountID, map[string]any{
		model.FieldAccountID: account.AccountID,
		model.FieldRole:      account.Role,
	}, true); err != nil {
		logger.Warn(ctx, "同步账号角色失败", logger.ErrorField("error", err))
	}

	return s.issue(ctx, account)
}

func (s *authServiceImpl) issue(ctx context.Context, account *model.Account) (*AuthResult, error) {
	token, err := s.jwt.GenerateToken(account.AccountID, account.Email, account.Name, account.Role)
	if err != nil {
		logger.Error(ctx, "生成访问令牌失败", logger.ErrorField("error", err))
		return nil, err
	}
	s.emit(AuthStateEvent{AccountID: account.AccountID, Role: account.Role, SignedIn: true, At: s.now()})
	return &AuthResult{
		AccountID: account.AccountID,
		Email:     account.Email,
		Name:      account.Name,
		Role:      account.Role,
		Token:     token,
	}, nil
}

// SignOut 令牌无服务端状态，退出只通知监听方（关闭该设备的实时连接）
func (s *authServiceImpl) SignOut(ctx context.Context, accountID, fingerprint string) {
	if accountID == "" {
		return
	}
	logger.Info(ctx, "账号退出登录", logger.String("fingerprint", fingerprint))
	s.emit(AuthStateEvent{AccountID: accountID, Fingerprint: fingerprint, SignedIn: false, At: s.now()})
}

func (s *authServiceImpl) OnAuthStateChanged(listener AuthListener) func() {
	if listener == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// emit 同步调用监听器，单个监听器 panic 不影响其他监听器
func (s *authServiceImpl) emit(ev AuthStateEvent) {
	s.mu.RLock()
	listeners := make([]AuthListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(context.Background(), "认证状态监听器 panic", logger.Any("panic", r))
				}
			}()
			l(ev)
		}()
	}
}
