package handler

import (
	"context"
	"net/http"
	"testing"

	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/service"
	"EduServer/consts"
	"EduServer/model"

	"github.com/stretchr/testify/assert"
)

func TestAuthHandler_SignUp(t *testing.T) {
	initHandlerTest()

	auth := &fakeAuthService{}
	h := NewAuthHandler(auth, &fakeDeviceService{})
	r := newTestEngine()
	r.POST("/signup", h.SignUp)

	t.Run("参数错误", func(t *testing.T) {
		_, resp := doJSON(t, r, http.MethodPost, "/signup", "", map[string]string{"email": "bad"}, nil)
		assert.Equal(t, int32(consts.CodeParamError), resp.Code)
	})

	t.Run("邮箱已注册", func(t *testing.T) {
		auth.signUpFn = func(context.Context, string, string, string) (*service.AuthResult, error) {
			return nil, service.ErrEmailTaken
		}
		_, resp := doJSON(t, r, http.MethodPost, "/signup", "", map[string]string{
			"email":    "a@example.com",
			"password": "secret123",
		}, nil)
		assert.Equal(t, int32(consts.CodeUserAlreadyExist), resp.Code)
	})

	t.Run("成功", func(t *testing.T) {
		auth.signUpFn = func(_ context.Context, email, _, name string) (*service.AuthResult, error) {
			return &service.AuthResult{AccountID: "acc-1", Email: email, Name: name, Role: model.RoleStudent, Token: "t"}, nil
		}
		_, resp := doJSON(t, r, http.MethodPost, "/signup", "", map[string]string{
			"email":    "a@example.com",
			"password": "secret123",
			"name":     "小明",
		}, nil)
		assert.Equal(t, int32(consts.CodeSuccess), resp.Code)
		assert.JSONEq(t, `{"accountId":"acc-1","email":"a@example.com","name":"小明","role":"student","token":"t"}`, string(resp.Data))
	})
}

func TestAuthHandler_SignInWrongPassword(t *testing.T) {
	initHandlerTest()

	auth := &fakeAuthService{signInFn: func(context.Context, string, string) (*service.AuthResult, error) {
		return nil, service.ErrInvalidCredentials
	}}
	r := newTestEngine()
	r.POST("/signin", NewAuthHandler(auth, &fakeDeviceService{}).SignIn)

	_, resp := doJSON(t, r, http.MethodPost, "/signin", "", map[string]string{
		"email":    "a@example.com",
		"password": "wrong",
	}, nil)
	assert.Equal(t, int32(consts.CodePasswordError), resp.Code)
}

func TestAuthHandler_SignOutRemovesDeviceAndNotifies(t *testing.T) {
	initHandlerTest()
	jwt := testJWT()

	var removed, notified []string
	device := &fakeDeviceService{signOutFn: func(_ context.Context, accountID, fingerprint string) {
		removed = append(removed, accountID+"/"+fingerprint)
	}}
	auth := &fakeAuthService{signOutFn: func(_ context.Context, accountID, fingerprint string) {
		notified = append(notified, accountID+"/"+fingerprint)
	}}
	r := newTestEngine()
	r.POST("/signout", middleware.JWTAuthMiddleware(jwt), NewAuthHandler(auth, device).SignOut)

	_, resp := doJSON(t, r, http.MethodPost, "/signout", tokenFor(t, jwt, "acc-1", model.RoleStudent), nil,
		map[string]string{middleware.HeaderDeviceFingerprint: "fp-a"})
	assert.Equal(t, int32(consts.CodeSuccess), resp.Code)
	assert.Equal(t, []string{"acc-1/fp-a"}, removed)
	assert.Equal(t, []string{"acc-1/fp-a"}, notified)
}
