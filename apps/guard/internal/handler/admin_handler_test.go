package handler

import (
	"context"
	"net/http"
	"testing"

	"EduServer/apps/guard/internal/middleware"
	"EduServer/apps/guard/internal/service"
	"EduServer/consts"
	"EduServer/model"
	"EduServer/pkg/ctxmeta"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(t *testing.T, admin service.AdminService) (*gin.Engine, string, string) {
	t.Helper()
	jwt := testJWT()
	h := NewAdminHandler(admin)
	r := newTestEngine()
	g := r.Group("/admin", middleware.JWTAuthMiddleware(jwt), middleware.AdminOnly())
	g.POST("/ban", h.Ban)
	g.POST("/unban", h.Unban)
	g.POST("/kick", h.Kick)
	g.POST("/mass-logout", h.MassLogout)
	g.POST("/clear-force-logout", h.ClearForceLogout)
	g.GET("/accounts/:id/security", h.SecurityState)
	return r, tokenFor(t, jwt, "admin-1", model.RoleAdmin), tokenFor(t, jwt, "acc-1", model.RoleStudent)
}

func TestAdminHandler_RequiresAdminRole(t *testing.T) {
	initHandlerTest()
	r, _, student := newAdminRouter(t, &fakeAdminService{})

	w, _ := doJSON(t, r, http.MethodPost, "/admin/unban", student, map[string]string{"accountId": "acc-2"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminHandler_BanPassesCallerAndMapsErrors(t *testing.T) {
	initHandlerTest()
	var caller, role string
	admin := &fakeAdminService{banFn: func(ctx context.Context, accountID, reason string) (*model.BanEvent, error) {
		caller = ctxmeta.AccountID(ctx)
		role = ctxmeta.Role(ctx)
		if accountID == "admin-2" {
			return nil, service.ErrAdminExempt
		}
		if accountID == "perm" {
			return nil, service.ErrAlreadyPermanent
		}
		return &model.BanEvent{ID: 1, Reason: reason, Permanent: true, Manual: true}, nil
	}}
	r, token, _ := newAdminRouter(t, admin)

	_, resp := doJSON(t, r, http.MethodPost, "/admin/ban", token, map[string]string{"accountId": "acc-1", "reason": "spam"}, nil)
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	assert.Equal(t, "admin-1", caller)
	assert.Equal(t, model.RoleAdmin, role)

	_, resp = doJSON(t, r, http.MethodPost, "/admin/ban", token, map[string]string{"accountId": "admin-2"}, nil)
	assert.Equal(t, int32(consts.CodeAdminExempt), resp.Code)

	_, resp = doJSON(t, r, http.MethodPost, "/admin/ban", token, map[string]string{"accountId": "perm"}, nil)
	assert.Equal(t, int32(consts.CodeAccountPermanentBanned), resp.Code)

	_, resp = doJSON(t, r, http.MethodPost, "/admin/ban", token, map[string]string{}, nil)
	assert.Equal(t, int32(consts.CodeParamError), resp.Code)
}

func TestAdminHandler_MassLogoutReturnsPartialFailures(t *testing.T) {
	initHandlerTest()
	admin := &fakeAdminService{massLogoutFn: func(_ context.Context, ids []string) (*service.BatchResult, error) {
		return &service.BatchResult{Succeeded: ids[:1], Failed: map[string]string{ids[1]: "write failed"}}, nil
	}}
	r, token, _ := newAdminRouter(t, admin)

	_, resp := doJSON(t, r, http.MethodPost, "/admin/mass-logout", token, map[string]any{"accountIds": []string{"a", "b"}}, nil)
	require.Equal(t, int32(consts.CodeSuccess), resp.Code)
	assert.JSONEq(t, `{"succeeded":["a"],"failed":{"b":"write failed"}}`, string(resp.Data))

	_, resp = doJSON(t, r, http.MethodPost, "/admin/mass-logout", token, map[string]any{"accountIds": []string{}}, nil)
	assert.Equal(t, int32(consts.CodeParamError), resp.Code)
}

func TestAdminHandler_KickDeviceNotFound(t *testing.T) {
	initHandlerTest()
	admin := &fakeAdminService{kickFn: func(context.Context, string, string) error {
		return service.ErrDeviceNotFound
	}}
	r, token, _ := newAdminRouter(t, admin)

	_, resp := doJSON(t, r, http.MethodPost, "/admin/kick", token, map[string]string{"accountId": "acc-1", "fingerprint": "fp-z"}, nil)
	assert.Equal(t, int32(consts.CodeDeviceNotFound), resp.Code)
}
