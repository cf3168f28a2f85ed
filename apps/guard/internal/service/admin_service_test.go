package service

import (
	"context"
	"testing"
	"time"

	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/async"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_RequiresAdminRole(t *testing.T) {
	env := newTestEnv()
	env.seed("u1", map[string]any{})

	_, err := env.admin.BanUser(context.Background(), "u1", "x")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, env.admin.UnbanUser(context.Background(), "u1"), ErrPermissionDenied)
	_, err = env.admin.MassLogout(context.Background(), []string{"u1"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, env.audit.actions())
}

func TestAdmin_BanUser(t *testing.T) {
	env := newTestEnv()
	env.seed("u1", map[string]any{
		model.FieldDevices:  []model.DeviceRecord{{Fingerprint: "F1"}},
		model.FieldBanCount: 1,
	})

	ev, err := env.admin.BanUser(adminContext(), "u1", "sharing")
	require.NoError(t, err)
	assert.True(t, ev.Manual)
	assert.Equal(t, "admin-1", ev.BannedBy)

	doc := env.doc("u1")
	assert.Equal(t, model.BanStatusTemporary, doc.Status(testNow))
	assert.Equal(t, 1, doc.BanCount)
	assert.Len(t, doc.Devices, 1)
	assert.Equal(t, []string{model.AuditActionBan}, env.audit.actions())

	env.seed("boss", map[string]any{model.FieldRole: model.RoleAdmin})
	_, err = env.admin.BanUser(adminContext(), "boss", "x")
	assert.ErrorIs(t, err, ErrAdminExempt)

	_, err = env.admin.BanUser(adminContext(), "ghost", "x")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAdmin_UnbanIsFullReset(t *testing.T) {
	env := newTestEnv()
	ack := testNow.Add(-time.Hour)
	env.seed("u1", map[string]any{
		model.FieldDevices:           []model.DeviceRecord{{Fingerprint: "F1"}, {Fingerprint: "F2"}, {Fingerprint: "F3"}},
		model.FieldBanned:            true,
		model.FieldPermanentBan:      true,
		model.FieldBanCount:          3,
		model.FieldPermanentBanCount: 1,
		model.FieldBanHistory:        []model.BanEvent{{BanCount: 1}, {BanCount: 2}, {BanCount: 3, Permanent: true}},
		model.FieldKickedDevices:     []string{"F9"},
		model.FieldForceLogoutAt:     &ack,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := env.store.Subscribe(ctx, "u1")
	require.NoError(t, err)
	<-sub

	env.advance(time.Minute)
	require.NoError(t, env.admin.UnbanUser(adminContext(), "u1"))

	doc := env.doc("u1")
	assert.Equal(t, 0, doc.BanCount)
	assert.Empty(t, doc.Devices)
	assert.Empty(t, doc.BanHistory)
	assert.Empty(t, doc.KickedDevices)
	assert.False(t, doc.PermanentBan)
	assert.False(t, doc.Banned)
	assert.Equal(t, 1, doc.PermanentBanCount)
	require.NotNil(t, doc.ClearBanCacheAt)

	select {
	case snap := <-sub:
		require.NotNil(t, snap.ForceLogoutAt)
		assert.True(t, snap.ForceLogoutAt.After(ack))
		assert.Equal(t, model.LogoutReasonAdminUnban, snap.ForceLogoutReason)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not observe the unban")
	}
}

func TestAdmin_KickDevice(t *testing.T) {
	env := newTestEnv()
	env.seed("u1", map[string]any{
		model.FieldDevices: []model.DeviceRecord{{Fingerprint: "F1"}, {Fingerprint: "F2"}},
	})

	require.NoError(t, env.admin.KickDevice(adminContext(), "u1", "F2"))
	require.NoError(t, env.admin.KickDevice(adminContext(), "u1", "F2"))

	doc := env.doc("u1")
	assert.False(t, doc.HasDevice("F2"))
	assert.Equal(t, []string{"F2"}, doc.KickedDevices)
	assert.Equal(t, model.LogoutReasonDeviceKick, doc.ForceLogoutReason)

	assert.ErrorIs(t, env.admin.KickDevice(adminContext(), "u1", "nope"), ErrDeviceNotFound)
}

func TestAdmin_MassLogoutIsolatesFailures(t *testing.T) {
	env := newTestEnv()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		env.seed(id, map[string]any{model.FieldDevices: []model.DeviceRecord{{Fingerprint: "F-" + id}}})
	}
	env.store.setFn = func(id string) error {
		if id == "c" {
			return errWriteFailed
		}
		return nil
	}

	res, err := env.admin.MassLogout(adminContext(), []string{"a", "b", "c", "d", "e", "a", "ghost"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "d", "e"}, res.Succeeded)
	assert.Contains(t, res.Failed, "c")
	assert.Contains(t, res.Failed, "ghost")
	assert.Len(t, res.Failed, 2)

	for _, id := range []string{"a", "b", "d", "e"} {
		doc := env.doc(id)
		assert.Empty(t, doc.Devices, id)
		assert.Equal(t, model.LogoutReasonMassLogout, doc.ForceLogoutReason, id)
	}
	assert.Len(t, env.doc("c").Devices, 1)
	assert.Equal(t, []string{model.AuditActionMassLogout}, env.audit.actions())
}

func TestAdmin_MassLogoutRunsOnPool(t *testing.T) {
	poolCfg := config.DefaultAsyncConfig()
	poolCfg.PoolSize = 2
	poolCfg.Nonblocking = true
	require.NoError(t, async.Init(poolCfg))
	defer func() { _ = async.Release() }()

	env := newTestEnv()
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, id := range ids {
		env.seed(id, map[string]any{model.FieldDevices: []model.DeviceRecord{{Fingerprint: "F-" + id}}})
	}

	res, err := env.admin.MassLogout(adminContext(), ids)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, res.Succeeded)
	assert.Empty(t, res.Failed)
	for _, id := range ids {
		assert.Empty(t, env.doc(id).Devices, id)
	}
}

func TestAdmin_ClearForceLogoutFlagsDeletesFields(t *testing.T) {
	env := newTestEnv()
	at := testNow
	env.seed("u1", map[string]any{
		model.FieldForceLogoutAt:     &at,
		model.FieldForceLogoutReason: model.LogoutReasonMassLogout,
		model.FieldForcedBy:          "admin-1",
	})

	res, err := env.admin.ClearForceLogoutFlags(adminContext(), []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, res.Succeeded)

	doc := env.doc("u1")
	assert.Nil(t, doc.ForceLogoutAt)
	assert.Empty(t, doc.ForceLogoutReason)
	assert.Empty(t, doc.ForcedBy)
}
