package repository

import (
	"context"
	"testing"
	"time"

	rediskey "EduServer/consts/redisKey"
	"EduServer/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisDocumentStore, *miniredis.Miniredis) {
	t.Helper()
	initRepoTestLogger()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDocumentStore(client), mr
}

func TestRedisDocumentStore_WriteBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.GetDocument(ctx, "a1")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, s.SetDocument(ctx, "a1", map[string]any{
		model.FieldRole:     model.RoleStudent,
		model.FieldBanCount: 1,
		model.FieldDevices:  []model.DeviceRecord{{Fingerprint: "F1"}},
	}, false))
	exp := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetDocument(ctx, "a1", map[string]any{
		model.FieldBanned:       true,
		model.FieldBanExpiresAt: &exp,
	}, true))

	ver, err := mr.Get(rediskey.AccountVersionKey("a1"))
	require.NoError(t, err)
	assert.Equal(t, "2", ver)
	// 每个字段单独存 JSON
	assert.Equal(t, "true", mr.HGet(rediskey.AccountSecurityKey("a1"), model.FieldBanned))

	doc, err := s.GetDocument(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
	assert.Equal(t, "a1", doc.AccountID)
	assert.Equal(t, 1, doc.BanCount)
	assert.True(t, doc.Banned)
	require.NotNil(t, doc.BanExpiresAt)
	assert.True(t, exp.Equal(*doc.BanExpiresAt))
	require.Len(t, doc.Devices, 1)

	require.NoError(t, s.DeleteFields(ctx, "a1", model.FieldBanExpiresAt, model.FieldBanned))
	doc, err = s.GetDocument(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.Version)
	assert.False(t, doc.Banned)
	assert.Nil(t, doc.BanExpiresAt)

	require.NoError(t, s.SetDocument(ctx, "a1", map[string]any{model.FieldRole: model.RoleAdmin}, false))
	doc, err = s.GetDocument(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, doc.BanCount, "non-merge write replaces the document")
	assert.True(t, doc.IsAdmin())
}

func TestRedisDocumentStore_MissingVersionKey(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	// 其他客户端直接写入的文档没有版本号
	mr.HSet(rediskey.AccountSecurityKey("a1"), model.FieldRole, `"student"`)
	mr.HSet(rediskey.AccountSecurityKey("a1"), model.FieldBanCount, `2`)

	doc, err := s.GetDocument(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), doc.Version)
	assert.Equal(t, 2, doc.BanCount)
}

func TestRedisDocumentStore_CorruptField(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.HSet(rediskey.AccountSecurityKey("a1"), model.FieldRole, `not-json`)

	_, err := s.GetDocument(context.Background(), "a1")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestRedisDocumentStore_SubscribeOrderedAndDeduplicated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, mr := newRedisStore(t)

	require.NoError(t, s.SetDocument(ctx, "a1", map[string]any{model.FieldRole: model.RoleStudent}, true))

	ch, err := s.Subscribe(ctx, "a1")
	require.NoError(t, err)
	first := recv(t, ch)
	assert.Equal(t, int64(1), first.Version)

	// 版本号没变的通知不产生快照
	mr.Publish(rediskey.AccountChangedChannel("a1"), "changed")
	require.NoError(t, s.SetDocument(ctx, "a1", map[string]any{model.FieldBanCount: 1}, true))
	next := recv(t, ch)
	assert.Equal(t, int64(2), next.Version)
	assert.Equal(t, 1, next.BanCount)

	require.NoError(t, s.SetDocument(ctx, "a1", map[string]any{model.FieldBanCount: 2}, true))
	next = recv(t, ch)
	assert.Equal(t, int64(3), next.Version)
	assert.Equal(t, 2, next.BanCount)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestRedisDocumentStore_SubscribeBeforeDocumentExists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := newRedisStore(t)

	ch, err := s.Subscribe(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, s.SetDocument(ctx, "a1", map[string]any{model.FieldRole: model.RoleStudent}, true))
	doc := recv(t, ch)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, model.RoleStudent, doc.Role)
}
