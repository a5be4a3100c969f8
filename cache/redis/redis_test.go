package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	c := NewRedisCacheWithClient(client, nil)
	t.Cleanup(func() { c.Close() })
	return c, s
}

func newToken(email, token string, ttl time.Duration) models.ResetToken {
	return models.ResetToken{
		Email:     email,
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestResetToken_CreateAndFind(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.CreateResetToken(ctx, newToken("a@x.com", "tok1", time.Hour)))

	found, err := c.FindValidResetToken(ctx, "tok1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", found.Email)
	assert.False(t, found.Used)

	assert.True(t, s.Exists(buildResetKey("tok1")))
	assert.Greater(t, s.TTL(buildResetKey("tok1")), time.Duration(0))
}

func TestResetToken_ExpiredByTTL(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.CreateResetToken(ctx, newToken("a@x.com", "tok1", time.Minute)))

	s.FastForward(2 * time.Minute)

	_, err := c.FindValidResetToken(ctx, "tok1", time.Now())
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestResetToken_ExpiredByClock(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.CreateResetToken(ctx, newToken("a@x.com", "tok1", time.Minute)))

	_, err := c.FindValidResetToken(ctx, "tok1", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestResetToken_UsedIsNotValid(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	token := newToken("a@x.com", "tok1", time.Hour)
	require.NoError(t, c.CreateResetToken(ctx, token))
	ttlBefore := s.TTL(buildResetKey("tok1"))

	token.Used = true
	require.NoError(t, c.SaveResetToken(ctx, token))

	_, err := c.FindValidResetToken(ctx, "tok1", time.Now())
	assert.ErrorIs(t, err, store.ErrItemNotFound)
	assert.Equal(t, ttlBefore, s.TTL(buildResetKey("tok1")))
}

func TestResetToken_SaveMissing(t *testing.T) {
	c, _ := setupTestRedis(t)

	err := c.SaveResetToken(context.Background(), newToken("a@x.com", "nope", time.Hour))
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestResetToken_DeleteByEmail(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.CreateResetToken(ctx, newToken("A@x.com", "tok1", time.Hour)))
	require.NoError(t, c.CreateResetToken(ctx, newToken("a@x.com", "tok2", time.Hour)))
	require.NoError(t, c.CreateResetToken(ctx, newToken("b@x.com", "tok3", time.Hour)))

	require.NoError(t, c.DeleteResetTokens(ctx, "a@x.com"))

	assert.False(t, s.Exists(buildResetKey("tok1")))
	assert.False(t, s.Exists(buildResetKey("tok2")))
	assert.True(t, s.Exists(buildResetKey("tok3")))
}

func TestResetToken_DeleteOne(t *testing.T) {
	c, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.CreateResetToken(ctx, newToken("a@x.com", "tok1", time.Hour)))
	require.NoError(t, c.DeleteResetToken(ctx, "tok1"))
	require.NoError(t, c.DeleteResetToken(ctx, "tok1"))

	assert.False(t, s.Exists(buildResetKey("tok1")))
	members, err := s.SMembers(buildResetEmailKey("a@x.com"))
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestResetToken_RejectsPastExpiry(t *testing.T) {
	c, _ := setupTestRedis(t)
	assert.Error(t, c.CreateResetToken(context.Background(), newToken("a@x.com", "tok1", -time.Second)))
}

func TestPublishSubscribe(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	require.NoError(t, c.Subscribe(ctx, "document-deleted", func(message []byte) {
		received <- message
	}))

	require.NoError(t, c.Publish(ctx, "document-deleted", []byte(`{"documentId":"d1"}`)))

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"documentId":"d1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
