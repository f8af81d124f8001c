package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestLoginAttemptsWindow(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := c.RegisterLoginAttempt(ctx, "alice", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	mr.FastForward(time.Minute + time.Second)

	n, err := c.RegisterLoginAttempt(ctx, "alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after the window")

	require.NoError(t, c.ResetLoginAttempts(ctx, "alice"))
	assert.False(t, mr.Exists(loginAttemptsKey("alice")))
}

func TestLockOwnership(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "purchase:key:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireLock(ctx, "purchase:key:1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "purchase:key:1", "someone-else"))
	assert.True(t, mr.Exists("lock:purchase:key:1"), "foreign token must not release")

	require.NoError(t, c.ReleaseLock(ctx, "purchase:key:1", token))
	assert.False(t, mr.Exists("lock:purchase:key:1"))

	_, ok, err = c.AcquireLock(ctx, "purchase:key:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStockCache(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, ok, err := c.GetStock(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.TakeStock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	require.NoError(t, c.SetStock(ctx, map[int64]int{7: 1, 8: 0}))

	n, err = c.TakeStock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = c.TakeStock(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "stock never goes negative")

	count, ok, err := c.GetStock(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, count)

	n, err = c.TakeStock(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSoldCounter(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	n, err := c.GetSold(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, counted, err := c.CountSale(ctx, "evt-1", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, int64(1), n)

	_, counted, err = c.CountSale(ctx, "evt-1", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, counted, "same event twice")

	n, counted, err = c.CountSale(ctx, "evt-2", 3, time.Hour)
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, int64(2), n)

	n, err = c.GetSold(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSessions(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	s := &Session{UserID: 42, Username: "bob", Role: "buyer", CreatedAt: time.Now().UTC()}
	require.NoError(t, c.SaveSession(ctx, "tok-1", s, time.Hour))
	require.NoError(t, c.SaveSession(ctx, "tok-2", s, time.Hour))
	require.NoError(t, c.SaveSession(ctx, "tok-3", &Session{UserID: 7, Role: "admin"}, time.Hour))

	got, err := c.GetSession(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, "buyer", got.Role)

	require.NoError(t, c.DeleteUserSessions(ctx, 42))
	_, err = c.GetSession(ctx, "tok-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = c.GetSession(ctx, "tok-3")
	assert.NoError(t, err)

	require.NoError(t, c.DeleteSession(ctx, "tok-3"))
	_, err = c.GetSession(ctx, "tok-3")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, c.SaveSession(ctx, "short", s, time.Second))
	mr.FastForward(2 * time.Second)
	_, err = c.GetSession(ctx, "short")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
