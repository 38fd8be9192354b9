//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisAddr() string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

func openTestRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	opts := &redis.Options{Addr: getRedisAddr()}

	probe := redis.NewClient(opts)
	if err := probe.Ping(context.Background()).Err(); err != nil {
		probe.Close()
		t.Skipf("Redis not available at %s: %v", opts.Addr, err)
	}
	probe.Close()

	s, err := NewRedisSessionStore(RedisSessionStoreConfig{Options: opts, Prefix: "rv-test:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		ids, _ := s.ListSessions(context.Background())
		for _, id := range ids {
			s.DeleteSession(context.Background(), id)
		}
		s.Close()
	})
	return s
}

func TestRedisSessionStore_SaveLoadRoundTrip(t *testing.T) {
	s := openTestRedisStore(t)
	ctx := context.Background()
	entries := sampleSnapshot()

	require.NoError(t, s.SaveSession(ctx, "client-1", entries))

	got, err := s.LoadSession(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestRedisSessionStore_LoadMissingSession(t *testing.T) {
	s := openTestRedisStore(t)
	_, err := s.LoadSession(context.Background(), "never-connected")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisSessionStore_DeleteSession(t *testing.T) {
	s := openTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, "client-1", sampleSnapshot()))

	require.NoError(t, s.DeleteSession(ctx, "client-1"))

	_, err := s.LoadSession(ctx, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisSessionStore_ListAndCountSessions(t *testing.T) {
	s := openTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, "client-1", sampleSnapshot()))
	require.NoError(t, s.SaveSession(ctx, "client-2", nil))

	ids, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"client-1", "client-2"}, ids)

	count, err := s.SessionCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestRedisSessionStore_ExpiresWithTTL(t *testing.T) {
	opts := &redis.Options{Addr: getRedisAddr()}
	probe := redis.NewClient(opts)
	if err := probe.Ping(context.Background()).Err(); err != nil {
		probe.Close()
		t.Skipf("Redis not available at %s: %v", opts.Addr, err)
	}
	probe.Close()

	s, err := NewRedisSessionStore(RedisSessionStoreConfig{
		Options: opts,
		Prefix:  "rv-test-ttl:",
		TTL:     50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, "client-1", sampleSnapshot()))

	time.Sleep(200 * time.Millisecond)
	_, err = s.LoadSession(ctx, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisSessionStore_OperationsAfterClose(t *testing.T) {
	s := openTestRedisStore(t)
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.SaveSession(ctx, "client-1", nil), ErrStoreClosed)
	_, err := s.LoadSession(ctx, "client-1")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.DeleteSession(ctx, "client-1"), ErrStoreClosed)
	assert.ErrorIs(t, s.Close(), ErrStoreClosed)
}
