package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore is the shared/remote counterpart to PebbleSessionStore:
// one Redis key per MQTT client holding that client's whole ordered
// []SnapshotEntry, CBOR-encoded (the same wire form EncodeSnapshot produces
// for a direct process-to-process hand-off), plus a Redis set indexing the
// live session keys so ListSessions doesn't need a KEYS scan.
type RedisSessionStore struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
	ttl    time.Duration // optional session expiry; 0 = sessions never expire on their own
	prefix string
	index  string
}

// RedisSessionStoreConfig configures the Redis-backed session store.
type RedisSessionStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // optional prefix for session keys, e.g. "mqtt:session:"
	TTL      time.Duration // optional: expire abandoned sessions after TTL
	Options  *redis.Options
}

// NewRedisSessionStore dials Redis and verifies connectivity with a Ping.
func NewRedisSessionStore(config RedisSessionStoreConfig) (*RedisSessionStore, error) {
	var client *redis.Client
	if config.Options != nil {
		client = redis.NewClient(config.Options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "session:"
	}

	return &RedisSessionStore{
		client: client,
		ttl:    config.TTL,
		prefix: prefix,
		index:  prefix + "index",
	}, nil
}

func (r *RedisSessionStore) sessionKey(clientID string) string {
	return r.prefix + clientID
}

// SaveSession persists clientID's current pending-entry snapshot, replacing
// whatever a prior connection of the same client left behind.
func (r *RedisSessionStore) SaveSession(ctx context.Context, clientID string, entries []SnapshotEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrStoreClosed
	}
	r.mu.RUnlock()

	data, err := EncodeSnapshot(entries)
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}

	fullKey := r.sessionKey(clientID)
	pipe := r.client.Pipeline()
	if r.ttl > 0 {
		pipe.Set(ctx, fullKey, data, r.ttl)
	} else {
		pipe.Set(ctx, fullKey, data, 0)
	}
	pipe.SAdd(ctx, r.index, clientID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession retrieves the snapshot saved for clientID, for
// Connection.RestorePackets to replay on reconnect.
func (r *RedisSessionStore) LoadSession(ctx context.Context, clientID string) ([]SnapshotEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	r.mu.RUnlock()

	data, err := r.client.Get(ctx, r.sessionKey(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	entries, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return entries, nil
}

// DeleteSession drops a client's persisted snapshot.
func (r *RedisSessionStore) DeleteSession(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrStoreClosed
	}
	r.mu.RUnlock()

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.sessionKey(clientID))
	pipe.SRem(ctx, r.index, clientID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions returns the client identifiers with a persisted snapshot.
func (r *RedisSessionStore) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	r.mu.RUnlock()

	clientIDs, err := r.client.SMembers(ctx, r.index).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return clientIDs, nil
}

// SessionCount returns the number of clients with a persisted snapshot.
func (r *RedisSessionStore) SessionCount(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0, ErrStoreClosed
	}
	r.mu.RUnlock()

	count, err := r.client.SCard(ctx, r.index).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Close closes the Redis client. A closed store rejects further calls with
// ErrStoreClosed.
func (r *RedisSessionStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}
	r.closed = true
	return r.client.Close()
}
