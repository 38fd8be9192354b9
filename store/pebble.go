package store

import (
	"context"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleSessionStore persists the PendingStore snapshot of one MQTT client
// session, keyed by client identifier, as the CBOR form EncodeSnapshot
// produces. Unlike a generic per-key blob store, a session row always holds
// the client's whole ordered []SnapshotEntry, so handing a session off to
// another broker process (or resuming after a restart) is a single Get/Set
// rather than reassembling one row per stored PacketID.
type PebbleSessionStore struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
	prefix []byte
}

// PebbleSessionStoreConfig configures the on-disk session store.
type PebbleSessionStoreConfig struct {
	Path   string
	Prefix string // optional prefix for session keys (useful when sharing a DB)
	Opts   *pebble.Options
}

// NewPebbleSessionStore opens (or creates) the session database at
// config.Path.
func NewPebbleSessionStore(config PebbleSessionStoreConfig) (*PebbleSessionStore, error) {
	opts := config.Opts
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, err
	}

	prefix := []byte(config.Prefix)
	if len(prefix) == 0 {
		prefix = []byte("session:")
	}

	return &PebbleSessionStore{db: db, prefix: prefix}, nil
}

func (p *PebbleSessionStore) sessionKey(clientID string) []byte {
	full := make([]byte, len(p.prefix)+len(clientID))
	copy(full, p.prefix)
	copy(full[len(p.prefix):], clientID)
	return full
}

// SaveSession persists clientID's current pending-entry snapshot, replacing
// whatever a prior connection of the same client left behind.
func (p *PebbleSessionStore) SaveSession(ctx context.Context, clientID string, entries []SnapshotEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	data, err := EncodeSnapshot(entries)
	if err != nil {
		return err
	}
	return p.db.Set(p.sessionKey(clientID), data, pebble.Sync)
}

// LoadSession retrieves the snapshot saved for clientID, for
// Connection.RestorePackets to replay on reconnect (spec §4.3's resumption
// contract).
func (p *PebbleSessionStore) LoadSession(ctx context.Context, clientID string) ([]SnapshotEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	p.mu.RUnlock()

	data, closer, err := p.db.Get(p.sessionKey(clientID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	return DecodeSnapshot(data)
}

// DeleteSession drops a client's persisted snapshot (clean-session takeover
// or explicit session expiry).
func (p *PebbleSessionStore) DeleteSession(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrStoreClosed
	}
	p.mu.RUnlock()

	return p.db.Delete(p.sessionKey(clientID), pebble.Sync)
}

// ListSessions returns the client identifiers with a persisted snapshot.
func (p *PebbleSessionStore) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	p.mu.RUnlock()

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: p.prefix,
		UpperBound: append(append([]byte{}, p.prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var clientIDs []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		clientIDs = append(clientIDs, string(key[len(p.prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return clientIDs, nil
}

// SessionCount returns the number of clients with a persisted snapshot.
func (p *PebbleSessionStore) SessionCount(ctx context.Context) (int64, error) {
	clientIDs, err := p.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(clientIDs)), nil
}

// Close closes the underlying database. A closed store rejects further
// calls with ErrStoreClosed.
func (p *PebbleSessionStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStoreClosed
	}
	p.closed = true
	return p.db.Close()
}
