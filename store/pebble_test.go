package store

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestPebbleStore(t *testing.T) *PebbleSessionStore {
	t.Helper()
	s, err := NewPebbleSessionStore(PebbleSessionStoreConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot() []SnapshotEntry {
	return []SnapshotEntry{
		{Kind: ExpectPubackV5, PacketID: 1, Wire: []byte{0x30, 0x02, 0x00, 0x01}},
		{Kind: ExpectPubrecV5, PacketID: 2, Wire: []byte{0x34, 0x02, 0x00, 0x02}},
	}
}

func TestNewPebbleSessionStore_DefaultAndCustomOptions(t *testing.T) {
	s1, err := NewPebbleSessionStore(PebbleSessionStoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	defer s1.Close()

	s2, err := NewPebbleSessionStore(PebbleSessionStoreConfig{
		Path: t.TempDir(),
		Opts: &pebble.Options{ErrorIfExists: false},
	})
	require.NoError(t, err)
	defer s2.Close()
}

func TestNewPebbleSessionStore_InvalidPath(t *testing.T) {
	_, err := NewPebbleSessionStore(PebbleSessionStoreConfig{
		Path: "/invalid/path/that/does/not/exist/and/cannot/be/created",
	})
	assert.Error(t, err)
}

func TestPebbleSessionStore_SaveLoadRoundTrip(t *testing.T) {
	s := openTestPebbleStore(t)
	ctx := context.Background()
	entries := sampleSnapshot()

	require.NoError(t, s.SaveSession(ctx, "client-1", entries))

	got, err := s.LoadSession(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestPebbleSessionStore_SaveOverwritesPriorSnapshot(t *testing.T) {
	s := openTestPebbleStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, "client-1", sampleSnapshot()))
	require.NoError(t, s.SaveSession(ctx, "client-1", nil)) // reconnect with nothing in flight

	got, err := s.LoadSession(ctx, "client-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPebbleSessionStore_LoadMissingSession(t *testing.T) {
	s := openTestPebbleStore(t)
	_, err := s.LoadSession(context.Background(), "never-connected")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPebbleSessionStore_LoadCorruptedData(t *testing.T) {
	s := openTestPebbleStore(t)
	require.NoError(t, s.db.Set(s.sessionKey("corrupt"), []byte("not cbor"), pebble.Sync))

	_, err := s.LoadSession(context.Background(), "corrupt")
	assert.Error(t, err)
}

func TestPebbleSessionStore_DeleteSession(t *testing.T) {
	s := openTestPebbleStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, "client-1", sampleSnapshot()))

	require.NoError(t, s.DeleteSession(ctx, "client-1"))

	_, err := s.LoadSession(ctx, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPebbleSessionStore_ListAndCountSessions(t *testing.T) {
	s := openTestPebbleStore(t)
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

func TestPebbleSessionStore_OperationsAfterClose(t *testing.T) {
	s, err := NewPebbleSessionStore(PebbleSessionStoreConfig{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.SaveSession(ctx, "client-1", nil), ErrStoreClosed)
	_, err = s.LoadSession(ctx, "client-1")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.DeleteSession(ctx, "client-1"), ErrStoreClosed)
	_, err = s.ListSessions(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Close(), ErrStoreClosed)
}

func TestPebbleSessionStore_CanceledContext(t *testing.T) {
	s := openTestPebbleStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.SaveSession(ctx, "client-1", nil))
	_, err := s.LoadSession(ctx, "client-1")
	assert.Error(t, err)
}

func BenchmarkPebbleSessionStore_SaveSession(b *testing.B) {
	s, err := NewPebbleSessionStore(PebbleSessionStoreConfig{Path: b.TempDir()})
	require.NoError(b, err)
	defer s.Close()

	ctx := context.Background()
	entries := sampleSnapshot()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.SaveSession(ctx, "client-1", entries)
	}
}

func BenchmarkPebbleSessionStore_LoadSession(b *testing.B) {
	s, err := NewPebbleSessionStore(PebbleSessionStoreConfig{Path: b.TempDir()})
	require.NoError(b, err)
	defer s.Close()

	ctx := context.Background()
	s.SaveSession(ctx, "client-1", sampleSnapshot())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.LoadSession(ctx, "client-1")
	}
}
