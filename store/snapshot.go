package store

import (
	"github.com/fxamacker/cbor/v2"
)

// SnapshotEntry is the wire-transfer form of a PendingStore Entry: the
// already-encoded packet bytes (fixed header through payload) plus the key
// needed to reconstruct the primary-key map on the receiving side. Carrying
// pre-encoded bytes rather than the typed packet keeps this package free of
// a dependency on package encoding and its interface{}-valued property
// lists, which do not round-trip through CBOR without per-property
// registration.
type SnapshotEntry struct {
	Kind     ResponseKind `cbor:"1,keyasint"`
	PacketID uint32       `cbor:"2,keyasint"`
	Wire     []byte       `cbor:"3,keyasint"`
}

// EncodeSnapshot serialises stored entries to CBOR for handing a session's
// in-flight state to another process (a second broker node, or a
// Pebble/Redis-backed store) — an optional capability; the core's own
// contract never requires it (spec Non-goals: persistent session storage).
func EncodeSnapshot(entries []SnapshotEntry) ([]byte, error) {
	return cbor.Marshal(entries)
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) ([]SnapshotEntry, error) {
	var entries []SnapshotEntry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
