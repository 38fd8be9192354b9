package store

// ResponseKind names which acknowledgement a pending entry is waiting for,
// per protocol version (spec §3's Store entry key).
type ResponseKind byte

const (
	ExpectPubackV3 ResponseKind = iota
	ExpectPubrecV3
	ExpectPubcompV3
	ExpectPubackV5
	ExpectPubrecV5
	ExpectPubcompV5
)

func (k ResponseKind) String() string {
	switch k {
	case ExpectPubackV3:
		return "v3_puback"
	case ExpectPubrecV3:
		return "v3_pubrec"
	case ExpectPubcompV3:
		return "v3_pubcomp"
	case ExpectPubackV5:
		return "v5_puback"
	case ExpectPubrecV5:
		return "v5_pubrec"
	case ExpectPubcompV5:
		return "v5_pubcomp"
	default:
		return "unknown"
	}
}

// isPubrec reports whether this kind is the "awaiting PUBREC" state a QoS 2
// PUBLISH is first stored under, regardless of protocol version.
func (k ResponseKind) isPubrec() bool {
	return k == ExpectPubrecV3 || k == ExpectPubrecV5
}

func (k ResponseKind) isPuback() bool {
	return k == ExpectPubackV3 || k == ExpectPubackV5
}

// Entry is one stored, unacknowledged PUBLISH (QoS>=1) or PUBREL awaiting
// its terminal response.
type Entry struct {
	Kind     ResponseKind
	PacketID uint32
	// Packet is the concrete wire packet to resend verbatim (one of
	// *encoding.PublishPacket, *encoding.PublishPacket311,
	// *encoding.PubrelPacket or *encoding.PubrelPacket311). It is an `any`
	// here so this package has no dependency on package encoding's packet
	// types, keeping the layering the same direction as the rest of the
	// module (encoding has no knowledge of storage).
	Packet   any
	EncodedSize uint32

	seq uint64
}

type key struct {
	kind ResponseKind
	id   uint32
}

// PendingStore is the ordered set of unacknowledged PUBLISH/PUBREL packets
// of spec §4.3. Entries preserve insertion order for replay on session
// resumption; the primary key (ResponseKind, PacketID) is unique.
type PendingStore struct {
	byKey map[key]*Entry
	order []*Entry
	seq   uint64
}

// NewPendingStore creates an empty in-memory pending store. This is the
// contract's default: the core never requires a persistent implementation
// (spec Non-goals), though store.PebbleSessionStore/store.RedisSessionStore
// can persist its SnapshotEntry form for integrators who want one.
func NewPendingStore() *PendingStore {
	return &PendingStore{byKey: make(map[key]*Entry)}
}

// ErrNotStorable names the failure of storing anything other than a QoS>=1
// PUBLISH or a PUBREL (spec §4.3 invariant). Add does not return it.
var ErrNotStorable = errNotStorable{}

type errNotStorable struct{}

func (errNotStorable) Error() string { return "packet_not_allowed_to_store" }

// Add inserts entry, preserving send order, and returns false without
// storing it when an entry with the same (Kind, PacketID) already exists.
// It does not check what kind of packet the entry holds; this layer only
// enforces primary-key uniqueness.
func (s *PendingStore) Add(e Entry) bool {
	k := key{e.Kind, e.PacketID}
	if _, exists := s.byKey[k]; exists {
		return false
	}
	s.seq++
	e.seq = s.seq
	stored := e
	s.byKey[k] = &stored
	s.order = append(s.order, &stored)
	return true
}

// Erase removes the entry for exactly (kind, id). Returns false if absent.
func (s *PendingStore) Erase(kind ResponseKind, id uint32) bool {
	k := key{kind, id}
	e, ok := s.byKey[k]
	if !ok {
		return false
	}
	delete(s.byKey, k)
	for i, o := range s.order {
		if o == e {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// ErasePublish erases the v3-or-v5 PUBACK/PUBREC entry for id, whichever
// is present — the QoS 1 and "QoS 2 awaiting PUBREC" completion path.
func (s *PendingStore) ErasePublish(id uint32) bool {
	for _, kind := range [...]ResponseKind{ExpectPubackV3, ExpectPubackV5, ExpectPubrecV3, ExpectPubrecV5} {
		if s.Erase(kind, id) {
			return true
		}
	}
	return false
}

// ReplacePubrecWithPubcomp moves a QoS 2 send-side entry from "awaiting
// PUBREC" to "awaiting PUBCOMP" when the local PUBREL is sent (spec
// §4.6.1's "Re-store with response_kind=pubcomp; erase the pubrec-waiting
// entry"). v5 selects whether the new kind is the v3 or v5 PUBCOMP flavour.
func (s *PendingStore) ReplacePubrecWithPubcomp(id uint32, v5 bool, pubrel any, size uint32) bool {
	found := false
	for _, kind := range [...]ResponseKind{ExpectPubrecV3, ExpectPubrecV5} {
		if s.Erase(kind, id) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	newKind := ExpectPubcompV3
	if v5 {
		newKind = ExpectPubcompV5
	}
	return s.Add(Entry{Kind: newKind, PacketID: id, Packet: pubrel, EncodedSize: size})
}

// Clear empties the store (clean-session path).
func (s *PendingStore) Clear() {
	s.byKey = make(map[key]*Entry)
	s.order = nil
}

// ForEach visits entries in insertion order. f returns true to keep the
// entry, false to drop it (used during Maximum-Packet-Size filtering on
// resend/replay).
func (s *PendingStore) ForEach(f func(*Entry) bool) {
	kept := s.order[:0]
	for _, e := range s.order {
		if f(e) {
			kept = append(kept, e)
		} else {
			delete(s.byKey, key{e.Kind, e.PacketID})
		}
	}
	s.order = kept
}

// GetStored returns a snapshot of all entries in insertion order.
func (s *PendingStore) GetStored() []Entry {
	out := make([]Entry, len(s.order))
	for i, e := range s.order {
		out[i] = *e
	}
	return out
}

// Len returns the number of stored entries.
func (s *PendingStore) Len() int { return len(s.order) }
