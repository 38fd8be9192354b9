// Package qos holds the small pieces of QoS 1/2 bookkeeping that live
// inside the connection core rather than in a background goroutine: the
// two receive-side dedup sets from spec §3/§4.6.2.
//
// Earlier drafts of this package ran a goroutine-driven retry/ack handler
// with its own mutex (see DESIGN.md); the core's concurrency model (spec
// §5) forbids internal goroutines and locks, so that responsibility moved
// into package conn and this package shrank to the two plain sets below.
package qos

// DedupSet tracks packet identifiers of inbound QoS 2 PUBLISH packets
// currently in one of the two states spec §4.6.2 distinguishes:
// "handled" (the application has been notified; a resend must not notify
// it again) and "processing" (a resend arrived before the PUBREL; ignore
// it outright).
type DedupSet struct {
	ids map[uint32]struct{}
}

// NewDedupSet creates an empty set.
func NewDedupSet() *DedupSet {
	return &DedupSet{ids: make(map[uint32]struct{})}
}

// Add records id as a member of the set.
func (s *DedupSet) Add(id uint32) { s.ids[id] = struct{}{} }

// Contains reports whether id is currently a member.
func (s *DedupSet) Contains(id uint32) bool {
	_, ok := s.ids[id]
	return ok
}

// Remove drops id from the set (called once the corresponding PUBREL/
// PUBCOMP exchange completes).
func (s *DedupSet) Remove(id uint32) { delete(s.ids, id) }

// Len returns the number of tracked identifiers.
func (s *DedupSet) Len() int { return len(s.ids) }

// Clear empties the set. Package conn does not call it; its sets are only
// changed through Add and Remove.
func (s *DedupSet) Clear() { s.ids = make(map[uint32]struct{}) }
