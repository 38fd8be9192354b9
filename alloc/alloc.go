// Package alloc implements the MQTT packet-identifier allocator (spec §4.2):
// a sparse, ordered set of free id ranges over [1, Max], with acquire,
// explicit registration, release, and a FIFO wait-list for callers that
// want the next id to free up.
//
// The allocator is plain data with no internal locking: like the rest of
// the connection core (spec §5), it is driven synchronously by a single
// caller per Connection: the transport serialises access.
package alloc

import "sort"

// Width selects the wire size of the identifier space a Connection uses.
// Every MQTT version in scope (3.1.1, 5.0) uses the 16-bit space; Width32
// is carried as a seam for spec §3's "extended use" 4-byte identifier, not
// produced by any decoder in this repository.
type Width byte

const (
	Width16 Width = iota
	Width32
)

// Max returns the largest valid identifier for the width (id 0 is reserved).
func (w Width) Max() uint32 {
	if w == Width32 {
		return 0xFFFFFFFF
	}
	return 0xFFFF
}

// idRange is an inclusive, closed range of free identifiers [Lo, Hi].
type idRange struct {
	Lo, Hi uint32
}

// Allocator owns the free/in-use partition of [1, Max].
type Allocator struct {
	width Width
	free  []idRange // sorted ascending by Lo, non-adjacent, non-overlapping
	used  int       // count of ids currently in use, for Len()

	waiters []uint64 // FIFO of outstanding wait tickets
	nextTix uint64
}

// New creates an allocator over [1, width.Max()], entirely free.
func New(width Width) *Allocator {
	return &Allocator{
		width: width,
		free:  []idRange{{Lo: 1, Hi: width.Max()}},
	}
}

// Acquire returns the lowest-numbered free identifier, or ok=false if the
// space is fully in use (packet_identifier_fully_used).
func (a *Allocator) Acquire() (id uint32, ok bool) {
	if len(a.free) == 0 {
		return 0, false
	}
	r := &a.free[0]
	id = r.Lo
	if r.Lo == r.Hi {
		a.free = a.free[1:]
	} else {
		r.Lo++
	}
	a.used++
	return id, true
}

// Register records an externally chosen id as in-use. Returns false if the
// id was already in use (packet_identifier_conflict) or out of range.
func (a *Allocator) Register(id uint32) bool {
	if id == 0 || id > a.width.Max() {
		return false
	}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Hi >= id })
	if i >= len(a.free) || a.free[i].Lo > id {
		return false // not in any free range: already in use
	}
	r := a.free[i]
	switch {
	case r.Lo == id && r.Hi == id:
		a.free = append(a.free[:i], a.free[i+1:]...)
	case r.Lo == id:
		a.free[i].Lo++
	case r.Hi == id:
		a.free[i].Hi--
	default:
		a.free = append(a.free[:i], append([]idRange{{r.Lo, id - 1}, {id + 1, r.Hi}}, a.free[i+1:]...)...)
	}
	a.used++
	return true
}

// IsUsed reports whether id currently belongs to the in-use set.
func (a *Allocator) IsUsed(id uint32) bool {
	if id == 0 || id > a.width.Max() {
		return false
	}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Hi >= id })
	if i < len(a.free) && a.free[i].Lo <= id && id <= a.free[i].Hi {
		return false
	}
	return true
}

// Release returns id to the free pool. Releasing an id that is already
// free is undefined behaviour per spec §4.2; callers must not double-release.
func (a *Allocator) Release(id uint32) {
	if id == 0 || id > a.width.Max() {
		return
	}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Lo > id })

	mergeLeft := i > 0 && a.free[i-1].Hi+1 == id
	mergeRight := i < len(a.free) && a.free[i].Lo == id+1

	switch {
	case mergeLeft && mergeRight:
		a.free[i-1].Hi = a.free[i].Hi
		a.free = append(a.free[:i], a.free[i+1:]...)
	case mergeLeft:
		a.free[i-1].Hi = id
	case mergeRight:
		a.free[i].Lo = id
	default:
		a.free = append(a.free[:i], append([]idRange{{id, id}}, a.free[i:]...)...)
	}
	if a.used > 0 {
		a.used--
	}
}

// Len returns the number of identifiers currently in use.
func (a *Allocator) Len() int { return a.used }

// EnqueueWaiter registers a new FIFO wait ticket for async_acquire_wait_until
// (spec §4.2) and returns its ticket number. The core signals readiness by
// emitting a PacketIdReleased event on every Release; the transport then
// calls NextWaiter to learn which ticket, if any, should be served next.
func (a *Allocator) EnqueueWaiter() uint64 {
	a.nextTix++
	a.waiters = append(a.waiters, a.nextTix)
	return a.nextTix
}

// CancelWaiter removes one ticket from the FIFO; the remaining tickets keep
// their order. (notify_closed uses DrainWaiters, not this.)
func (a *Allocator) CancelWaiter(ticket uint64) {
	for i, t := range a.waiters {
		if t == ticket {
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			return
		}
	}
}

// NextWaiter pops the oldest outstanding ticket, if an id is currently
// free. The caller is expected to Acquire() immediately afterward.
func (a *Allocator) NextWaiter() (ticket uint64, ok bool) {
	if len(a.waiters) == 0 || len(a.free) == 0 {
		return 0, false
	}
	ticket = a.waiters[0]
	a.waiters = a.waiters[1:]
	return ticket, true
}

// DrainWaiters removes and returns every outstanding ticket, in FIFO order,
// for notify_closed to wake with an aborted code.
func (a *Allocator) DrainWaiters() []uint64 {
	out := a.waiters
	a.waiters = nil
	return out
}
