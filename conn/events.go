package conn

import "github.com/axmq/rv/status"

// EventKind discriminates the Event union (spec §4.7's return-value
// façade). A flat struct with a kind tag reads more naturally in Go than a
// closed sum type; callers switch on Kind and read only the fields that
// kind documents as populated.
type EventKind byte

const (
	EventError EventKind = iota
	EventSend
	EventPacketIDReleased
	EventPacketReceived
	EventTimer
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventSend:
		return "send"
	case EventPacketIDReleased:
		return "packet_id_released"
	case EventPacketReceived:
		return "packet_received"
	case EventTimer:
		return "timer"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is one item in the vector a public Connection method returns.
// Ordering within and across calls follows spec §5's guarantees: events in
// a returned slice must be performed by the transport in sequence.
type Event struct {
	Kind EventKind

	// EventError
	Err *Err

	// EventSend. Bytes is populated unless bulk-write is enabled and more
	// than one packet coalesced, in which case BulkBytes holds the
	// scatter-gather spans instead and Bytes is nil.
	Bytes         []byte
	BulkBytes     [][]byte
	ReleaseOnFail uint32 // packet id to release if the transport fails to transmit; 0 = none
	HasReleaseID  bool

	// EventPacketIDReleased
	ReleasedID uint32

	// EventPacketReceived
	Packet any

	// EventTimer
	TimerOp   status.TimerOp
	TimerKind status.TimerKind
	TimerMS   uint32
}

func evError(code ErrorCode, cause error) Event {
	return Event{Kind: EventError, Err: newErr(code, cause)}
}

func evErrorWithRelease(code ErrorCode, cause error, id uint32) Event {
	return Event{Kind: EventError, Err: newErr(code, cause), HasReleaseID: true, ReleaseOnFail: id}
}

func evSend(data []byte, releaseOnFail uint32, hasRelease bool) Event {
	return Event{Kind: EventSend, Bytes: data, ReleaseOnFail: releaseOnFail, HasReleaseID: hasRelease}
}

func evPacketIDReleased(id uint32) Event {
	return Event{Kind: EventPacketIDReleased, ReleasedID: id}
}

func evPacketReceived(p any) Event {
	return Event{Kind: EventPacketReceived, Packet: p}
}

func evTimer(op status.TimerOp, kind status.TimerKind, ms uint32) Event {
	return Event{Kind: EventTimer, TimerOp: op, TimerKind: kind, TimerMS: ms}
}

func evClose() Event {
	return Event{Kind: EventClose}
}
