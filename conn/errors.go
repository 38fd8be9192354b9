package conn

import (
	"fmt"

	"github.com/axmq/rv/encoding"
)

// ErrorCode enumerates the error taxonomy of spec §7. The core never
// panics or returns a Go error from its public methods; every failure
// surfaces as an Error event carrying one of these codes.
type ErrorCode byte

const (
	ErrNone ErrorCode = iota
	ErrMalformedPacket
	ErrProtocolError
	ErrPacketTooLarge
	ErrReceiveMaximumExceeded
	ErrTopicAliasInvalid
	ErrPacketIdentifierFullyUsed
	ErrPacketIdentifierConflict
	ErrPacketNotAllowedToSend
	ErrPacketNotAllowedToStore
	ErrKeepAliveTimeout
	ErrConnectionRateExceeded
	ErrSessionTakenOver
	ErrUnspecifiedError
	ErrPayloadFormatInvalid
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "none"
	case ErrMalformedPacket:
		return "malformed_packet"
	case ErrProtocolError:
		return "protocol_error"
	case ErrPacketTooLarge:
		return "packet_too_large"
	case ErrReceiveMaximumExceeded:
		return "receive_maximum_exceeded"
	case ErrTopicAliasInvalid:
		return "topic_alias_invalid"
	case ErrPacketIdentifierFullyUsed:
		return "packet_identifier_fully_used"
	case ErrPacketIdentifierConflict:
		return "packet_identifier_conflict"
	case ErrPacketNotAllowedToSend:
		return "packet_not_allowed_to_send"
	case ErrPacketNotAllowedToStore:
		return "packet_not_allowed_to_store"
	case ErrKeepAliveTimeout:
		return "keep_alive_timeout"
	case ErrConnectionRateExceeded:
		return "connection_rate_exceeded"
	case ErrSessionTakenOver:
		return "session_taken_over"
	case ErrUnspecifiedError:
		return "unspecified_error"
	case ErrPayloadFormatInvalid:
		return "payload_format_invalid"
	default:
		return "unknown"
	}
}

// ReasonCode maps an ErrorCode to the v5.0 reason code used when the core
// itself must emit a CONNACK/DISCONNECT carrying one (spec §7's
// "unspecified_error mapped to v5 reason code 0x80" and friends).
func (c ErrorCode) ReasonCode() encoding.ReasonCode {
	switch c {
	case ErrMalformedPacket:
		return encoding.ReasonMalformedPacket
	case ErrProtocolError:
		return encoding.ReasonProtocolError
	case ErrPacketTooLarge:
		return encoding.ReasonPacketTooLarge
	case ErrReceiveMaximumExceeded:
		return encoding.ReasonReceiveMaximumExceeded
	case ErrTopicAliasInvalid:
		return encoding.ReasonTopicAliasInvalid
	case ErrKeepAliveTimeout:
		return encoding.ReasonKeepAliveTimeout
	case ErrConnectionRateExceeded:
		return encoding.ReasonConnectionRateExceeded
	case ErrSessionTakenOver:
		return encoding.ReasonSessionTakenOver
	case ErrPayloadFormatInvalid:
		return encoding.ReasonPayloadFormatInvalid
	default:
		return encoding.ReasonUnspecifiedError
	}
}

// Err wraps an ErrorCode with the underlying cause, matching the
// PacketError pattern in encoding/errors.go (sentinel-ish codes plus a
// Go error for %w-compatible wrapping).
type Err struct {
	Code  ErrorCode
	Cause error
}

func (e *Err) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *Err) Unwrap() error { return e.Cause }

func newErr(code ErrorCode, cause error) *Err {
	return &Err{Code: code, Cause: cause}
}

// errorCodeForDecodeErr maps a decode-time error from the encoding package
// to the code taxonomy the core surfaces on its Event stream, using the
// encoding package's own PacketError/reason-code classification (see
// encoding.GetReasonCode) instead of collapsing every decode failure to a
// single generic code.
func errorCodeForDecodeErr(err error) ErrorCode {
	switch encoding.GetReasonCode(err) {
	case encoding.ReasonMalformedPacket:
		return ErrMalformedPacket
	case encoding.ReasonProtocolError:
		return ErrProtocolError
	case encoding.ReasonPacketTooLarge:
		return ErrPacketTooLarge
	case encoding.ReasonUnsupportedProtocolVersion:
		return ErrProtocolError
	case encoding.ReasonTopicFilterInvalid, encoding.ReasonTopicNameInvalid:
		return ErrProtocolError
	default:
		return ErrMalformedPacket
	}
}
