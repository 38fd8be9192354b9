package conn

import "github.com/axmq/rv/alloc"

// Config holds the tunables a Connection is constructed with: flow-control
// limits, keep-alive durations, and the auto-* behaviour flags of spec
// §4.6/§4.7. Plain struct with a DefaultConfig constructor.
type Config struct {
	// ReceiveMaximum is the locally-advertised inbound flow-control limit
	// (publish_recv_max): the maximum number of QoS>=1 PUBLISH this side
	// will have outstanding from the peer at once.
	ReceiveMaximum uint16

	// TopicAliasMaximumRecv is the locally-advertised capacity of the
	// receive-side topic alias map.
	TopicAliasMaximumRecv uint16

	// MaximumPacketSizeSend/Recv bound encoded packet size in each
	// direction; 0 means unbounded.
	MaximumPacketSizeSend uint32
	MaximumPacketSizeRecv uint32

	// Keep-alive durations in milliseconds; 0 disables the corresponding
	// timer.
	PingreqSendIntervalMS uint32
	PingreqRecvTimeoutMS  uint32
	PingrespRecvTimeoutMS uint32

	AutoPubResponse           bool
	AutoPingResponse          bool
	AutoMapTopicAliasSend     bool
	AutoReplaceTopicAliasSend bool
	BulkWrite                 bool

	// IDWidth selects the packet-identifier space; every decoder in this
	// repository only ever produces 16-bit ids (see alloc.Width), so this
	// is carried for forward compatibility rather than exercised.
	IDWidth alloc.Width
}

// DefaultConfig returns the conservative defaults: both auto-response
// flags on (the common case for a library driving the transport directly),
// both topic-alias flags off (opt-in, since they rewrite the caller's
// packet), no size limits, no keep-alive.
func DefaultConfig() Config {
	return Config{
		ReceiveMaximum:        65535,
		TopicAliasMaximumRecv: 0,
		MaximumPacketSizeSend: 0,
		MaximumPacketSizeRecv: 0,
		PingreqSendIntervalMS: 0,
		PingreqRecvTimeoutMS:  0,
		PingrespRecvTimeoutMS: 0,
		AutoPubResponse:       true,
		AutoPingResponse:      true,
		IDWidth:               alloc.Width16,
	}
}
