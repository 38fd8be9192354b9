// Package conn implements the connection state machine of spec.md §4.6/
// §4.7: an I/O-independent "return-value" object that consumes packets and
// raw bytes and emits a sequence of Events for an external transport to
// execute. The core never performs I/O and never blocks; every public
// method runs to completion synchronously and hands back everything it
// produced.
package conn

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"github.com/axmq/rv/alias"
	"github.com/axmq/rv/alloc"
	"github.com/axmq/rv/encoding"
	"github.com/axmq/rv/framer"
	"github.com/axmq/rv/qos"
	"github.com/axmq/rv/status"
	"github.com/axmq/rv/store"
)

var errUnknownStoredPacket = errors.New("conn: unrecognised stored packet type")

// Observer is the hook a Connection reports counters and gauges through.
// Defined here rather than in package metrics so Connection never imports
// the Prometheus stack; metrics.Collector satisfies this interface
// structurally. A nil Observer (the default) disables all reporting.
type Observer interface {
	PacketSent(packetType byte)
	PacketReceived(packetType byte)
	ErrorOccurred(code byte)
	StoreDepth(n int)
	InFlight(n int)
	TopicAliasSendSize(n int)
}

// wireEncoder is satisfied by every concrete packet type in package
// encoding; Send builds wire bytes through it rather than hand-rolling a
// second encoder.
type wireEncoder interface {
	Encode(w io.Writer) error
}

func encodeToBytes(p wireEncoder) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Connection is the core entity of spec §3: protocol version, role,
// packet-id allocator, store, alias maps, flow-control counters, keep-alive
// durations, QoS 2 dedup sets, and the auto-* behaviour flags, all owned
// exclusively by this instance (spec §5 — nothing is shared across
// connections, no internal locking).
type Connection struct {
	cfg Config

	role         status.Role
	protoVersion encoding.ProtocolVersion
	versionKnown bool // false only for a server that has not yet seen CONNECT
	st           status.Status

	ids     *alloc.Allocator
	pending *store.PendingStore

	sendAlias *alias.SendMap
	recvAlias *alias.RecvMap

	publishSendMax   uint16 // peer's advertised Receive Maximum: how many QoS>=1 we may have in flight to them
	publishSendCount uint16
	publishRecvMax   uint16 // our own advertised Receive Maximum
	publishRecvCount uint16

	maxPacketSizeSend uint32
	maxPacketSizeRecv uint32

	qos2Handled    *qos.DedupSet
	qos2Processing *qos.DedupSet

	fr *framer.Framer

	autoPubResponse           bool
	autoPingResponse          bool
	autoMapTopicAliasSend     bool
	autoReplaceTopicAliasSend bool
	bulkWrite                 bool

	pingreqSendIntervalMS uint32
	pingreqRecvTimeoutMS  uint32
	pingrespRecvTimeoutMS uint32

	pendingSub   map[uint32]struct{}
	pendingUnsub map[uint32]struct{}

	obs Observer
	log *slog.Logger

	events []Event
}

// SetObserver attaches (or, with nil, detaches) a metrics observer. Nil is
// the zero-value default: a Connection never requires one.
func (c *Connection) SetObserver(obs Observer) { c.obs = obs }

// SetLogger attaches a logger for diagnostic output (status transitions,
// protocol failures, timer firings). A nil Connection logger falls back
// to slog.Default(); the zero value never panics.
func (c *Connection) SetLogger(log *slog.Logger) { c.log = log }

func (c *Connection) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return slog.Default()
}

// setStatus transitions the coarse lifecycle state, logging at Debug.
func (c *Connection) setStatus(s status.Status) {
	if s != c.st {
		c.logger().Debug("status transition", "from", c.st.String(), "to", s.String())
	}
	c.st = s
}

func (c *Connection) reportSent(pt encoding.PacketType) {
	if c.obs != nil {
		c.obs.PacketSent(byte(pt))
	}
}

func (c *Connection) reportReceived(pt encoding.PacketType) {
	if c.obs != nil {
		c.obs.PacketReceived(byte(pt))
	}
}

// reportEventErrors reports every EventError queued this call to the
// observer. Centralised here rather than at each evError call site, since
// error events are appended from dozens of validation branches throughout
// the send/recv handlers.
func (c *Connection) reportEventErrors() {
	if c.obs == nil {
		return
	}
	for _, e := range c.events {
		if e.Kind == EventError && e.Err != nil {
			c.obs.ErrorOccurred(byte(e.Err.Code))
		}
	}
}

func (c *Connection) reportGauges() {
	if c.obs == nil {
		return
	}
	c.obs.StoreDepth(c.pending.Len())
	c.obs.InFlight(int(c.publishSendCount))
	c.obs.TopicAliasSendSize(c.sendAlias.Len())
}

// New constructs a Connection for role, targeting version. A server whose
// version is not yet known at construction time should pass
// encoding.ProtocolVersion(0); the first received CONNECT determines it via
// encoding.DetectProtocolVersion (spec §9's protocol-version-detection open
// question).
func New(role status.Role, version encoding.ProtocolVersion, cfg Config) *Connection {
	c := &Connection{
		cfg:                       cfg,
		role:                      role,
		protoVersion:              version,
		versionKnown:              version != 0,
		st:                        status.Disconnected,
		ids:                       alloc.New(cfg.IDWidth),
		pending:                   store.NewPendingStore(),
		sendAlias:                 alias.NewSendMap(0),
		recvAlias:                 alias.NewRecvMap(cfg.TopicAliasMaximumRecv),
		publishSendMax:            65535,
		publishRecvMax:            cfg.ReceiveMaximum,
		maxPacketSizeSend:         cfg.MaximumPacketSizeSend,
		maxPacketSizeRecv:         cfg.MaximumPacketSizeRecv,
		qos2Handled:               qos.NewDedupSet(),
		qos2Processing:            qos.NewDedupSet(),
		fr:                        framer.New(cfg.MaximumPacketSizeRecv),
		autoPubResponse:           cfg.AutoPubResponse,
		autoPingResponse:          cfg.AutoPingResponse,
		autoMapTopicAliasSend:     cfg.AutoMapTopicAliasSend,
		autoReplaceTopicAliasSend: cfg.AutoReplaceTopicAliasSend,
		bulkWrite:                 cfg.BulkWrite,
		pingreqSendIntervalMS:     cfg.PingreqSendIntervalMS,
		pingreqRecvTimeoutMS:      cfg.PingreqRecvTimeoutMS,
		pingrespRecvTimeoutMS:     cfg.PingrespRecvTimeoutMS,
		pendingSub:                make(map[uint32]struct{}),
		pendingUnsub:              make(map[uint32]struct{}),
	}
	return c
}

// Status returns the current coarse lifecycle state.
func (c *Connection) Status() status.Status { return c.st }

func (c *Connection) reset() []Event {
	c.events = c.events[:0]
	return c.events
}

func (c *Connection) appendSend(wire []byte, releaseID uint32, hasRelease bool) {
	c.events = append(c.events, evSend(wire, releaseID, hasRelease))
}

func (c *Connection) cancelAllTimers() {
	c.events = append(c.events,
		evTimer(status.TimerCancel, status.TimerPingreqSend, 0),
		evTimer(status.TimerCancel, status.TimerPingreqRecv, 0),
		evTimer(status.TimerCancel, status.TimerPingrespRecv, 0),
	)
}

// validateSendRole enforces spec §4.6's role table: clients may not send
// CONNACK/SUBACK/UNSUBACK/PINGRESP; servers may not send CONNECT/SUBSCRIBE/
// UNSUBSCRIBE/PINGREQ.
func (c *Connection) validateSendRole(pt encoding.PacketType) bool {
	switch c.role {
	case status.RoleClient:
		switch pt {
		case encoding.CONNACK, encoding.SUBACK, encoding.UNSUBACK, encoding.PINGRESP:
			return false
		}
	case status.RoleServer:
		switch pt {
		case encoding.CONNECT, encoding.SUBSCRIBE, encoding.UNSUBSCRIBE, encoding.PINGREQ:
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------
// send(packet)
// ---------------------------------------------------------------------

// Send implements spec §4.6.1: validate role/version, run the
// packet-specific contract, and return every event produced. packet must be
// a pointer to one of the concrete types in package encoding (the v5.0 set
// or the v3.1.1 `*Packet311` set) for CONNECT, CONNACK, PUBLISH, PUBACK,
// PUBREC, PUBREL, PUBCOMP, SUBSCRIBE, UNSUBSCRIBE, PINGREQ or DISCONNECT.
// Any other type, SUBACK, UNSUBACK, PINGRESP and AUTH included, yields
// packet_not_allowed_to_send.
func (c *Connection) Send(packet any) []Event {
	c.reset()
	switch p := packet.(type) {
	case *encoding.ConnectPacket:
		c.reportSent(encoding.CONNECT)
		c.sendConnect5(p)
	case *encoding.ConnectPacket311:
		c.reportSent(encoding.CONNECT)
		c.sendConnect311(p)
	case *encoding.ConnackPacket:
		c.reportSent(encoding.CONNACK)
		c.sendConnack5(p)
	case *encoding.ConnackPacket311:
		c.reportSent(encoding.CONNACK)
		c.sendConnack311(p)
	case *encoding.PublishPacket:
		c.reportSent(encoding.PUBLISH)
		c.sendPublish5(p)
	case *encoding.PublishPacket311:
		c.reportSent(encoding.PUBLISH)
		c.sendPublish311(p)
	case *encoding.PubackPacket:
		c.reportSent(encoding.PUBACK)
		c.sendPuback5(p)
	case *encoding.PubackPacket311:
		c.reportSent(encoding.PUBACK)
		c.sendPuback311(p)
	case *encoding.PubrecPacket:
		c.reportSent(encoding.PUBREC)
		c.sendPubrec5(p)
	case *encoding.PubrecPacket311:
		c.reportSent(encoding.PUBREC)
		c.sendPubrec311(p)
	case *encoding.PubrelPacket:
		c.reportSent(encoding.PUBREL)
		c.sendPubrel5(p)
	case *encoding.PubrelPacket311:
		c.reportSent(encoding.PUBREL)
		c.sendPubrel311(p)
	case *encoding.PubcompPacket:
		c.reportSent(encoding.PUBCOMP)
		c.sendPubcomp5(p)
	case *encoding.PubcompPacket311:
		c.reportSent(encoding.PUBCOMP)
		c.sendPubcomp311(p)
	case *encoding.SubscribePacket:
		c.reportSent(encoding.SUBSCRIBE)
		c.sendSubscribe5(p)
	case *encoding.SubscribePacket311:
		c.reportSent(encoding.SUBSCRIBE)
		c.sendSubscribe311(p)
	case *encoding.UnsubscribePacket:
		c.reportSent(encoding.UNSUBSCRIBE)
		c.sendUnsubscribe5(p)
	case *encoding.UnsubscribePacket311:
		c.reportSent(encoding.UNSUBSCRIBE)
		c.sendUnsubscribe311(p)
	case *encoding.PingreqPacket:
		c.reportSent(encoding.PINGREQ)
		c.sendPingreq(p)
	case *encoding.DisconnectPacket:
		c.reportSent(encoding.DISCONNECT)
		c.sendDisconnect5(p)
	case *encoding.DisconnectPacket311:
		c.reportSent(encoding.DISCONNECT)
		c.sendDisconnect311(p)
	default:
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
	}
	c.reportEventErrors()
	c.reportGauges()
	return c.coalesceSends()
}

// coalesceSends merges consecutive plain EventSend entries (no
// release-on-fail obligation) into a single scatter-gather BulkBytes event
// when the bulk-write flag is set, per SPEC_FULL.md's bulk-write supplement
// to the §4.7 façade. Sends that carry a release id stay separate, since
// the transport must be able to attribute a write failure to one packet id.
func (c *Connection) coalesceSends() []Event {
	if !c.bulkWrite || len(c.events) < 2 {
		return c.events
	}
	out := c.events[:0]
	var run [][]byte
	flush := func() {
		switch len(run) {
		case 0:
		case 1:
			out = append(out, evSend(run[0], 0, false))
		default:
			out = append(out, Event{Kind: EventSend, BulkBytes: run})
		}
		run = nil
	}
	for _, e := range c.events {
		if e.Kind == EventSend && !e.HasReleaseID {
			run = append(run, e.Bytes)
			continue
		}
		flush()
		out = append(out, e)
	}
	flush()
	c.events = out
	return c.events
}

func (c *Connection) sendConnect5(p *encoding.ConnectPacket) {
	if !c.validateSendRole(encoding.CONNECT) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	if c.st != status.Disconnected {
		c.events = append(c.events, evError(ErrProtocolError, nil))
		return
	}
	c.protoVersion = encoding.ProtocolVersion50
	c.versionKnown = true
	c.setStatus(status.Connecting)

	if rm, ok := p.Properties.GetUint16(encoding.PropReceiveMaximum); ok {
		c.publishRecvMax = rm
	}
	if tam, ok := p.Properties.GetUint16(encoding.PropTopicAliasMaximum); ok {
		c.recvAlias = alias.NewRecvMap(tam)
	}
	if mps, ok := p.Properties.GetUint32(encoding.PropMaximumPacketSize); ok {
		c.maxPacketSizeRecv = mps
	}
	if p.KeepAlive > 0 {
		c.pingreqSendIntervalMS = uint32(p.KeepAlive) * 1000
		c.events = append(c.events, evTimer(status.TimerSet, status.TimerPingreqSend, c.pingreqSendIntervalMS))
	}

	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) sendConnect311(p *encoding.ConnectPacket311) {
	if !c.validateSendRole(encoding.CONNECT) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	if c.st != status.Disconnected {
		c.events = append(c.events, evError(ErrProtocolError, nil))
		return
	}
	c.protoVersion = encoding.ProtocolVersion311
	c.versionKnown = true
	c.setStatus(status.Connecting)
	if p.KeepAlive > 0 {
		c.pingreqSendIntervalMS = uint32(p.KeepAlive) * 1000
		c.events = append(c.events, evTimer(status.TimerSet, status.TimerPingreqSend, c.pingreqSendIntervalMS))
	}

	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) sendConnack5(p *encoding.ConnackPacket) {
	if !c.validateSendRole(encoding.CONNACK) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	if c.st != status.Connecting {
		c.events = append(c.events, evError(ErrProtocolError, nil))
		return
	}
	c.setStatus(status.Connected)
	if rm, ok := p.Properties.GetUint16(encoding.PropReceiveMaximum); ok {
		c.publishSendMax = rm
	}
	if tam, ok := p.Properties.GetUint16(encoding.PropTopicAliasMaximum); ok {
		c.sendAlias = alias.NewSendMap(tam)
	}
	if mps, ok := p.Properties.GetUint32(encoding.PropMaximumPacketSize); ok {
		c.maxPacketSizeSend = mps
	}

	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)

	if p.SessionPresent {
		c.replayStore()
	} else {
		c.clearStoreAndReleaseIDs()
	}
}

func (c *Connection) sendConnack311(p *encoding.ConnackPacket311) {
	if !c.validateSendRole(encoding.CONNACK) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	if c.st != status.Connecting {
		c.events = append(c.events, evError(ErrProtocolError, nil))
		return
	}
	c.setStatus(status.Connected)

	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)

	if p.SessionPresent {
		c.replayStore()
	} else {
		c.clearStoreAndReleaseIDs()
	}
}

// failPublishSend reports code and, if the packet id was allocated for this
// send, releases it — the Error(code), PacketIdReleased(id) sequence of
// spec §7's propagation policy.
func (c *Connection) failPublishSend(code ErrorCode, id uint32) {
	c.events = append(c.events, evError(code, nil))
	c.ids.Release(id)
	c.events = append(c.events, evPacketIDReleased(id))
}

// finishPublishSend applies Receive-Maximum flow control and storage once a
// QoS>=1 PUBLISH has already passed size validation and been encoded.
func (c *Connection) finishPublishSend(qosLevel encoding.QoS, packetID uint16, wire []byte, ackKind store.ResponseKind, storePacket any) {
	id := uint32(packetID)
	if qosLevel == encoding.QoS0 {
		c.appendSend(wire, 0, false)
		return
	}
	if c.publishSendCount >= c.publishSendMax {
		c.failPublishSend(ErrReceiveMaximumExceeded, id)
		return
	}
	c.publishSendCount++
	c.pending.Add(store.Entry{Kind: ackKind, PacketID: id, Packet: storePacket, EncodedSize: uint32(len(wire))})
	c.appendSend(wire, id, true)
}

func (c *Connection) sendPublish5(p *encoding.PublishPacket) {
	if !c.validateSendRole(encoding.PUBLISH) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	qosLevel := p.FixedHeader.QoS
	if err := encoding.ValidatePacketID(p.PacketID, qosLevel != encoding.QoS0); err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	id := uint32(p.PacketID)
	if qosLevel != encoding.QoS0 && !c.ids.IsUsed(id) {
		c.events = append(c.events, evError(ErrMalformedPacket, nil))
		return
	}

	if a, ok := p.Properties.GetUint16(encoding.PropTopicAlias); ok {
		if a == 0 || a > c.sendAlias.Max() {
			c.events = append(c.events, evError(ErrTopicAliasInvalid, nil))
			return
		}
		if p.TopicName == "" {
			if _, known := c.sendAlias.TopicForAlias(a); !known {
				c.events = append(c.events, evError(ErrTopicAliasInvalid, nil))
				return
			}
		} else {
			c.sendAlias.InsertOrUpdate(p.TopicName, a)
		}
	} else if c.autoMapTopicAliasSend && p.TopicName != "" && c.sendAlias.Max() > 0 {
		if existing, ok := c.sendAlias.FindAlias(p.TopicName); ok {
			if c.autoReplaceTopicAliasSend {
				_ = p.Properties.AddProperty(encoding.PropTopicAlias, existing)
				p.TopicName = ""
			}
		} else {
			var newAlias uint16
			if c.sendAlias.Len() >= int(c.sendAlias.Max()) {
				newAlias, _ = c.sendAlias.GetLRUAlias()
			} else {
				newAlias = uint16(c.sendAlias.Len() + 1)
			}
			c.sendAlias.InsertOrUpdate(p.TopicName, newAlias)
			_ = p.Properties.AddProperty(encoding.PropTopicAlias, newAlias)
		}
	}

	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	if c.maxPacketSizeSend > 0 && uint32(len(wire)) > c.maxPacketSizeSend {
		if qosLevel == encoding.QoS0 {
			c.events = append(c.events, evError(ErrPacketTooLarge, nil))
			return
		}
		c.failPublishSend(ErrPacketTooLarge, id)
		return
	}

	ackKind := store.ExpectPubackV5
	if qosLevel == encoding.QoS2 {
		ackKind = store.ExpectPubrecV5
	}
	c.finishPublishSend(qosLevel, p.PacketID, wire, ackKind, p)
}

func (c *Connection) sendPublish311(p *encoding.PublishPacket311) {
	if !c.validateSendRole(encoding.PUBLISH) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	qosLevel := p.FixedHeader.QoS
	if err := encoding.ValidatePacketID(p.PacketID, qosLevel != encoding.QoS0); err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	id := uint32(p.PacketID)
	if qosLevel != encoding.QoS0 && !c.ids.IsUsed(id) {
		c.events = append(c.events, evError(ErrMalformedPacket, nil))
		return
	}

	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	if c.maxPacketSizeSend > 0 && uint32(len(wire)) > c.maxPacketSizeSend {
		if qosLevel == encoding.QoS0 {
			c.events = append(c.events, evError(ErrPacketTooLarge, nil))
			return
		}
		c.failPublishSend(ErrPacketTooLarge, id)
		return
	}

	ackKind := store.ExpectPubackV3
	if qosLevel == encoding.QoS2 {
		ackKind = store.ExpectPubrecV3
	}
	c.finishPublishSend(qosLevel, p.PacketID, wire, ackKind, p)
}

func (c *Connection) sendTerminalAck(pt encoding.PacketType, id uint32, wire []byte, err error) {
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
	if c.publishSendCount > 0 {
		c.publishSendCount--
	}
	c.ids.Release(id)
	c.events = append(c.events, evPacketIDReleased(id))
}

func (c *Connection) sendPuback5(p *encoding.PubackPacket) {
	wire, err := encodeToBytes(p)
	c.sendTerminalAck(encoding.PUBACK, uint32(p.PacketID), wire, err)
}

func (c *Connection) sendPuback311(p *encoding.PubackPacket311) {
	wire, err := encodeToBytes(p)
	c.sendTerminalAck(encoding.PUBACK, uint32(p.PacketID), wire, err)
}

func (c *Connection) sendPubcomp5(p *encoding.PubcompPacket) {
	c.pending.Erase(store.ExpectPubcompV5, uint32(p.PacketID))
	wire, err := encodeToBytes(p)
	c.sendTerminalAck(encoding.PUBCOMP, uint32(p.PacketID), wire, err)
}

func (c *Connection) sendPubcomp311(p *encoding.PubcompPacket311) {
	c.pending.Erase(store.ExpectPubcompV3, uint32(p.PacketID))
	wire, err := encodeToBytes(p)
	c.sendTerminalAck(encoding.PUBCOMP, uint32(p.PacketID), wire, err)
}

// sendPubrec5/311 acknowledge a received QoS 2 PUBLISH. They leave
// publishSendCount unchanged, and no receive-side in-flight count is
// updated either (publishRecvCount is never incremented or decremented).
func (c *Connection) sendPubrec5(p *encoding.PubrecPacket) {
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) sendPubrec311(p *encoding.PubrecPacket311) {
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) sendPubrel5(p *encoding.PubrelPacket) {
	id := uint32(p.PacketID)
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.pending.ReplacePubrecWithPubcomp(id, true, p, uint32(len(wire)))
	c.appendSend(wire, 0, false)
}

func (c *Connection) sendPubrel311(p *encoding.PubrelPacket311) {
	id := uint32(p.PacketID)
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.pending.ReplacePubrecWithPubcomp(id, false, p, uint32(len(wire)))
	c.appendSend(wire, 0, false)
}

func (c *Connection) sendSubscribe5(p *encoding.SubscribePacket) {
	if !c.validateSendRole(encoding.SUBSCRIBE) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	id := uint32(p.PacketID)
	if id == 0 || !c.ids.IsUsed(id) {
		c.events = append(c.events, evError(ErrMalformedPacket, nil))
		return
	}
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.pendingSub[id] = struct{}{}
	c.appendSend(wire, id, true)
}

func (c *Connection) sendSubscribe311(p *encoding.SubscribePacket311) {
	if !c.validateSendRole(encoding.SUBSCRIBE) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	id := uint32(p.PacketID)
	if id == 0 || !c.ids.IsUsed(id) {
		c.events = append(c.events, evError(ErrMalformedPacket, nil))
		return
	}
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.pendingSub[id] = struct{}{}
	c.appendSend(wire, id, true)
}

func (c *Connection) sendUnsubscribe5(p *encoding.UnsubscribePacket) {
	if !c.validateSendRole(encoding.UNSUBSCRIBE) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	id := uint32(p.PacketID)
	if id == 0 || !c.ids.IsUsed(id) {
		c.events = append(c.events, evError(ErrMalformedPacket, nil))
		return
	}
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.pendingUnsub[id] = struct{}{}
	c.appendSend(wire, id, true)
}

func (c *Connection) sendUnsubscribe311(p *encoding.UnsubscribePacket311) {
	if !c.validateSendRole(encoding.UNSUBSCRIBE) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	id := uint32(p.PacketID)
	if id == 0 || !c.ids.IsUsed(id) {
		c.events = append(c.events, evError(ErrMalformedPacket, nil))
		return
	}
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.pendingUnsub[id] = struct{}{}
	c.appendSend(wire, id, true)
}

func (c *Connection) sendPingreq(p *encoding.PingreqPacket) {
	if !c.validateSendRole(encoding.PINGREQ) {
		c.events = append(c.events, evError(ErrPacketNotAllowedToSend, nil))
		return
	}
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
	if c.pingreqSendIntervalMS > 0 {
		c.events = append(c.events, evTimer(status.TimerReset, status.TimerPingreqSend, c.pingreqSendIntervalMS))
	}
	if c.pingrespRecvTimeoutMS > 0 {
		c.events = append(c.events, evTimer(status.TimerSet, status.TimerPingrespRecv, c.pingrespRecvTimeoutMS))
	}
}

func (c *Connection) sendDisconnect5(p *encoding.DisconnectPacket) {
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
	c.setStatus(status.Disconnected)
	c.cancelAllTimers()
}

func (c *Connection) sendDisconnect311(p *encoding.DisconnectPacket311) {
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
	c.setStatus(status.Disconnected)
	c.cancelAllTimers()
}

// ---------------------------------------------------------------------
// recv(bytes)
// ---------------------------------------------------------------------

// Recv implements spec §4.6.2: feed bytes through the framer and dispatch
// every complete packet it yields.
func (c *Connection) Recv(data []byte) []Event {
	c.reset()
	frames, err := c.fr.Feed(data)
	if err != nil {
		c.protocolFailure(ErrMalformedPacket)
		c.reportEventErrors()
		return c.coalesceSends()
	}
	for _, frame := range frames {
		c.recvFrame(frame)
	}
	c.reportEventErrors()
	return c.coalesceSends()
}

func (c *Connection) protocolFailure(code ErrorCode) {
	c.logger().Warn("protocol failure, closing connection", "code", code.String())
	c.events = append(c.events, evError(code, nil))
	if c.role == status.RoleServer || c.role == status.RoleAny {
		c.emitDisconnect(code)
	}
	c.setStatus(status.Disconnected)
	c.cancelAllTimers()
	c.events = append(c.events, evClose())
}

func (c *Connection) emitDisconnect(code ErrorCode) {
	if c.protoVersion == encoding.ProtocolVersion50 {
		d := &encoding.DisconnectPacket{ReasonCode: code.ReasonCode()}
		if wire, err := encodeToBytes(d); err == nil {
			c.appendSend(wire, 0, false)
		}
		return
	}
	d := &encoding.DisconnectPacket311{}
	if wire, err := encodeToBytes(d); err == nil {
		c.appendSend(wire, 0, false)
	}
}

func (c *Connection) recvFrame(frame []byte) {
	version := c.protoVersion
	if !c.versionKnown {
		fh, n, err := encoding.ParseFixedHeaderFromBytes(frame)
		if err != nil || fh.Type != encoding.CONNECT {
			c.protocolFailure(ErrProtocolError)
			return
		}
		// n already covers the whole fixed header, remaining-length bytes
		// included, so frame[n:] is exactly the CONNECT variable header.
		v, verr := encoding.DetectProtocolVersion(frame[n:])
		if verr != nil {
			c.events = append(c.events, evError(ErrProtocolError, verr))
			c.setStatus(status.Disconnected)
			c.events = append(c.events, evClose())
			return
		}
		c.protoVersion = v
		c.versionKnown = true
		version = v
	}

	pkt, err := encoding.DecodePacket(frame, version)
	if err != nil {
		c.protocolFailure(errorCodeForDecodeErr(err))
		return
	}

	switch p := pkt.(type) {
	case *encoding.ConnectPacket:
		c.reportReceived(encoding.CONNECT)
		c.recvConnect5(p)
	case *encoding.ConnectPacket311:
		c.reportReceived(encoding.CONNECT)
		c.recvConnect311(p)
	case *encoding.ConnackPacket:
		c.reportReceived(encoding.CONNACK)
		c.recvConnack5(p)
	case *encoding.ConnackPacket311:
		c.reportReceived(encoding.CONNACK)
		c.recvConnack311(p)
	case *encoding.PublishPacket:
		c.reportReceived(encoding.PUBLISH)
		c.recvPublish5(p)
	case *encoding.PublishPacket311:
		c.reportReceived(encoding.PUBLISH)
		c.recvPublish311(p)
	case *encoding.PubackPacket:
		c.reportReceived(encoding.PUBACK)
		c.recvPuback(uint32(p.PacketID))
	case *encoding.PubackPacket311:
		c.reportReceived(encoding.PUBACK)
		c.recvPuback(uint32(p.PacketID))
	case *encoding.PubrecPacket:
		c.reportReceived(encoding.PUBREC)
		c.recvPubrec(uint32(p.PacketID), true)
	case *encoding.PubrecPacket311:
		c.reportReceived(encoding.PUBREC)
		c.recvPubrec(uint32(p.PacketID), false)
	case *encoding.PubrelPacket:
		c.reportReceived(encoding.PUBREL)
		c.recvPubrel(uint32(p.PacketID), true)
	case *encoding.PubrelPacket311:
		c.reportReceived(encoding.PUBREL)
		c.recvPubrel(uint32(p.PacketID), false)
	case *encoding.PubcompPacket:
		c.reportReceived(encoding.PUBCOMP)
		c.recvPubcomp(uint32(p.PacketID))
	case *encoding.PubcompPacket311:
		c.reportReceived(encoding.PUBCOMP)
		c.recvPubcomp(uint32(p.PacketID))
	case *encoding.SubackPacket:
		c.reportReceived(encoding.SUBACK)
		c.recvSuback(uint32(p.PacketID))
	case *encoding.SubackPacket311:
		c.reportReceived(encoding.SUBACK)
		c.recvSuback(uint32(p.PacketID))
	case *encoding.UnsubackPacket:
		c.reportReceived(encoding.UNSUBACK)
		c.recvUnsuback(uint32(p.PacketID))
	case *encoding.UnsubackPacket311:
		c.reportReceived(encoding.UNSUBACK)
		c.recvUnsuback(uint32(p.PacketID))
	case *encoding.PingreqPacket:
		c.reportReceived(encoding.PINGREQ)
		c.recvPingreq()
	case *encoding.PingrespPacket:
		c.reportReceived(encoding.PINGRESP)
		c.recvPingresp()
	case *encoding.DisconnectPacket, *encoding.DisconnectPacket311:
		c.reportReceived(encoding.DISCONNECT)
		c.setStatus(status.Disconnected)
		c.cancelAllTimers()
		c.events = append(c.events, evClose())
	default:
		// SUBSCRIBE/UNSUBSCRIBE (server) and AUTH carry no automatic
		// response contract in spec §4.6.2; deliver as-is.
		c.events = append(c.events, evPacketReceived(pkt))
	}
	c.reportGauges()
}

func (c *Connection) recvConnect5(p *encoding.ConnectPacket) {
	c.setStatus(status.Connecting)
	if rm, ok := p.Properties.GetUint16(encoding.PropReceiveMaximum); ok {
		c.publishSendMax = rm
	} else {
		c.publishSendMax = 65535
	}
	if tam, ok := p.Properties.GetUint16(encoding.PropTopicAliasMaximum); ok {
		c.sendAlias = alias.NewSendMap(tam)
	}
	if mps, ok := p.Properties.GetUint32(encoding.PropMaximumPacketSize); ok {
		c.maxPacketSizeSend = mps
	}
	if p.KeepAlive > 0 {
		c.events = append(c.events, evTimer(status.TimerSet, status.TimerPingreqRecv, uint32(p.KeepAlive)*1500))
	}
	c.events = append(c.events, evPacketReceived(p))
}

func (c *Connection) recvConnect311(p *encoding.ConnectPacket311) {
	c.setStatus(status.Connecting)
	if p.KeepAlive > 0 {
		c.events = append(c.events, evTimer(status.TimerSet, status.TimerPingreqRecv, uint32(p.KeepAlive)*1500))
	}
	c.events = append(c.events, evPacketReceived(p))
}

func (c *Connection) recvConnack5(p *encoding.ConnackPacket) {
	c.setStatus(status.Connected)
	if rm, ok := p.Properties.GetUint16(encoding.PropReceiveMaximum); ok {
		c.publishSendMax = rm
	} else {
		c.publishSendMax = 65535
	}
	if tam, ok := p.Properties.GetUint16(encoding.PropTopicAliasMaximum); ok {
		c.sendAlias = alias.NewSendMap(tam)
	}
	if mps, ok := p.Properties.GetUint32(encoding.PropMaximumPacketSize); ok {
		c.maxPacketSizeSend = mps
	}
	c.events = append(c.events, evPacketReceived(p))
	if p.SessionPresent {
		c.replayStore()
	} else {
		c.clearStoreAndReleaseIDs()
	}
}

func (c *Connection) recvConnack311(p *encoding.ConnackPacket311) {
	c.setStatus(status.Connected)
	c.events = append(c.events, evPacketReceived(p))
	if p.SessionPresent {
		c.replayStore()
	} else {
		c.clearStoreAndReleaseIDs()
	}
}

func (c *Connection) recvPublish5(p *encoding.PublishPacket) {
	qosLevel := p.FixedHeader.QoS
	id := uint32(p.PacketID)

	if indicator, ok := p.Properties.GetByte(encoding.PropPayloadFormatIndicator); ok && indicator == 1 {
		if !encoding.IsValidUTF8StringStrict(p.Payload) {
			c.protocolFailure(ErrPayloadFormatInvalid)
			return
		}
	}

	if a, ok := p.Properties.GetUint16(encoding.PropTopicAlias); ok {
		if a == 0 || a > c.recvAlias.Max() {
			c.protocolFailure(ErrTopicAliasInvalid)
			return
		}
		if p.TopicName != "" {
			c.recvAlias.InsertOrUpdate(a, p.TopicName)
		} else if topic, known := c.recvAlias.Find(a); known {
			p.TopicName = topic
		} else {
			c.protocolFailure(ErrTopicAliasInvalid)
			return
		}
	} else if p.TopicName == "" {
		c.protocolFailure(ErrProtocolError)
		return
	}

	if qosLevel == encoding.QoS2 {
		if c.qos2Handled.Contains(id) || c.qos2Processing.Contains(id) {
			c.emitAutoPubrec(id)
			return
		}
		c.qos2Processing.Add(id)
	}

	c.events = append(c.events, evPacketReceived(p))

	if c.autoPubResponse {
		switch qosLevel {
		case encoding.QoS1:
			c.sendAutoPuback5(id)
		case encoding.QoS2:
			c.emitAutoPubrec(id)
		}
	}
}

func (c *Connection) recvPublish311(p *encoding.PublishPacket311) {
	qosLevel := p.FixedHeader.QoS
	id := uint32(p.PacketID)

	if qosLevel == encoding.QoS2 {
		if c.qos2Handled.Contains(id) || c.qos2Processing.Contains(id) {
			c.emitAutoPubrec(id)
			return
		}
		c.qos2Processing.Add(id)
	}

	c.events = append(c.events, evPacketReceived(p))

	if c.autoPubResponse {
		switch qosLevel {
		case encoding.QoS1:
			c.sendAutoPuback311(id)
		case encoding.QoS2:
			c.emitAutoPubrec(id)
		}
	}
}

func (c *Connection) sendAutoPuback5(id uint32) {
	p := &encoding.PubackPacket{PacketID: uint16(id), ReasonCode: encoding.ReasonSuccess}
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) sendAutoPuback311(id uint32) {
	p := &encoding.PubackPacket311{PacketID: uint16(id)}
	wire, err := encodeToBytes(p)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) emitAutoPubrec(id uint32) {
	if !c.autoPubResponse {
		return
	}
	var wire []byte
	var err error
	if c.protoVersion == encoding.ProtocolVersion50 {
		wire, err = encodeToBytes(&encoding.PubrecPacket{PacketID: uint16(id), ReasonCode: encoding.ReasonSuccess})
	} else {
		wire, err = encodeToBytes(&encoding.PubrecPacket311{PacketID: uint16(id)})
	}
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) recvPuback(id uint32) {
	if !c.pending.Erase(store.ExpectPubackV5, id) {
		c.pending.Erase(store.ExpectPubackV3, id)
	}
	if c.publishSendCount > 0 {
		c.publishSendCount--
	}
	c.ids.Release(id)
	c.events = append(c.events, evPacketIDReleased(id))
}

// encodePubrel builds the PUBREL wire form used both when the caller
// explicitly sends one (§4.6.1) and when recvPubrec auto-generates it.
func (c *Connection) encodePubrel(id uint32, v5 bool) (any, []byte, error) {
	if v5 {
		p := &encoding.PubrelPacket{PacketID: uint16(id), ReasonCode: encoding.ReasonSuccess}
		wire, err := encodeToBytes(p)
		return p, wire, err
	}
	p := &encoding.PubrelPacket311{PacketID: uint16(id)}
	wire, err := encodeToBytes(p)
	return p, wire, err
}

func (c *Connection) recvPubrec(id uint32, v5 bool) {
	pkt, wire, err := c.encodePubrel(id, v5)
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.pending.ReplacePubrecWithPubcomp(id, v5, pkt, uint32(len(wire)))
	if c.autoPubResponse {
		c.appendSend(wire, 0, false)
	}
}

func (c *Connection) recvPubrel(id uint32, v5 bool) {
	c.qos2Processing.Remove(id)
	c.qos2Handled.Add(id)
	if !c.autoPubResponse {
		return
	}
	var wire []byte
	var err error
	if v5 {
		wire, err = encodeToBytes(&encoding.PubcompPacket{PacketID: uint16(id), ReasonCode: encoding.ReasonSuccess})
	} else {
		wire, err = encodeToBytes(&encoding.PubcompPacket311{PacketID: uint16(id)})
	}
	if err != nil {
		c.events = append(c.events, evError(ErrMalformedPacket, err))
		return
	}
	c.appendSend(wire, 0, false)
}

func (c *Connection) recvPubcomp(id uint32) {
	if !c.pending.Erase(store.ExpectPubcompV5, id) {
		c.pending.Erase(store.ExpectPubcompV3, id)
	}
	if c.publishSendCount > 0 {
		c.publishSendCount--
	}
	c.ids.Release(id)
	c.events = append(c.events, evPacketIDReleased(id))
}

func (c *Connection) recvSuback(id uint32) {
	delete(c.pendingSub, id)
	c.ids.Release(id)
	c.events = append(c.events, evPacketIDReleased(id))
}

func (c *Connection) recvUnsuback(id uint32) {
	delete(c.pendingUnsub, id)
	c.ids.Release(id)
	c.events = append(c.events, evPacketIDReleased(id))
}

func (c *Connection) recvPingreq() {
	if c.autoPingResponse {
		if wire, err := encodeToBytes(&encoding.PingrespPacket{}); err == nil {
			c.appendSend(wire, 0, false)
		}
	}
	if c.pingreqRecvTimeoutMS > 0 {
		c.events = append(c.events, evTimer(status.TimerReset, status.TimerPingreqRecv, c.pingreqRecvTimeoutMS))
	}
}

func (c *Connection) recvPingresp() {
	c.events = append(c.events, evTimer(status.TimerCancel, status.TimerPingrespRecv, 0))
}

// replayStore implements spec §4.3's resumption replay: iterate in
// insertion order, re-encode with DUP set on PUBLISH, dropping anything
// larger than the peer's current Maximum Packet Size.
func (c *Connection) replayStore() {
	for _, e := range c.pending.GetStored() {
		if c.maxPacketSizeSend > 0 && e.EncodedSize > c.maxPacketSizeSend {
			c.pending.Erase(e.Kind, e.PacketID)
			c.ids.Release(e.PacketID)
			c.events = append(c.events, evPacketIDReleased(e.PacketID))
			continue
		}
		wire, err := c.encodeStoredForReplay(e)
		if err != nil {
			continue
		}
		c.appendSend(wire, e.PacketID, true)
	}
}

func (c *Connection) encodeStoredForReplay(e store.Entry) ([]byte, error) {
	switch p := e.Packet.(type) {
	case *encoding.PublishPacket:
		p.FixedHeader.DUP = true
		return encodeToBytes(p)
	case *encoding.PublishPacket311:
		p.FixedHeader.DUP = true
		return encodeToBytes(p)
	case *encoding.PubrelPacket:
		return encodeToBytes(p)
	case *encoding.PubrelPacket311:
		return encodeToBytes(p)
	default:
		return nil, errUnknownStoredPacket
	}
}

func (c *Connection) clearStoreAndReleaseIDs() {
	for _, e := range c.pending.GetStored() {
		c.ids.Release(e.PacketID)
		c.events = append(c.events, evPacketIDReleased(e.PacketID))
	}
	c.pending.Clear()
}

// ---------------------------------------------------------------------
// notify_timer_fired / notify_closed
// ---------------------------------------------------------------------

// NotifyTimerFired implements spec §4.6.3.
func (c *Connection) NotifyTimerFired(kind status.TimerKind) []Event {
	c.reset()
	c.logger().Debug("timer fired", "kind", kind.String())
	switch kind {
	case status.TimerPingreqSend:
		if wire, err := encodeToBytes(&encoding.PingreqPacket{}); err == nil {
			c.appendSend(wire, 0, false)
		}
		if c.pingreqSendIntervalMS > 0 {
			c.events = append(c.events, evTimer(status.TimerReset, status.TimerPingreqSend, c.pingreqSendIntervalMS))
		}
		if c.pingrespRecvTimeoutMS > 0 {
			c.events = append(c.events, evTimer(status.TimerSet, status.TimerPingrespRecv, c.pingrespRecvTimeoutMS))
		}
	case status.TimerPingreqRecv:
		c.protocolFailure(ErrKeepAliveTimeout)
	case status.TimerPingrespRecv:
		c.events = append(c.events, evError(ErrKeepAliveTimeout, nil))
		c.emitDisconnect(ErrKeepAliveTimeout)
		c.setStatus(status.Disconnected)
		c.cancelAllTimers()
		c.events = append(c.events, evClose())
	}
	c.reportEventErrors()
	c.reportGauges()
	return c.events
}

// NotifyClosed implements spec §4.6.4: move to disconnected, cancel every
// timer, keep the store for a future resumption, and release every packet
// id not tied to a stored packet (SUBSCRIBE/UNSUBSCRIBE pending sets and
// any FIFO waiters on the allocator).
func (c *Connection) NotifyClosed() []Event {
	c.reset()
	c.setStatus(status.Disconnected)
	c.cancelAllTimers()

	for id := range c.pendingSub {
		c.ids.Release(id)
		c.events = append(c.events, evPacketIDReleased(id))
		delete(c.pendingSub, id)
	}
	for id := range c.pendingUnsub {
		c.ids.Release(id)
		c.events = append(c.events, evPacketIDReleased(id))
		delete(c.pendingUnsub, id)
	}
	c.ids.DrainWaiters()
	c.reportGauges()
	return c.events
}

// ---------------------------------------------------------------------
// packet-identifier and setter surface (spec §6's in-process API)
// ---------------------------------------------------------------------

// AcquirePacketID returns the lowest free identifier, or ok=false when the
// allocator is exhausted (packet_identifier_fully_used).
func (c *Connection) AcquirePacketID() (id uint32, ok bool) { return c.ids.Acquire() }

// RegisterPacketID records an externally chosen identifier as in use.
func (c *Connection) RegisterPacketID(id uint32) bool { return c.ids.Register(id) }

// ReleasePacketID returns id to the free pool and reports it via a
// PacketIdReleased event.
func (c *Connection) ReleasePacketID(id uint32) []Event {
	c.reset()
	c.ids.Release(id)
	c.events = append(c.events, evPacketIDReleased(id))
	return c.events
}

func (c *Connection) SetPingreqSendInterval(ms uint32)     { c.pingreqSendIntervalMS = ms }
func (c *Connection) SetPingreqRecvTimeout(ms uint32)      { c.pingreqRecvTimeoutMS = ms }
func (c *Connection) SetPingrespRecvTimeout(ms uint32)     { c.pingrespRecvTimeoutMS = ms }
func (c *Connection) SetAutoPubResponse(on bool)           { c.autoPubResponse = on }
func (c *Connection) SetAutoPingResponse(on bool)          { c.autoPingResponse = on }
func (c *Connection) SetAutoMapTopicAliasSend(on bool)     { c.autoMapTopicAliasSend = on }
func (c *Connection) SetAutoReplaceTopicAliasSend(on bool) { c.autoReplaceTopicAliasSend = on }
func (c *Connection) SetBulkWrite(on bool)                 { c.bulkWrite = on }

// GetStoredPackets returns a snapshot of every unacknowledged PUBLISH/
// PUBREL, in insertion order, for an integrator to persist across restarts.
func (c *Connection) GetStoredPackets() []store.Entry { return c.pending.GetStored() }

// RestorePackets repopulates the store from a previously captured snapshot
// (e.g. decoded from store.DecodeSnapshot), for a fresh Connection standing
// in for a session that survived a process restart.
func (c *Connection) RestorePackets(entries []store.Entry) {
	for _, e := range entries {
		c.ids.Register(e.PacketID)
		c.pending.Add(e)
	}
}

// RegulateForStore strips the properties that spec §6 says must not be
// persisted (topic_alias, subscription_identifier) from a PUBLISH about to
// be stored, returning the regulated packet.
func RegulateForStore(p *encoding.PublishPacket) (*encoding.PublishPacket, error) {
	kept := p.Properties.Properties[:0]
	for _, prop := range p.Properties.Properties {
		if prop.ID == encoding.PropTopicAlias || prop.ID == encoding.PropSubscriptionIdentifier {
			continue
		}
		kept = append(kept, prop)
	}
	p.Properties.Properties = kept
	return p, nil
}
