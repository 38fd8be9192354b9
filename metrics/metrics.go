// Package metrics instruments a conn.Connection with Prometheus
// collectors: packets sent/received by type, errors by kind, current store
// depth, current in-flight QoS>=1 count, and current topic-alias-send map
// size. Collector satisfies conn.Observer structurally; conn never imports
// this package, so attaching a Collector is optional and never a hard
// dependency of the state machine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the Prometheus-backed conn.Observer, grounded on the
// golang-io/mqtt pack repo's Stat type (stat.go): a fixed set of counters/
// gauges constructed once and registered with a prometheus.Registerer.
type Collector struct {
	packetsSent     *prometheus.CounterVec
	packetsReceived *prometheus.CounterVec
	errors          *prometheus.CounterVec
	storeDepth      prometheus.Gauge
	inFlight        prometheus.Gauge
	topicAliasSize  prometheus.Gauge
}

// NewCollector builds a Collector with the given metric name prefix
// (typically the MQTT client/server identity) and registers it with reg.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total MQTT control packets sent, by packet type.",
		}, []string{"type"}),
		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total MQTT control packets received, by packet type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total connection errors, by error code.",
		}, []string{"code"}),
		storeDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_depth",
			Help:      "Current number of unacknowledged PUBLISH/PUBREL entries.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publish_in_flight",
			Help:      "Current number of QoS>=1 PUBLISH awaiting acknowledgement.",
		}),
		topicAliasSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topic_alias_send_size",
			Help:      "Current number of entries in the send-side topic alias map.",
		}),
	}
	reg.MustRegister(c.packetsSent, c.packetsReceived, c.errors, c.storeDepth, c.inFlight, c.topicAliasSize)
	return c
}

func (c *Collector) PacketSent(packetType byte) {
	c.packetsSent.WithLabelValues(packetTypeLabel(packetType)).Inc()
}

func (c *Collector) PacketReceived(packetType byte) {
	c.packetsReceived.WithLabelValues(packetTypeLabel(packetType)).Inc()
}

func (c *Collector) ErrorOccurred(code byte) {
	c.errors.WithLabelValues(errorCodeLabel(code)).Inc()
}

func (c *Collector) StoreDepth(n int) { c.storeDepth.Set(float64(n)) }

func (c *Collector) InFlight(n int) { c.inFlight.Set(float64(n)) }

func (c *Collector) TopicAliasSendSize(n int) { c.topicAliasSize.Set(float64(n)) }

var packetTypeNames = [...]string{
	0: "reserved", 1: "connect", 2: "connack", 3: "publish", 4: "puback",
	5: "pubrec", 6: "pubrel", 7: "pubcomp", 8: "subscribe", 9: "suback",
	10: "unsubscribe", 11: "unsuback", 12: "pingreq", 13: "pingresp",
	14: "disconnect", 15: "auth",
}

func packetTypeLabel(t byte) string {
	if int(t) < len(packetTypeNames) {
		return packetTypeNames[t]
	}
	return "unknown"
}

var errorCodeNames = [...]string{
	0: "none", 1: "malformed_packet", 2: "protocol_error", 3: "packet_too_large",
	4: "receive_maximum_exceeded", 5: "topic_alias_invalid",
	6: "packet_identifier_fully_used", 7: "packet_identifier_conflict",
	8: "packet_not_allowed_to_send", 9: "packet_not_allowed_to_store",
	10: "keep_alive_timeout", 11: "connection_rate_exceeded",
	12: "session_taken_over", 13: "unspecified_error",
}

func errorCodeLabel(code byte) string {
	if int(code) < len(errorCodeNames) {
		return errorCodeNames[code]
	}
	return "unknown"
}
