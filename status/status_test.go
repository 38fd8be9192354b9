package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
	}
}

func TestRole_String(t *testing.T) {
	tests := []struct {
		r    Role
		want string
	}{
		{RoleClient, "client"},
		{RoleServer, "server"},
		{RoleAny, "any"},
		{Role(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.r.String())
	}
}

func TestTimerKind_String(t *testing.T) {
	tests := []struct {
		k    TimerKind
		want string
	}{
		{TimerPingreqSend, "pingreq_send"},
		{TimerPingreqRecv, "pingreq_recv"},
		{TimerPingrespRecv, "pingresp_recv"},
		{TimerKind(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.k.String())
	}
}

func TestTimerOp_String(t *testing.T) {
	tests := []struct {
		o    TimerOp
		want string
	}{
		{TimerSet, "set"},
		{TimerReset, "reset"},
		{TimerCancel, "cancel"},
		{TimerOp(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.o.String())
	}
}
