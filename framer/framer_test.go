package framer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_SingleFrameInOneChunk(t *testing.T) {
	f := New(0)
	frame := []byte{0x20, 0x02, 0x00, 0x00} // CONNACK, remaining length 2

	frames, err := f.Feed(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0])
	assert.False(t, f.Pending())
}

func TestFeed_ZeroRemainingLength(t *testing.T) {
	f := New(0)
	frame := []byte{0xC0, 0x00} // PINGREQ, remaining length 0

	frames, err := f.Feed(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0])
}

func TestFeed_ByteAtATime(t *testing.T) {
	f := New(0)
	frame := []byte{0x20, 0x02, 0x00, 0x00}

	var got [][]byte
	for _, b := range frame {
		frames, err := f.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, frames...)
		if len(got) == 0 {
			assert.True(t, f.Pending())
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, frame, got[0])
	assert.False(t, f.Pending())
}

func TestFeed_MultipleFramesInOneChunk(t *testing.T) {
	f := New(0)
	buf := append([]byte{0xC0, 0x00}, []byte{0xC0, 0x00}...) // two PINGREQs back to back

	frames, err := f.Feed(buf)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{0xC0, 0x00}, frames[0])
	assert.Equal(t, []byte{0xC0, 0x00}, frames[1])
}

func TestFeed_MultiByteRemainingLength(t *testing.T) {
	f := New(0)
	payload := make([]byte, 200)
	// 200 encodes as two varint bytes: 0xC8, 0x01
	buf := append([]byte{0x30, 0xC8, 0x01}, payload...)

	frames, err := f.Feed(buf)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, buf, frames[0])
}

func TestFeed_MalformedRemainingLength(t *testing.T) {
	f := New(0)
	// four continuation bytes in a row: never terminates within the 4-byte limit
	buf := []byte{0x30, 0x80, 0x80, 0x80, 0x80, 0x01}

	_, err := f.Feed(buf)
	assert.ErrorIs(t, err, ErrMalformedRemainingLength)
}

func TestFeed_PacketTooLarge(t *testing.T) {
	f := New(10)
	buf := []byte{0x30, 0xC8, 0x01} // declares remaining length 200, well past the 10-byte cap

	_, err := f.Feed(buf)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestFeed_PayloadSplitAcrossChunks(t *testing.T) {
	f := New(0)
	payload := []byte("hello world")
	buf := append([]byte{0x30, byte(len(payload))}, payload...)

	frames, err := f.Feed(buf[:5])
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.True(t, f.Pending())

	frames, err = f.Feed(buf[5:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, buf, frames[0])
	assert.False(t, f.Pending())
}
