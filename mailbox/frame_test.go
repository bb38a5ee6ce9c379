package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCodecRoundTrip(t *testing.T) {
	fc := newFrameCodec()
	frame, err := fc.encode([]byte("hello mailbox"))
	require.NoError(t, err)

	var got []byte
	consumed, err := fc.parse(frame, func(body []byte) error {
		got = append([]byte(nil), body...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, "hello mailbox", string(got))
}

func TestFrameCodecPartialFrameNotConsumed(t *testing.T) {
	fc := newFrameCodec()
	frame, err := fc.encode([]byte("a longer payload to compress"))
	require.NoError(t, err)
	require.Greater(t, len(frame), 1)

	var calls int
	consumed, err := fc.parse(frame[:len(frame)-1], func(body []byte) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, consumed)
	assert.Equal(t, 0, calls)
}

func TestFrameCodecMultipleFramesInOneDelivery(t *testing.T) {
	fc := newFrameCodec()
	a, err := fc.encode([]byte("first"))
	require.NoError(t, err)
	b, err := fc.encode([]byte("second"))
	require.NoError(t, err)

	var got []string
	buf := append(append([]byte{}, a...), b...)
	consumed, err := fc.parse(buf, func(body []byte) error {
		got = append(got, string(body))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestFrameCodecOversizedBodyRejected(t *testing.T) {
	fc := newFrameCodec()
	buf := make([]byte, frameHeaderLen)
	buf[0] = 0x7F // declares a body length far beyond maxFrameBody
	_, err := fc.parse(buf, func([]byte) error { return nil })
	assert.Error(t, err)
}
