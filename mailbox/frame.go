package mailbox

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	frameHeaderLen = 4
	maxFrameBody   = 64 << 20
)

// frameCodec frames one gob-encoded envelope per netio write: a 4-byte
// big-endian length prefix followed by a zstd-compressed body. A
// message-router wire format shared by many api tags needs an api field
// and a batched-frame variant to amortize per-frame overhead across many
// small messages; mailbox never multiplexes more than one wireEnvelope
// per frame and the envelope already carries its own destination
// mailbox id, so neither is needed here -- just length and body.
type frameCodec struct {
	encoders sync.Pool
	decoders sync.Pool
}

func newFrameCodec() *frameCodec {
	return &frameCodec{
		encoders: sync.Pool{New: func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
			return enc
		}},
		decoders: sync.Pool{New: func() any {
			dec, _ := zstd.NewReader(nil)
			return dec
		}},
	}
}

// encode compresses payload and returns it with its length header
// prepended, ready to hand to Connection.WriteExact.
func (fc *frameCodec) encode(payload []byte) ([]byte, error) {
	enc := fc.encoders.Get().(*zstd.Encoder)
	body := enc.EncodeAll(payload, nil)
	fc.encoders.Put(enc)

	if len(body) > maxFrameBody {
		return nil, fmt.Errorf("mailbox: frame body of %d bytes exceeds %d byte limit", len(body), maxFrameBody)
	}
	frame := make([]byte, frameHeaderLen+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[frameHeaderLen:], body)
	return frame, nil
}

// parse pulls as many complete frames as it can out of buf, invoking
// onFrame with each decompressed body in arrival order, and reports how
// many leading bytes of buf it consumed. A trailing partial frame is
// left unconsumed for the next delivery to complete -- callers pass the
// consumed count to Connection.AcceptBuffer, which leaves the remainder
// in the connection's peek buffer.
func (fc *frameCodec) parse(buf []byte, onFrame func(body []byte) error) (consumed int, err error) {
	for {
		rest := buf[consumed:]
		if len(rest) < frameHeaderLen {
			return consumed, nil
		}
		bodyLen := int(binary.BigEndian.Uint32(rest))
		if bodyLen < 0 || bodyLen > maxFrameBody {
			return consumed, fmt.Errorf("mailbox: frame declares %d byte body, exceeds %d byte limit", bodyLen, maxFrameBody)
		}
		if len(rest) < frameHeaderLen+bodyLen {
			return consumed, nil
		}
		compressed := rest[frameHeaderLen : frameHeaderLen+bodyLen]

		dec := fc.decoders.Get().(*zstd.Decoder)
		body, derr := dec.DecodeAll(compressed, nil)
		fc.decoders.Put(dec)
		if derr != nil {
			return consumed, fmt.Errorf("mailbox: decompress frame: %w", derr)
		}
		if err := onFrame(body); err != nil {
			return consumed, err
		}
		consumed += frameHeaderLen + bodyLen
	}
}
