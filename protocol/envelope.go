package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies what an envelope asks for or answers.
type Kind uint8

// Requests flow from the requesting core, acknowledgements flow back.
const (
	KindOpen        Kind = 0x00
	KindReadRequest Kind = 0x01
	KindOpenAck     Kind = 0x10
	KindReadAck     Kind = 0x11
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindReadRequest:
		return "read"
	case KindOpenAck:
		return "open_ack"
	case KindReadAck:
		return "read_ack"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(k))
	}
}

// ErrMalformedEnvelope is returned when a payload cannot be decoded.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the message exchanged with the peripheral-owning core.
// Block marks requests whose caller is suspended waiting for the reply;
// the remote side echoes it on the acknowledgement.
type Envelope struct {
	ID    uint8
	Kind  Kind
	Block bool
	Pin   uint32
	Value uint32
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s(id=%d block=%t pin=%d value=%d)", e.Kind, e.ID, e.Block, e.Pin, e.Value)
}

// Encode writes the envelope as five VLQ fields: id, kind, block, pin, value.
func (e Envelope) Encode(output OutputBuffer) {
	EncodeVLQUint(output, uint32(e.ID))
	EncodeVLQUint(output, uint32(e.Kind))
	var block uint32
	if e.Block {
		block = 1
	}
	EncodeVLQUint(output, block)
	EncodeVLQUint(output, e.Pin)
	EncodeVLQUint(output, e.Value)
}

// Bytes returns the encoded envelope in a fresh slice.
func (e Envelope) Bytes() []byte {
	out := NewScratchOutput()
	e.Encode(out)
	return append([]byte(nil), out.Result()...)
}

// DecodeEnvelope parses a payload produced by Encode. Trailing bytes are an error.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	data := payload
	var fields [5]uint32
	for i := range fields {
		v, err := DecodeVLQUint(&data)
		if err != nil {
			return Envelope{}, errors.Wrapf(ErrMalformedEnvelope, "field %d: %v", i, err)
		}
		fields[i] = v
	}
	if len(data) != 0 {
		return Envelope{}, errors.Wrapf(ErrMalformedEnvelope, "%d trailing bytes", len(data))
	}
	if fields[0] > 0xFF || fields[1] > 0xFF || fields[2] > 1 {
		return Envelope{}, errors.Wrapf(ErrMalformedEnvelope, "field out of range: %v", fields[:3])
	}
	return Envelope{
		ID:    uint8(fields[0]),
		Kind:  Kind(fields[1]),
		Block: fields[2] == 1,
		Pin:   fields[3],
		Value: fields[4],
	}, nil
}
