package protocol

import (
	"bytes"

	"github.com/pkg/errors"
)

// ErrFrameTooLong is returned when a payload does not fit in one frame.
var ErrFrameTooLong = errors.New("frame too long")

// Frame is one validated message pulled off a byte stream.
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// NextSequence advances a sequence byte, wrapping inside the destination nibble.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// EncodeFrame wraps payload with the header and trailer.
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil, errors.Wrapf(ErrFrameTooLong, "%d bytes (max %d)", msgLen, MessageLengthMax)
	}

	msg := make([]byte, 0, msgLen)
	msg = append(msg, uint8(msgLen), seq)
	msg = append(msg, payload...)

	crc := CRC16(msg)
	msg = append(msg, uint8(crc>>8), uint8(crc&0xFF), MessageValueSync)
	return msg, nil
}

// FrameDecoder reassembles frames from arbitrary stream chunks. A bad length, sequence,
// trailer or CRC drops synchronization; the decoder then skips to the next sync byte.
// Not safe for concurrent use.
type FrameDecoder struct {
	input        *FifoBuffer
	synchronized bool
	resyncs      int
}

// NewFrameDecoder returns a decoder buffering up to capacity bytes of partial input.
func NewFrameDecoder(capacity int) *FrameDecoder {
	if capacity < 2*MessageLengthMax {
		capacity = 2 * MessageLengthMax
	}
	return &FrameDecoder{
		input:        NewFifoBuffer(capacity),
		synchronized: true,
	}
}

// Resyncs returns how many times the decoder lost synchronization.
func (d *FrameDecoder) Resyncs() int {
	return d.resyncs
}

// Feed consumes data and returns every frame it completed.
func (d *FrameDecoder) Feed(data []byte) []Frame {
	var frames []Frame
	for {
		n := d.input.Write(data)
		data = data[n:]
		frames = d.parse(frames)
		if len(data) == 0 {
			return frames
		}
		if n == 0 && d.input.Free() == 0 {
			d.input.Reset()
			d.desync()
		}
	}
}

func (d *FrameDecoder) desync() {
	d.synchronized = false
	d.resyncs++
}

func (d *FrameDecoder) parse(frames []Frame) []Frame {
	data := d.input.Data()

	for len(data) > 0 {
		if !d.synchronized {
			syncPos := bytes.IndexByte(data, MessageValueSync)
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			d.synchronized = true
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}

		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.desync()
			continue
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])
		frames = append(frames, Frame{Sequence: seq, Payload: payload})
		data = data[msgLen:]
	}

	consumed := d.input.Available() - len(data)
	if consumed > 0 {
		d.input.Pop(consumed)
	}
	return frames
}
