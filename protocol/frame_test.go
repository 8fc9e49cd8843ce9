package protocol

import (
	"errors"
	"testing"
)

func mustFrame(t *testing.T, seq uint8, env Envelope) []byte {
	t.Helper()
	msg, err := EncodeFrame(seq, env.Bytes())
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return msg
}

func TestEncodeFrameLayout(t *testing.T) {
	payload := []byte{1, 2, 3}
	msg, err := EncodeFrame(MessageDest, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if int(msg[MessagePositionLen]) != len(msg) {
		t.Errorf("length byte %d, frame is %d bytes", msg[MessagePositionLen], len(msg))
	}
	if msg[MessagePositionSeq] != MessageDest {
		t.Errorf("sequence byte 0x%02x", msg[MessagePositionSeq])
	}
	if msg[len(msg)-1] != MessageValueSync {
		t.Errorf("missing sync trailer")
	}
	crc := CRC16(msg[:len(msg)-MessageTrailerSize])
	if msg[len(msg)-3] != uint8(crc>>8) || msg[len(msg)-2] != uint8(crc) {
		t.Errorf("CRC trailer mismatch")
	}
}

func TestEncodeFrameTooLong(t *testing.T) {
	if _, err := EncodeFrame(MessageDest, make([]byte, MessageMax+1)); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("expected ErrFrameTooLong, got %v", err)
	}
	if _, err := EncodeFrame(MessageDest, make([]byte, MessageMax)); err != nil {
		t.Errorf("max payload should fit: %v", err)
	}
}

func TestNextSequenceWraps(t *testing.T) {
	if got := NextSequence(0x1F); got != MessageDest {
		t.Errorf("NextSequence(0x1F) = 0x%02x", got)
	}
	if got := NextSequence(MessageDest); got != 0x11 {
		t.Errorf("NextSequence(0x10) = 0x%02x", got)
	}
}

func TestFrameDecoderSplitChunks(t *testing.T) {
	env := Envelope{ID: MsgIDAIO, Kind: KindReadAck, Block: true, Pin: 10, Value: 512}
	stream := append(mustFrame(t, 0x10, env), mustFrame(t, 0x11, env)...)

	dec := NewFrameDecoder(0)
	var frames []Frame
	for _, b := range stream {
		frames = append(frames, dec.Feed([]byte{b})...)
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Sequence != 0x10 || frames[1].Sequence != 0x11 {
		t.Errorf("sequences: 0x%02x 0x%02x", frames[0].Sequence, frames[1].Sequence)
	}
	decoded, err := DecodeEnvelope(frames[1].Payload)
	if err != nil || decoded != env {
		t.Errorf("payload: %v %v", decoded, err)
	}
}

func TestFrameDecoderResyncAfterCorruption(t *testing.T) {
	good := Envelope{ID: MsgIDAIO, Kind: KindOpenAck, Pin: 12}
	bad := mustFrame(t, 0x10, good)
	bad[2] ^= 0xFF

	stream := append([]byte{0x00, 0x33}, bad...)
	stream = append(stream, mustFrame(t, 0x11, good)...)

	dec := NewFrameDecoder(0)
	frames := dec.Feed(stream)

	if len(frames) != 1 {
		t.Fatalf("expected 1 surviving frame, got %d", len(frames))
	}
	if frames[0].Sequence != 0x11 {
		t.Errorf("wrong frame survived: 0x%02x", frames[0].Sequence)
	}
	if dec.Resyncs() == 0 {
		t.Error("expected at least one resync")
	}
}

func TestFrameDecoderLargeFeed(t *testing.T) {
	env := Envelope{ID: MsgIDAIO, Kind: KindReadAck, Pin: 13, Value: 4095}
	var stream []byte
	for i := 0; i < 40; i++ {
		stream = append(stream, mustFrame(t, NextSequence(uint8(i)|MessageDest), env)...)
	}

	frames := NewFrameDecoder(0).Feed(stream)
	if len(frames) != 40 {
		t.Fatalf("expected 40 frames, got %d", len(frames))
	}
}
