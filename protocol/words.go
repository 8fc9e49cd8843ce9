package protocol

import "github.com/pkg/errors"

// WordPinMask bounds the pin field of a packed FIFO word.
const WordPinMask = 0x7FFF

// ErrPinTooLarge is returned when a pin does not fit the packed word layout.
var ErrPinTooLarge = errors.New("pin does not fit in 15 bits")

// PackWords packs an envelope into two 32-bit words for a word-wide hardware FIFO:
// word0 = id<<24 | kind<<16 | block<<15 | pin, word1 = value.
func PackWords(e Envelope) (uint32, uint32, error) {
	if e.Pin > WordPinMask {
		return 0, 0, errors.Wrapf(ErrPinTooLarge, "pin %d", e.Pin)
	}
	w0 := uint32(e.ID)<<24 | uint32(e.Kind)<<16 | e.Pin
	if e.Block {
		w0 |= 1 << 15
	}
	return w0, e.Value, nil
}

// UnpackWords is the inverse of PackWords.
func UnpackWords(w0, w1 uint32) Envelope {
	return Envelope{
		ID:    uint8(w0 >> 24),
		Kind:  Kind(w0 >> 16),
		Block: w0&(1<<15) != 0,
		Pin:   w0 & WordPinMask,
		Value: w1,
	}
}
