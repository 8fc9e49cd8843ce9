package aio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PinID is the channel number the peripheral core uses for an analog input.
type PinID uint32

// The five analog inputs and their channel numbers.
const (
	A0 PinID = 10 + iota
	A1
	A2
	A3
	A4
)

// NumPins is the number of analog inputs backed by the pin store.
const NumPins = 5

// Valid reports whether p names one of A0..A4.
func (p PinID) Valid() bool {
	return p >= A0 && p <= A4
}

func (p PinID) index() int {
	return int(p - A0)
}

func (p PinID) String() string {
	if p.Valid() {
		return fmt.Sprintf("A%d", p.index())
	}
	return fmt.Sprintf("pin(%d)", uint32(p))
}

// ParsePin accepts either an input label ("A2", case-insensitive) or a raw channel number ("12").
// Raw numbers are not range checked.
func ParsePin(s string) (PinID, error) {
	s = strings.TrimSpace(s)
	if len(s) == 2 && (s[0] == 'A' || s[0] == 'a') {
		n, err := strconv.Atoi(s[1:])
		if err == nil && n >= 0 && n < NumPins {
			return A0 + PinID(n), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidPin, "parse %q", s)
	}
	return PinID(n), nil
}
