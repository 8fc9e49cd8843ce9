// Package periphadc exposes an opened pin as a periph.io analog input.
package periphadc

import (
	"context"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/physic"

	"aiobridge/aio"
)

// Defaults for a 12-bit converter on a 3.3V reference.
const (
	DefaultMaxRaw    = 4095
	DefaultReference = 3300 * physic.MilliVolt
)

// Pin adapts a *aio.PinHandle to analog.PinADC.
type Pin struct {
	h      *aio.PinHandle
	maxRaw int32
	ref    physic.ElectricPotential
}

var _ analog.PinADC = (*Pin)(nil)

// New wraps h. A zero maxRaw or ref selects the defaults.
func New(h *aio.PinHandle, maxRaw int32, ref physic.ElectricPotential) *Pin {
	if maxRaw <= 0 {
		maxRaw = DefaultMaxRaw
	}
	if ref == 0 {
		ref = DefaultReference
	}
	return &Pin{h: h, maxRaw: maxRaw, ref: ref}
}

func (p *Pin) String() string {
	return p.h.String()
}

// Halt drops any async subscription held by the handle.
func (p *Pin) Halt() error {
	p.h.Release()
	return p.h.Abort()
}

func (p *Pin) Name() string {
	if p.h.Name != "" {
		return p.h.Name
	}
	return p.h.Pin.String()
}

func (p *Pin) Number() int {
	return int(p.h.Pin)
}

func (p *Pin) Function() string {
	return "ADC"
}

func (p *Pin) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{V: p.ref, Raw: p.maxRaw}
}

// Read takes a blocking sample. Raw handles report 0V; only Raw is meaningful.
func (p *Pin) Read() (analog.Sample, error) {
	v, err := p.h.Read(context.Background())
	if err != nil {
		return analog.Sample{}, err
	}
	raw := int32(v)
	s := analog.Sample{Raw: raw}
	if !p.h.Raw {
		s.V = p.toVolts(raw)
	}
	return s, nil
}

func (p *Pin) toVolts(raw int32) physic.ElectricPotential {
	if raw > p.maxRaw {
		raw = p.maxRaw
	}
	return physic.ElectricPotential(int64(p.ref) * int64(raw) / int64(p.maxRaw))
}
