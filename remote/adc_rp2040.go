//go:build rp2040

package remote

import (
	"device/rp"
	"machine"
	"sync"

	"github.com/pkg/errors"

	"aiobridge/aio"
)

// tempChannel is the ADC input wired to the on-die temperature sensor.
const tempChannel = 4

// ADCSampler reads A0..A3 from GPIO26..29 and A4 from the temperature sensor.
// Readings are raw 12-bit values (0-4095).
type ADCSampler struct {
	mu       sync.Mutex
	channels [tempChannel]*machine.ADC
}

// NewADCSampler powers up the ADC. Channels are configured on first use.
func NewADCSampler() *ADCSampler {
	machine.InitADC()
	return &ADCSampler{}
}

func (s *ADCSampler) Sample(pin aio.PinID) (uint32, error) {
	if !pin.Valid() {
		return 0, errors.Wrapf(ErrNoChannel, "%s", pin)
	}
	ch := int(pin - aio.A0)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ch == tempChannel {
		return uint32(rawInternalTemp()), nil
	}
	adc := s.channels[ch]
	if adc == nil {
		adc = &machine.ADC{Pin: [tempChannel]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}[ch]}
		if err := adc.Configure(machine.ADCConfig{}); err != nil {
			return 0, errors.Wrapf(err, "configure ADC%d", ch)
		}
		s.channels[ch] = adc
	}
	// machine.ADC.Get scales to 16 bits
	return uint32(adc.Get() >> 4), nil
}

func rawInternalTemp() uint16 {
	if rp.ADC.CS.Get()&rp.ADC_CS_EN == 0 {
		machine.InitADC()
	}
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
	rp.ADC.CS.ReplaceBits(uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos, rp.ADC_CS_AINSEL_Msk, 0)
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}
	return uint16(rp.ADC.RESULT.Get())
}
