package periphadc

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.viam.com/test"
	"periph.io/x/conn/v3/physic"

	"aiobridge/aio"
	"aiobridge/ipm"
	"aiobridge/logging"
	"aiobridge/remote"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openPin(t *testing.T, values map[aio.PinID]uint32, opts aio.OpenOptions) (*aio.PinHandle, *remote.Responder, func()) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	host, peripheral := ipm.Pipe(4, logger)
	r := remote.NewResponder(peripheral, remote.NewStaticSampler(values), logger)
	e := aio.NewEngine(host, logger, aio.Options{Timeout: time.Second})

	h, err := e.Open(context.Background(), opts)
	test.That(t, err, test.ShouldBeNil)
	return h, r, func() { ipm.CloseAll(host, peripheral) }
}

func TestReadScalesToVolts(t *testing.T) {
	h, _, done := openPin(t, map[aio.PinID]uint32{aio.A1: 4095}, aio.OpenOptions{Device: aio.Uint32(0), Pin: aio.Uint32(11), Name: "vbus"})
	defer done()

	p := New(h, 0, 0)
	s, err := p.Read()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Raw, test.ShouldEqual, int32(4095))
	test.That(t, s.V, test.ShouldEqual, 3300*physic.MilliVolt)

	test.That(t, p.Name(), test.ShouldEqual, "vbus")
	test.That(t, p.Number(), test.ShouldEqual, 11)
	test.That(t, p.Function(), test.ShouldEqual, "ADC")
	test.That(t, p.String(), test.ShouldEqual, "vbus@A1")

	lo, hi := p.Range()
	test.That(t, lo.Raw, test.ShouldEqual, int32(0))
	test.That(t, hi.Raw, test.ShouldEqual, int32(DefaultMaxRaw))
	test.That(t, hi.V, test.ShouldEqual, DefaultReference)
	test.That(t, p.Halt(), test.ShouldBeNil)
}

func TestReadRawLeavesVoltsUnset(t *testing.T) {
	h, _, done := openPin(t, map[aio.PinID]uint32{aio.A0: 100}, aio.OpenOptions{Device: aio.Uint32(0), Pin: aio.Uint32(10), Raw: true})
	defer done()

	p := New(h, 1023, 5*physic.Volt)
	s, err := p.Read()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Raw, test.ShouldEqual, int32(100))
	test.That(t, s.V, test.ShouldEqual, physic.ElectricPotential(0))
	test.That(t, p.Name(), test.ShouldEqual, "A0")
}

func TestReadPropagatesErrors(t *testing.T) {
	h, r, done := openPin(t, nil, aio.OpenOptions{Device: aio.Uint32(0), Pin: aio.Uint32(12)})
	defer done()

	r.SetDropReplies(true)
	_, err := New(h, 0, 0).Read()
	test.That(t, errors.Is(err, aio.ErrTimeout), test.ShouldBeTrue)
}
