//go:build rp2040

package ipm

import (
	"device/arm"
	"device/rp"
	"sync"
	"time"

	"aiobridge/protocol"
)

// fifoPushSpins bounds how long Send waits for room in the 8-word hardware FIFO.
const fifoPushSpins = 1000

// FIFOChannel is the on-chip link between the two RP2040 cores over the SIO mailboxes.
// Each envelope occupies two words (see protocol.PackWords). The build must leave the
// SIO FIFO to the application, i.e. no multicore scheduler.
//
// The core that owns the hook calls Poll from its own loop; Run does that for core0.
type FIFOChannel struct {
	mu      sync.Mutex
	handler Handler
	closed  bool

	// A word0 waiting for its value word.
	pending    uint32
	hasPending bool
}

// NewFIFOChannel drains any stale words and returns the channel.
func NewFIFOChannel() *FIFOChannel {
	for fifoValid() {
		rp.SIO.FIFO_RD.Get()
	}
	return &FIFOChannel{}
}

// Send pushes both words of env, giving up with ErrQueueFull if the peer is not draining.
func (f *FIFOChannel) Send(env protocol.Envelope) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrNotReady
	}

	w0, w1, err := protocol.PackWords(env)
	if err != nil {
		return err
	}
	for _, w := range [2]uint32{w0, w1} {
		spins := 0
		for !fifoReady() {
			if spins++; spins > fifoPushSpins {
				return ErrQueueFull
			}
			time.Sleep(time.Microsecond)
		}
		rp.SIO.FIFO_WR.Set(w)
		arm.Asm("sev")
	}
	return nil
}

// OnReceive installs the receive hook.
func (f *FIFOChannel) OnReceive(h Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Poll delivers every complete envelope currently in the receive FIFO and reports how many.
func (f *FIFOChannel) Poll() int {
	n := 0
	for fifoValid() {
		w := rp.SIO.FIFO_RD.Get()
		if !f.hasPending {
			f.pending, f.hasPending = w, true
			continue
		}
		f.hasPending = false
		env := protocol.UnpackWords(f.pending, w)

		f.mu.Lock()
		h := f.handler
		f.mu.Unlock()
		if h != nil {
			h(env)
		}
		n++
	}
	return n
}

// Run polls until stop is closed, sleeping between empty polls.
func (f *FIFOChannel) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if f.Poll() == 0 {
			time.Sleep(100 * time.Microsecond)
		}
	}
}

// Close makes further sends fail. The hardware FIFO itself stays up.
func (f *FIFOChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func fifoValid() bool {
	return rp.SIO.FIFO_ST.Get()&rp.SIO_FIFO_ST_VLD != 0
}

func fifoReady() bool {
	return rp.SIO.FIFO_ST.Get()&rp.SIO_FIFO_ST_RDY != 0
}
