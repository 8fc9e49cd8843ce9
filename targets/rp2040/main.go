//go:build rp2040

// Firmware demo: core1 owns the ADC and answers requests over the SIO FIFO,
// core0 runs the engine and prints readings on the USB console.
package main

import (
	"context"
	"machine"
	"time"

	"go.uber.org/zap"

	"aiobridge/aio"
	"aiobridge/ipm"
	"aiobridge/remote"
)

const sampleInterval = time.Second

func main() {
	// Disable watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	machine.Core1.Start(core1Main)
	time.Sleep(100 * time.Millisecond)

	ch := ipm.NewFIFOChannel()
	engine := aio.NewEngine(ch, zap.NewNop().Sugar(), aio.Options{})
	go ch.Run(make(chan struct{}))

	ctx := context.Background()
	var handles []*aio.PinHandle
	for pin := aio.A0; pin <= aio.A4; pin++ {
		h, err := engine.Open(ctx, aio.OpenOptions{Device: aio.Uint32(0), Pin: aio.Uint32(uint32(pin))})
		if err != nil {
			println("open", pin.String(), "failed:", err.Error())
			continue
		}
		handles = append(handles, h)
	}

	// A4 is the temperature sensor; it goes through the async path.
	for {
		for _, h := range handles {
			if h.Pin == aio.A4 {
				h.ReadAsync(func(pin aio.PinID, v float64) {
					println("async", pin.String(), "=", uint32(v))
				})
				continue
			}
			v, err := h.Read(ctx)
			if err != nil {
				println("read", h.Pin.String(), "failed:", err.Error())
				continue
			}
			println(h.Pin.String(), "=", uint32(v))
		}
		engine.RunPending()
		led.Set(!led.Get())
		time.Sleep(sampleInterval)
	}
}

func core1Main() {
	ch := ipm.NewFIFOChannel()
	remote.NewResponder(ch, remote.NewADCSampler(), zap.NewNop().Sugar())
	for {
		ch.Poll()
	}
}
