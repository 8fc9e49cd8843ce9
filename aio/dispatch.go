package aio

import (
	"context"
)

// work is one deferred callback invocation.
type work struct {
	reg   *registration
	gen   uint64
	pin   PinID
	value float64
}

// enqueue hands w to the owning task without blocking. A full queue drops the reading.
func (e *Engine) enqueue(w work) {
	select {
	case e.work <- w:
	default:
		e.logger.Warnw("work queue full, dropping async reading", "pin", w.pin, "value", w.value)
	}
}

func (e *Engine) run(w work) {
	cb, ok := e.reg.current(w)
	if !ok {
		e.logger.Debugw("skipping stale async reading", "pin", w.pin)
		return
	}
	cb(w.pin, w.value)
}

// Serve runs async callbacks in arrival order until ctx is done.
func (e *Engine) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-e.work:
			e.run(w)
		}
	}
}

// RunPending runs the callbacks already queued and returns how many items it took.
func (e *Engine) RunPending() int {
	n := 0
	for {
		select {
		case w := <-e.work:
			e.run(w)
			n++
		default:
			return n
		}
	}
}
