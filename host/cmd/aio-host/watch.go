package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"aiobridge/aio"
	"aiobridge/host/publish"
)

// watcher re-requests every pin on each tick; readings arrive through the engine's callbacks.
type watcher struct {
	handles []*aio.PinHandle
	pub     publish.Publisher
	out     io.Writer
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func (w *watcher) run(ctx context.Context, e *aio.Engine, interval time.Duration) error {
	served := make(chan error, 1)
	go func() { served <- e.Serve(ctx) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.request()
	for {
		select {
		case <-ctx.Done():
			<-served
			return nil
		case <-ticker.C:
			w.request()
		}
	}
}

func (w *watcher) request() {
	for _, h := range w.handles {
		if err := h.ReadAsync(func(_ aio.PinID, v float64) { w.deliver(h, v) }); err != nil {
			w.logger.Warnw("async read failed", "pin", h.Pin, "error", err)
		}
	}
}

func (w *watcher) deliver(h *aio.PinHandle, v float64) {
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	fmt.Fprintf(w.out, "%s = %g\n", h, v)
	if w.pub == nil {
		return
	}
	r := publish.Reading{Timestamp: now(), Name: h.Name, Pin: h.Pin, Value: v, Raw: h.Raw}
	if err := w.pub.Publish(r); err != nil {
		w.logger.Warnw("publish failed", "pin", h.Pin, "error", err)
	}
}
