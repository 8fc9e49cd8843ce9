package aio

import (
	"context"
	"sync"
	"unicode/utf8"
)

// MaxNameLen is the longest name a handle keeps, in bytes.
const MaxNameLen = 31

// OpenOptions describes the pin to open. Device and Pin are required.
type OpenOptions struct {
	Device *uint32
	Pin    *uint32
	Name   string
	Raw    bool
}

// Uint32 returns a pointer to v, for filling OpenOptions.
func Uint32(v uint32) *uint32 {
	return &v
}

// PinHandle is an opened analog pin. The handle owns at most one async registration,
// which Release drops.
type PinHandle struct {
	engine *Engine

	Device uint32
	Pin    PinID
	Name   string
	// Raw is carried for callers; readings are never scaled.
	Raw bool

	mu  sync.Mutex
	reg *registration
}

// Read returns a fresh sample, blocking until the reply or the engine timeout.
func (h *PinHandle) Read(ctx context.Context) (float64, error) {
	return h.engine.Read(ctx, h.Pin)
}

// ReadAsync requests a sample and arranges for cb to run with it.
func (h *PinHandle) ReadAsync(cb Callback) error {
	reg, err := h.engine.readAsync(h.Pin, h, cb)
	if reg != nil {
		h.mu.Lock()
		h.reg = reg
		h.mu.Unlock()
	}
	return err
}

// Abort does nothing.
func (h *PinHandle) Abort() error {
	return h.engine.Abort(h.Pin)
}

// Close does nothing; the subscription stays until Release.
func (h *PinHandle) Close() error {
	return h.engine.Close(h.Pin)
}

// Release drops the handle's async registration. Queued readings for it are not delivered.
// It is safe to call more than once.
func (h *PinHandle) Release() {
	h.mu.Lock()
	reg := h.reg
	h.reg = nil
	h.mu.Unlock()

	if h.engine.reg.release(reg, h) {
		h.engine.logger.Debugw("released subscription", "pin", h.Pin, "name", h.Name)
	}
}

func (h *PinHandle) String() string {
	if h.Name != "" {
		return h.Name + "@" + h.Pin.String()
	}
	return h.Pin.String()
}

func truncateName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}
	cut := MaxNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
