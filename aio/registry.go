package aio

import "sync"

// Callback receives an asynchronous reading for the pin it was registered on.
type Callback func(pin PinID, value float64)

// registration is one async subscription. Fields are guarded by registry.mu.
type registration struct {
	pin    PinID
	owner  *PinHandle
	cb     Callback
	value  float64
	gen    uint64
	linked bool
	next   *registration
}

// registry is a singly linked set of registrations, at most one per pin.
type registry struct {
	mu    sync.Mutex
	head  *registration
	count int
	limit int
}

func newRegistry(limit int) *registry {
	return &registry{limit: limit}
}

func (r *registry) find(pin PinID) *registration {
	for reg := r.head; reg != nil; reg = reg.next {
		if reg.pin == pin {
			return reg
		}
	}
	return nil
}

// registerOrReuse installs cb for pin. An existing entry is taken over by owner and its
// previous callback is dropped; queued deliveries for it become stale.
func (r *registry) registerOrReuse(pin PinID, owner *PinHandle, cb Callback) (*registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg := r.find(pin); reg != nil {
		reg.owner = owner
		reg.cb = cb
		reg.gen++
		return reg, nil
	}

	if r.limit > 0 && r.count >= r.limit {
		return nil, ErrAllocationFailure
	}
	reg := &registration{pin: pin, owner: owner, cb: cb, linked: true, next: r.head}
	r.head = reg
	r.count++
	return reg, nil
}

// deliver records value on the pin's registration and returns the work item to run later.
// It reports false when nothing is registered or the callback is nil.
func (r *registry) deliver(pin PinID, value float64) (work, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := r.find(pin)
	if reg == nil || reg.cb == nil {
		return work{}, false
	}
	reg.value = value
	return work{reg: reg, gen: reg.gen, pin: pin, value: value}, true
}

// current returns the callback for w if its registration is still linked and unchanged.
func (r *registry) current(w work) (Callback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !w.reg.linked || w.reg.gen != w.gen || w.reg.cb == nil {
		return nil, false
	}
	return w.reg.cb, true
}

// release unlinks reg if owner still holds it, then clears it.
func (r *registry) release(reg *registration, owner *PinHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg == nil || !reg.linked || reg.owner != owner {
		return false
	}
	r.unlink(reg)
	return true
}

func (r *registry) unlink(target *registration) {
	if r.head == target {
		r.head = target.next
	} else {
		for reg := r.head; reg != nil; reg = reg.next {
			if reg.next == target {
				reg.next = target.next
				break
			}
		}
	}
	r.count--

	// unlinked first, then cleared
	target.linked = false
	target.next = nil
	target.cb = nil
	target.owner = nil
	target.gen++
}

func (r *registry) lookup(pin PinID) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := r.find(pin)
	if reg == nil {
		return 0, false
	}
	return reg.value, true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
