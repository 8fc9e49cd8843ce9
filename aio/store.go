package aio

import "sync"

// pinStore holds the latest blocking-read value per pin.
type pinStore struct {
	mu     sync.Mutex
	values [NumPins]float64
}

func (s *pinStore) set(pin PinID, v float64) bool {
	if !pin.Valid() {
		return false
	}
	s.mu.Lock()
	s.values[pin.index()] = v
	s.mu.Unlock()
	return true
}

func (s *pinStore) get(pin PinID) (float64, bool) {
	if !pin.Valid() {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[pin.index()], true
}
