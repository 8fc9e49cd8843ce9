package publish

import "sync"

// FakePublisher records published readings for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Readings contains all readings that were published.
	Readings []Reading

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the reading.
func (f *FakePublisher) Publish(r Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(r)
	if err != nil {
		return err
	}
	f.Readings = append(f.Readings, r)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Published returns a copy of the recorded readings.
func (f *FakePublisher) Published() []Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reading(nil), f.Readings...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
