// Package publish forwards analog readings to an MQTT broker.
package publish

import (
	"encoding/json"
	"time"

	"aiobridge/aio"
)

// Publisher publishes readings.
type Publisher interface {
	// Publish sends one reading. Failures are returned, never fatal.
	Publish(r Reading) error

	// Close disconnects from the broker.
	Close() error
}

// Reading is one sample taken from a pin.
type Reading struct {
	Timestamp time.Time
	Name      string
	Pin       aio.PinID
	Value     float64
	Raw       bool
}

// Payload is the JSON message body.
type Payload struct {
	Reading ReadingPayload `json:"reading"`
}

// ReadingPayload contains the reading details.
type ReadingPayload struct {
	Timestamp string  `json:"timestamp"`
	Name      string  `json:"name,omitempty"`
	Pin       string  `json:"pin"`
	Channel   uint32  `json:"channel"`
	Value     float64 `json:"value"`
	Raw       bool    `json:"raw"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r Reading) ([]byte, error) {
	return json.Marshal(Payload{
		Reading: ReadingPayload{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Name:      r.Name,
			Pin:       r.Pin.String(),
			Channel:   uint32(r.Pin),
			Value:     r.Value,
			Raw:       r.Raw,
		},
	})
}

// TopicFor returns the per-pin topic under base, e.g. "aiobridge/readings/A0".
func TopicFor(base string, pin aio.PinID) string {
	return base + "/" + pin.String()
}
