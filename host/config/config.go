// Package config loads the aio-host configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"aiobridge/aio"
	"aiobridge/host/serial"
)

// Supported transports.
const (
	TransportSerial    = "serial"
	TransportSimulated = "simulated"
)

// Defaults applied to zero-valued fields.
const (
	DefaultTimeoutMillis = 500
	DefaultQueueSize     = 16
	DefaultMQTTTopic     = "aiobridge/readings"
	DefaultMQTTClientID  = "aio-host"
)

// A Config describes how aio-host reaches the peripheral board and what it reads.
type Config struct {
	Transport        string            `json:"transport"`
	Serial           SerialConfig      `json:"serial"`
	TimeoutMillis    int               `json:"timeout_ms"`
	QueueSize        int               `json:"queue_size"`
	MaxSubscriptions int               `json:"max_subscriptions"`
	Pins             []PinConfig       `json:"pins"`
	MQTT             *MQTTConfig       `json:"mqtt,omitempty"`
	SimulatedValues  map[string]uint32 `json:"simulated_values,omitempty"`
}

// SerialConfig selects the serial device.
type SerialConfig struct {
	Device        string `json:"device"`
	Baud          int    `json:"baud"`
	ReadTimeoutMs int    `json:"read_timeout_ms"`
}

// PinConfig describes one pin to open at startup. Pin accepts "A0".."A4" or a channel number.
type PinConfig struct {
	Name   string  `json:"name"`
	Device *uint32 `json:"device"`
	Pin    string  `json:"pin"`
	Raw    bool    `json:"raw"`
}

// MQTTConfig enables publishing of async readings.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
}

// Read reads a config from filePath, expanding ${VAR} references from the environment.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", filePath)
	}
	return FromReader(bytes.NewReader(buf))
}

// FromReader decodes, defaults and validates a config. Environment expansion is not applied.
func FromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a simulated configuration with no pins.
func Default() *Config {
	cfg := &Config{Transport: TransportSimulated}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (config *Config) ApplyDefaults() {
	if config.Transport == "" {
		config.Transport = TransportSerial
	}
	def := serial.DefaultConfig(config.Serial.Device)
	if config.Serial.Baud == 0 {
		config.Serial.Baud = def.Baud
	}
	if config.Serial.ReadTimeoutMs == 0 {
		config.Serial.ReadTimeoutMs = def.ReadTimeout
	}
	if config.TimeoutMillis == 0 {
		config.TimeoutMillis = DefaultTimeoutMillis
	}
	if config.QueueSize == 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.MaxSubscriptions == 0 {
		config.MaxSubscriptions = aio.DefaultMaxSubscriptions
	}
	if config.MQTT != nil {
		if config.MQTT.Topic == "" {
			config.MQTT.Topic = DefaultMQTTTopic
		}
		if config.MQTT.ClientID == "" {
			config.MQTT.ClientID = DefaultMQTTClientID
		}
	}
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	switch config.Transport {
	case TransportSerial:
		if err := config.Serial.Validate(fmt.Sprintf("%s.%s", path, "serial")); err != nil {
			return err
		}
	case TransportSimulated:
	default:
		return NewValidationError(path, errors.Errorf("unknown transport %q", config.Transport))
	}
	if config.TimeoutMillis < 0 {
		return NewValidationError(path, errors.New("timeout_ms must not be negative"))
	}
	if config.QueueSize < 0 || config.MaxSubscriptions < 0 {
		return NewValidationError(path, errors.New("queue_size and max_subscriptions must not be negative"))
	}
	for idx, conf := range config.Pins {
		if err := conf.Validate(fmt.Sprintf("%s.%s.%d", path, "pins", idx)); err != nil {
			return err
		}
	}
	if config.MQTT != nil {
		if err := config.MQTT.Validate(fmt.Sprintf("%s.%s", path, "mqtt")); err != nil {
			return err
		}
	}
	for name := range config.SimulatedValues {
		pin, err := aio.ParsePin(name)
		if err != nil || !pin.Valid() {
			return NewValidationError(fmt.Sprintf("%s.%s", path, "simulated_values"), errors.Errorf("unknown pin %q", name))
		}
	}
	return nil
}

// Timeout returns the blocking request timeout.
func (config *Config) Timeout() time.Duration {
	return time.Duration(config.TimeoutMillis) * time.Millisecond
}

// SerialPortConfig converts to the serial package's config.
func (config *Config) SerialPortConfig() *serial.Config {
	return &serial.Config{
		Device:      config.Serial.Device,
		Baud:        config.Serial.Baud,
		ReadTimeout: config.Serial.ReadTimeoutMs,
	}
}

// EngineOptions converts to aio.Options.
func (config *Config) EngineOptions() aio.Options {
	return aio.Options{
		Timeout:          config.Timeout(),
		QueueSize:        config.QueueSize,
		MaxSubscriptions: config.MaxSubscriptions,
	}
}

// SimulatedPins returns SimulatedValues keyed by pin.
func (config *Config) SimulatedPins() map[aio.PinID]uint32 {
	values := make(map[aio.PinID]uint32, len(config.SimulatedValues))
	for name, v := range config.SimulatedValues {
		if pin, err := aio.ParsePin(name); err == nil {
			values[pin] = v
		}
	}
	return values
}

// Validate ensures all parts of the config are valid.
func (config *SerialConfig) Validate(path string) error {
	if config.Device == "" {
		return NewFieldRequiredError(path, "device")
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (config *PinConfig) Validate(path string) error {
	if config.Device == nil {
		return NewFieldRequiredError(path, "device")
	}
	if config.Pin == "" {
		return NewFieldRequiredError(path, "pin")
	}
	if _, err := aio.ParsePin(config.Pin); err != nil {
		return NewValidationError(path, err)
	}
	return nil
}

// OpenOptions converts to aio.OpenOptions. The config must have been validated.
func (config *PinConfig) OpenOptions() aio.OpenOptions {
	pin, _ := aio.ParsePin(config.Pin)
	return aio.OpenOptions{
		Device: config.Device,
		Pin:    aio.Uint32(uint32(pin)),
		Name:   config.Name,
		Raw:    config.Raw,
	}
}

// Validate ensures all parts of the config are valid.
func (config *MQTTConfig) Validate(path string) error {
	if config.Broker == "" {
		return NewFieldRequiredError(path, "broker")
	}
	return nil
}

// NewValidationError wraps err with the path of the config section that failed.
func NewValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewFieldRequiredError reports a missing required field.
func NewFieldRequiredError(path, field string) error {
	return NewValidationError(path, errors.Errorf("%q is required", field))
}
