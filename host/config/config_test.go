package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"aiobridge/aio"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aio.json")
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)
	return path
}

func TestReadExpandsEnvironment(t *testing.T) {
	t.Setenv("AIO_PORT", "/dev/ttyACM1")
	path := writeConfig(t, `{
		"transport": "serial",
		"serial": {"device": "${AIO_PORT}"},
		"pins": [{"name": "pot", "device": 0, "pin": "A0"}, {"device": 1, "pin": "13", "raw": true}],
		"mqtt": {"broker": "tcp://localhost:1883"}
	}`)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Serial.Device, test.ShouldEqual, "/dev/ttyACM1")
	test.That(t, cfg.Serial.Baud, test.ShouldEqual, 115200)
	test.That(t, cfg.Serial.ReadTimeoutMs, test.ShouldEqual, 100)
	test.That(t, cfg.Timeout(), test.ShouldEqual, 500*time.Millisecond)
	test.That(t, cfg.QueueSize, test.ShouldEqual, DefaultQueueSize)
	test.That(t, cfg.MaxSubscriptions, test.ShouldEqual, aio.DefaultMaxSubscriptions)
	test.That(t, cfg.MQTT.Topic, test.ShouldEqual, DefaultMQTTTopic)
	test.That(t, cfg.MQTT.ClientID, test.ShouldEqual, DefaultMQTTClientID)

	test.That(t, cfg.Pins, test.ShouldHaveLength, 2)
	opts := cfg.Pins[1].OpenOptions()
	test.That(t, *opts.Device, test.ShouldEqual, uint32(1))
	test.That(t, *opts.Pin, test.ShouldEqual, uint32(13))
	test.That(t, opts.Raw, test.ShouldBeTrue)

	sc := cfg.SerialPortConfig()
	test.That(t, sc.Device, test.ShouldEqual, "/dev/ttyACM1")
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"transport": "serial"}`, `error validating "config.serial": "device" is required`},
		{`{"transport": "carrier-pigeon"}`, `unknown transport`},
		{`{"transport": "simulated", "pins": [{"pin": "A0"}]}`, `error validating "config.pins.0": "device" is required`},
		{`{"transport": "simulated", "pins": [{"device": 0}]}`, `error validating "config.pins.0": "pin" is required`},
		{`{"transport": "simulated", "pins": [{"device": 0, "pin": "Z9"}]}`, `config.pins.0`},
		{`{"transport": "simulated", "mqtt": {}}`, `error validating "config.mqtt": "broker" is required`},
		{`{"transport": "simulated", "simulated_values": {"A7": 1}}`, `unknown pin`},
		{`{"transport": "simulated", "bogus": 1}`, `unknown field`},
	}
	for _, tc := range cases {
		_, err := FromReader(strings.NewReader(tc.body))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.want)
	}
}

func TestSimulatedDefaults(t *testing.T) {
	cfg, err := FromReader(strings.NewReader(`{"transport": "simulated", "simulated_values": {"A0": 512, "12": 7}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.SimulatedPins(), test.ShouldResemble, map[aio.PinID]uint32{aio.A0: 512, aio.A2: 7})
	test.That(t, cfg.EngineOptions().Timeout, test.ShouldEqual, 500*time.Millisecond)

	def := Default()
	test.That(t, def.Transport, test.ShouldEqual, TransportSimulated)
	test.That(t, def.Validate("config"), test.ShouldBeNil)
}
