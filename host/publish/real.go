package publish

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topic  string
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID, topic string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "connect to broker")
	}

	return &RealPublisher{
		client: client,
		topic:  topic,
	}, nil
}

// Publish sends a reading to the pin's topic.
func (p *RealPublisher) Publish(r Reading) error {
	payload, err := FormatPayload(r)
	if err != nil {
		return errors.Wrap(err, "format payload")
	}

	// QoS 0, not retained
	token := p.client.Publish(TopicFor(p.topic, r.Pin), 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "publish")
	}
	return nil
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
