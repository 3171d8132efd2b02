package messaging

import (
	"errors"
	"fmt"
	"time"

	"wican-bridge/internal/models"
	"wican-bridge/internal/utils"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrClientUnavailable means no broker client implementation is wired in.
// The supervising loop treats it as a permanent disable, not a retry.
var ErrClientUnavailable = errors.New("mqtt client unavailable")

// MessageHandler receives one inbound broker message.
type MessageHandler func(topic string, payload []byte)

// Client is the transport the subscriber drives. Pluggable so deployments
// without a broker client ship a factory returning ErrClientUnavailable
// instead of a conditional import.
type Client interface {
	Connect() error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Disconnect(quiesceMillis uint)
	IsConnected() bool
}

// ClientFactory builds a transport for the given settings snapshot. onLost is
// invoked once when an established connection drops.
type ClientFactory func(settings *models.BrokerSettings, clientID string, onLost func(error)) (Client, error)

// UnavailableClientFactory is the stand-in for deployments without a broker
// client library.
func UnavailableClientFactory() ClientFactory {
	return func(*models.BrokerSettings, string, func(error)) (Client, error) {
		return nil, ErrClientUnavailable
	}
}

type pahoClient struct {
	client mqtt.Client
}

// NewPahoFactory builds paho-backed transports. Reconnection is owned by the
// supervising loop, so paho's auto-reconnect stays off.
func NewPahoFactory() ClientFactory {
	return func(settings *models.BrokerSettings, clientID string, onLost func(error)) (Client, error) {
		scheme := "tcp"
		if settings.TLS {
			scheme = "ssl"
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, settings.Host, settings.Port))
		opts.SetClientID(clientID)
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
		opts.SetKeepAlive(60 * time.Second)
		opts.SetPingTimeout(10 * time.Second)
		opts.SetAutoReconnect(false)
		opts.SetConnectTimeout(15 * time.Second)

		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			utils.Logger.Errorf("MQTT connection lost: %v", err)
			onLost(err)
		})

		return &pahoClient{client: mqtt.NewClient(opts)}, nil
	}
}

func (c *pahoClient) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

func (c *pahoClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	callback := func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}
	if token := c.client.Subscribe(topic, qos, callback); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

func (c *pahoClient) Disconnect(quiesceMillis uint) {
	c.client.Disconnect(quiesceMillis)
}

func (c *pahoClient) IsConnected() bool {
	return c.client.IsConnected()
}
