package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Timeouts for a single broker operation.
const (
	DefaultConnectTimeout = 3 * time.Second
	publishTimeout        = 2 * time.Second
	disconnectQuiesceMs   = 250
)

// PahoConfig configures a PahoClient.
type PahoConfig struct {
	BrokerURL      string // e.g. tcp://192.168.2.2:1883
	MeterID        string
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// PahoClient is a Client backed by the Eclipse paho client. Reconnection is
// left to Publisher, so paho's own auto-reconnect is disabled.
type PahoClient struct {
	client         paho.Client
	statusTopic    string
	connectTimeout time.Duration
	logger         *slog.Logger
}

// ClientID returns a broker client id unique to this process.
func ClientID(meterID string) string {
	return fmt.Sprintf("%s-%s-%s", TopicPrefix, meterID, uuid.NewString()[:8])
}

// NewPahoClient creates a client without connecting.
func NewPahoClient(cfg PahoConfig) *PahoClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &PahoClient{
		statusTopic:    StatusTopic(cfg.MeterID),
		connectTimeout: cfg.ConnectTimeout,
		logger:         cfg.Logger,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(ClientID(cfg.MeterID)).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetKeepAlive(30 * time.Second).
		SetWill(c.statusTopic, StatusOffline, 1, true).
		SetOnConnectHandler(func(pc paho.Client) {
			// Not waited on: handlers run on paho's goroutine.
			pc.Publish(c.statusTopic, 1, true, StatusOnline)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("mqtt connection lost", "error", err)
		})

	c.client = paho.NewClient(opts)
	return c
}

// Connect makes one connection attempt.
func (c *PahoClient) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.connectTimeout) {
		return fmt.Errorf("connect timeout after %v", c.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Publish sends payload at QoS 0.
func (c *PahoClient) Publish(topic string, payload []byte, retained bool) error {
	if len(payload) > MaxPayloadLen {
		return fmt.Errorf("payload too long: %d bytes", len(payload))
	}
	token := c.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports the paho connection state.
func (c *PahoClient) IsConnected() bool {
	return c.client.IsConnected()
}

// Close marks the device offline and disconnects.
func (c *PahoClient) Close() error {
	if c.client.IsConnected() {
		token := c.client.Publish(c.statusTopic, 1, true, StatusOffline)
		token.WaitTimeout(publishTimeout)
		c.client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}
