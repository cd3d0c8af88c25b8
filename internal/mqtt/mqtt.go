// Package mqtt publishes the pulse count to an MQTT broker with abstraction for testing.
package mqtt

import (
	"fmt"
	"strconv"
)

// TopicPrefix is the root of every topic this device publishes to.
const TopicPrefix = "smartmeter"

// MaxPayloadLen bounds the count payload.
const MaxPayloadLen = 64

// Availability payloads published on StatusTopic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Client is the broker connection used by Publisher.
type Client interface {
	// Connect makes one synchronous connection attempt, bounded by the
	// client's connect timeout.
	Connect() error

	// Publish sends payload to topic. It may be called only while connected.
	Publish(topic string, payload []byte, retained bool) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// Topic returns the count topic for a meter id.
func Topic(meterID string) string {
	return fmt.Sprintf("%s/%s/Wh", TopicPrefix, meterID)
}

// StatusTopic returns the availability topic for a meter id.
func StatusTopic(meterID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, meterID)
}

// FormatPayload renders the count as decimal ASCII.
func FormatPayload(count uint64) []byte {
	return strconv.AppendUint(make([]byte, 0, 20), count, 10)
}
