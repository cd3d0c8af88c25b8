// Package store persists the device configuration record (broker address,
// broker port and meter id) as a small JSON document.
package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Field limits in bytes. The portal advertises one more byte per field for
// the terminator the original firmware buffers carried.
const (
	MaxServerLen  = 39
	MaxPortLen    = 5
	MaxMeterIDLen = 9
)

// Defaults used when no valid record is stored.
const (
	DefaultServer  = "192.168.2.2"
	DefaultPort    = "1883"
	DefaultMeterID = "104564"
)

// ErrFieldTooLong is returned when a field exceeds its limit.
var ErrFieldTooLong = errors.New("field too long")

// ErrInvalidPort is returned when the port is not a number in 1..65535.
var ErrInvalidPort = errors.New("invalid port")

// ErrInvalidMeterID is returned when the meter id cannot form a single
// MQTT topic level.
var ErrInvalidMeterID = errors.New("invalid meter id")

// DeviceConfig is the persisted device record. Its fields are only reachable
// through NewDeviceConfig and Default, so a value always satisfies the
// length limits and has no empty field.
type DeviceConfig struct {
	server  string
	port    string
	meterID string
}

// Default returns the built-in configuration.
func Default() DeviceConfig {
	return DeviceConfig{
		server:  DefaultServer,
		port:    DefaultPort,
		meterID: DefaultMeterID,
	}
}

// NewDeviceConfig validates the three fields. An empty field takes its
// default value.
func NewDeviceConfig(server, port, meterID string) (DeviceConfig, error) {
	if server == "" {
		server = DefaultServer
	}
	if port == "" {
		port = DefaultPort
	}
	if meterID == "" {
		meterID = DefaultMeterID
	}

	if err := checkLen("server", server, MaxServerLen); err != nil {
		return DeviceConfig{}, err
	}
	if err := checkLen("port", port, MaxPortLen); err != nil {
		return DeviceConfig{}, err
	}
	if err := checkLen("meter id", meterID, MaxMeterIDLen); err != nil {
		return DeviceConfig{}, err
	}
	if !isDigits(port) {
		return DeviceConfig{}, fmt.Errorf("%w %q", ErrInvalidPort, port)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return DeviceConfig{}, fmt.Errorf("%w %q", ErrInvalidPort, port)
	}
	if err := checkMeterID(meterID); err != nil {
		return DeviceConfig{}, err
	}

	return DeviceConfig{server: server, port: port, meterID: meterID}, nil
}

func checkLen(name, v string, max int) error {
	if len(v) > max {
		return fmt.Errorf("%s: %w (%d > %d bytes)", name, ErrFieldTooLong, len(v), max)
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// checkMeterID rejects the MQTT wildcards, the level separator and control
// bytes. The id is embedded in the publish and will topics, where a broker
// drops the session on any of them.
func checkMeterID(id string) error {
	if i := strings.IndexAny(id, "+#/"); i >= 0 {
		return fmt.Errorf("%w %q: %q not allowed", ErrInvalidMeterID, id, id[i])
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] == 0x7f {
			return fmt.Errorf("%w %q: control byte 0x%02x", ErrInvalidMeterID, id, id[i])
		}
	}
	return nil
}

// Server returns the broker host name or address.
func (c DeviceConfig) Server() string { return c.server }

// Port returns the broker port as entered.
func (c DeviceConfig) Port() string { return c.port }

// MeterID returns the device identifier used in topics.
func (c DeviceConfig) MeterID() string { return c.meterID }

// BrokerURL renders the paho broker URL.
func (c DeviceConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%s", c.server, c.port)
}

// IsZero reports whether c was never initialised.
func (c DeviceConfig) IsZero() bool {
	return c == DeviceConfig{}
}

// String is used in log lines.
func (c DeviceConfig) String() string {
	return fmt.Sprintf("server=%s port=%s meter_id=%s", c.server, c.port, c.meterID)
}
