// Package logic contains pure business logic for optical pulse counting.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical (debounced) state of the sensor.
type State string

const (
	StateActive   State = "ACTIVE"
	StateInactive State = "INACTIVE"
)

// StateOf converts a logical sensor level into a State.
func StateOf(active bool) State {
	if active {
		return StateActive
	}
	return StateInactive
}

// Input represents a single sample of the sensor, already corrected for polarity.
type Input struct {
	Active bool // true = meter indicator lit
	Time   time.Time
}
