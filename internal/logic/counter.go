package logic

import "time"

// PulseCounter counts confirmed rising edges of a debounced sensor.
// The count only ever grows; there is no reset short of a new process.
type PulseCounter struct {
	debouncer *Debouncer
	count     uint64
	lastPulse time.Time
}

// NewPulseCounter wraps a Debouncer with the given interval.
func NewPulseCounter(debounce time.Duration, start time.Time) *PulseCounter {
	return &PulseCounter{debouncer: NewDebouncer(debounce, start)}
}

// Process feeds one sample and reports whether it completed a pulse.
func (c *PulseCounter) Process(in Input) bool {
	c.debouncer.Update(in.Active, in.Time)
	if !c.debouncer.Rose() {
		return false
	}
	c.count++
	c.lastPulse = in.Time
	return true
}

// Count returns the number of pulses seen since startup.
func (c *PulseCounter) Count() uint64 {
	return c.count
}

// LastPulse returns the time of the most recent pulse, or the zero time.
func (c *PulseCounter) LastPulse() time.Time {
	return c.lastPulse
}

// State returns the current debounced sensor state.
func (c *PulseCounter) State() State {
	return StateOf(c.debouncer.State())
}

// Changed reports whether the last sample committed any transition.
func (c *PulseCounter) Changed() bool {
	return c.debouncer.Changed()
}
