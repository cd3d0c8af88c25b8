package logic

import "time"

// Debouncer filters a noisy digital input with a single minimum-stable-time
// interval. It is polled: Update must be called once per loop iteration and
// Changed reports true for exactly the one call that committed a transition.
//
// A raw reading is committed on the first Update at which it has been
// unchanged for at least Interval, so detection latency is bounded below by
// Interval and above by Interval plus one poll period.
type Debouncer struct {
	interval   time.Duration
	lastRaw    bool
	stable     bool
	lastChange time.Time
	changed    bool
}

// NewDebouncer creates a Debouncer whose stable and raw values start low.
// start is the reference time for the first stability window.
func NewDebouncer(interval time.Duration, start time.Time) *Debouncer {
	return &Debouncer{
		interval:   interval,
		lastChange: start,
	}
}

// Update feeds one raw sample taken at now.
func (d *Debouncer) Update(raw bool, now time.Time) {
	d.changed = false

	if raw != d.lastRaw {
		d.lastRaw = raw
		d.lastChange = now
	}

	if now.Sub(d.lastChange) >= d.interval && d.stable != d.lastRaw {
		d.stable = d.lastRaw
		d.changed = true
	}
}

// Changed reports whether the last Update committed a transition.
func (d *Debouncer) Changed() bool {
	return d.changed
}

// State returns the current debounced value.
func (d *Debouncer) State() bool {
	return d.stable
}

// Interval returns the configured stability interval.
func (d *Debouncer) Interval() time.Duration {
	return d.interval
}

// Rose reports whether the last Update committed a transition to the active level.
func (d *Debouncer) Rose() bool {
	return d.changed && d.stable
}
