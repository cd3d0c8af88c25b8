// Package indicator drives the status LED with timed pulses.
// Like package logic, it never sleeps: Check must be polled every loop
// iteration and time is passed in by the caller.
package indicator

import (
	"log/slog"
	"time"

	"github.com/sweeney/smartmeter/internal/gpio"
)

// ProvisioningDuty is the dimmed level shown while the device is in
// provisioning mode, distinguishable from the full-brightness pulse blink.
const ProvisioningDuty = 0.2

// Blinker latches an output on for a duration and turns it off once Check
// observes that the duration has elapsed.
type Blinker struct {
	out    gpio.Output
	logger *slog.Logger
	on     bool
	offAt  time.Time
}

// NewBlinker creates a Blinker. out may be nil until SetPin is called.
func NewBlinker(out gpio.Output, logger *slog.Logger) *Blinker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blinker{out: out, logger: logger}
}

// SetPin selects the output to drive.
func (b *Blinker) SetPin(out gpio.Output) {
	b.out = out
}

// SetOnForTime turns the output on until d has elapsed after now.
// Calling it while already lit extends the deadline.
func (b *Blinker) SetOnForTime(d time.Duration, now time.Time) {
	b.offAt = now.Add(d)
	if !b.on {
		b.write(true)
		b.on = true
	}
}

// Check turns the output off once the timed period has passed.
func (b *Blinker) Check(now time.Time) {
	if b.on && !now.Before(b.offAt) {
		b.write(false)
		b.on = false
	}
}

// On reports whether a timed pulse is in progress.
func (b *Blinker) On() bool {
	return b.on
}

// Dim shows the provisioning level. It cancels any pending pulse.
func (b *Blinker) Dim() {
	b.on = false
	if b.out == nil {
		return
	}
	if err := b.out.SetDuty(ProvisioningDuty); err != nil {
		b.logger.Warn("indicator write failed", "error", err)
	}
}

// Off turns the output off and cancels any pending pulse.
func (b *Blinker) Off() {
	b.on = false
	b.write(false)
}

func (b *Blinker) write(on bool) {
	if b.out == nil {
		return
	}
	// The LED has no failure mode worth acting on; log and carry on.
	if err := b.out.Set(on); err != nil {
		b.logger.Warn("indicator write failed", "error", err)
	}
}
