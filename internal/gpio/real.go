//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip      *gpiocdev.Chip
	sensorPin *gpiocdev.Line
	buttonPin *gpiocdev.Line
}

// NewRealReader requests the sensor and button lines.
// The button is wired to ground with the internal pull-up enabled, so it is
// requested active-low and reads 1 while pressed.
func NewRealReader(pins Pins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", pins.Chip, err)
	}

	sensorOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if pins.SensorActiveLow {
		sensorOpts = append(sensorOpts, gpiocdev.AsActiveLow)
	}
	sensorLine, err := chip.RequestLine(pins.Sensor, sensorOpts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", pins.Sensor, err)
	}

	buttonLine, err := chip.RequestLine(pins.Button, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		sensorLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request button pin %d: %w", pins.Button, err)
	}

	return &RealReader{
		chip:      chip,
		sensorPin: sensorLine,
		buttonPin: buttonLine,
	}, nil
}

// Read returns the logical states of the sensor and the button.
func (r *RealReader) Read() (bool, bool, error) {
	sensor, err := r.sensorPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read sensor pin: %w", err)
	}

	button, err := r.buttonPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read button pin: %w", err)
	}

	return sensor == 1, button == 1, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error

	if r.sensorPin != nil {
		if err := r.sensorPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor pin: %w", err))
		}
	}
	if r.buttonPin != nil {
		if err := r.buttonPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// pwmPeriod is the software PWM period; 100 Hz is flicker-free for an LED.
const pwmPeriod = 10 * time.Millisecond

// RealOutput drives the indicator LED line. Fractional levels are produced
// with a software PWM goroutine since the character device has no PWM.
type RealOutput struct {
	line *gpiocdev.Line

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewRealOutput requests the LED line as an output, initially off.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request led pin %d: %w", pin, err)
	}
	return &RealOutput{line: line}, nil
}

// Set switches the LED fully on or off.
func (o *RealOutput) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopPWM()
	return o.write(on)
}

// SetDuty drives the LED at a fractional brightness.
func (o *RealOutput) SetDuty(duty float64) error {
	if duty <= 0 {
		return o.Set(false)
	}
	if duty >= 1 {
		return o.Set(true)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopPWM()

	on := time.Duration(float64(pwmPeriod) * duty)
	off := pwmPeriod - on
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	go o.runPWM(on, off, o.stop, o.done)
	return nil
}

func (o *RealOutput) runPWM(on, off time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		o.write(true)
		select {
		case <-stop:
			return
		case <-time.After(on):
		}
		o.write(false)
		select {
		case <-stop:
			return
		case <-time.After(off):
		}
	}
}

// stopPWM must be called with o.mu held.
func (o *RealOutput) stopPWM() {
	if o.stop == nil {
		return
	}
	close(o.stop)
	<-o.done
	o.stop = nil
	o.done = nil
}

func (o *RealOutput) write(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	return nil
}

// Close turns the LED off and releases the line.
func (o *RealOutput) Close() error {
	if err := o.Set(false); err != nil {
		o.line.Close()
		return err
	}
	if err := o.line.Close(); err != nil {
		return fmt.Errorf("close led pin: %w", err)
	}
	return nil
}
