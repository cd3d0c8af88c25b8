package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted GPIO values.
type FakeReader struct {
	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample represents a single GPIO reading (already in logical form).
type Sample struct {
	Sensor bool // true = meter indicator lit
	Button bool // true = pressed
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, bool, error) {
	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Sensor, sample.Button, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeOutput records every level written to it.
// It is safe for concurrent use so provisioning tests can inspect it.
type FakeOutput struct {
	mu     sync.Mutex
	on     bool
	duty   float64
	writes []float64
	closed bool
}

// NewFakeOutput creates a FakeOutput that starts off.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records a full on/off level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = on
	f.duty = 0
	if on {
		f.duty = 1
	}
	f.writes = append(f.writes, f.duty)
	return nil
}

// SetDuty records a fractional level.
func (f *FakeOutput) SetDuty(duty float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duty = duty
	f.on = duty > 0
	f.writes = append(f.writes, duty)
	return nil
}

// Close marks the output as closed and off.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on = false
	f.duty = 0
	f.closed = true
	return nil
}

// On reports whether the output is currently lit at any level.
func (f *FakeOutput) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Duty returns the current level, 0 for off and 1 for fully on.
func (f *FakeOutput) Duty() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duty
}

// Writes returns a copy of every level written, in order.
func (f *FakeOutput) Writes() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.writes))
	copy(out, f.writes)
	return out
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
