// Package gpio provides GPIO input reading and output driving with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the meter sensor and the manual button.
type Reader interface {
	// Read returns the logical states of the sensor and the button.
	// Polarity is already applied: sensorActive is true while the meter
	// indicator is lit, buttonPressed is true while the button is held.
	Read() (sensorActive, buttonPressed bool, err error)

	// Close releases GPIO resources.
	Close() error
}

// Output drives the indicator LED.
type Output interface {
	// Set switches the output fully on or off, cancelling any duty cycle.
	Set(on bool) error

	// SetDuty drives the output at a fractional brightness in (0, 1).
	// Values <= 0 or >= 1 behave like Set(false) and Set(true).
	SetDuty(duty float64) error

	// Close turns the output off and releases it.
	Close() error
}

// Default pin definitions (BCM numbering).
const (
	DefaultPinSensor = 13 // Light sensor comparator output
	DefaultPinButton = 12 // Manual restart / force provisioning, active low
	DefaultPinLED    = 4  // Indicator LED
)

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Pins selects the lines used by RealReader and RealOutput.
type Pins struct {
	Chip            string
	Sensor          int
	Button          int
	LED             int
	SensorActiveLow bool
}
