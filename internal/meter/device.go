// Package meter ties the pulse counter, indicator, and publisher into the
// per-tick control loop.
package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/smartmeter/internal/gpio"
	"github.com/sweeney/smartmeter/internal/indicator"
	"github.com/sweeney/smartmeter/internal/logic"
	"github.com/sweeney/smartmeter/internal/mqtt"
	"github.com/sweeney/smartmeter/internal/status"
	"github.com/sweeney/smartmeter/internal/store"
)

// DefaultBlink is how long the indicator stays lit per pulse.
const DefaultBlink = 10 * time.Millisecond

// ErrRestartRequested is returned by Tick when the button is held.
// The count is not flushed; the caller should exit immediately.
var ErrRestartRequested = errors.New("restart requested")

// Config configures a Device.
type Config struct {
	Reader    gpio.Reader
	Blinker   *indicator.Blinker
	Publisher *mqtt.Publisher
	// Tracker is optional.
	Tracker  *status.Tracker
	Debounce time.Duration
	Blink    time.Duration
	Logger   *slog.Logger
}

// Device owns every component the loop touches.
type Device struct {
	reader    gpio.Reader
	counter   *logic.PulseCounter
	blinker   *indicator.Blinker
	publisher *mqtt.Publisher
	tracker   *status.Tracker
	blink     time.Duration
	logger    *slog.Logger
}

// New creates a Device. start seeds the debouncer.
func New(cfg Config, start time.Time) *Device {
	if cfg.Blink <= 0 {
		cfg.Blink = DefaultBlink
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Blinker == nil {
		cfg.Blinker = indicator.NewBlinker(nil, cfg.Logger)
	}
	return &Device{
		reader:    cfg.Reader,
		counter:   logic.NewPulseCounter(cfg.Debounce, start),
		blinker:   cfg.Blinker,
		publisher: cfg.Publisher,
		tracker:   cfg.Tracker,
		blink:     cfg.Blink,
		logger:    cfg.Logger,
	}
}

// Tick runs one loop iteration: indicator timer, sensor, pulse handling,
// restart button, then broker service and publish.
func (d *Device) Tick(now time.Time) error {
	d.blinker.Check(now)

	sensor, button, err := d.reader.Read()
	if err != nil {
		d.logger.Warn("gpio read failed", "error", err)
	} else {
		if d.counter.Process(logic.Input{Active: sensor, Time: now}) {
			d.blinker.SetOnForTime(d.blink, now)
			d.logger.Debug("pulse", "count", d.counter.Count())
		}
		if button {
			d.logger.Warn("restart button pressed", "count", d.counter.Count())
			return ErrRestartRequested
		}
	}

	if d.publisher != nil {
		d.publisher.Publish(d.counter.Count(), now)
	}

	if d.tracker != nil {
		d.tracker.Update(d.counter.Count(), d.counter.State(), d.counter.LastPulse())
		if d.publisher != nil {
			ps := d.publisher.State()
			d.tracker.SetMQTT(ps.Connected, ps.LastPublishTime, ps.LastPublishedCount)
		}
	}
	return nil
}

// Count returns the pulses counted since start.
func (d *Device) Count() uint64 {
	return d.counter.Count()
}

// ConfigLoader returns the stored configuration, never failing.
type ConfigLoader interface {
	LoadOrDefault() store.DeviceConfig
}

// Provisioner brings the network up.
type Provisioner interface {
	Setup(ctx context.Context, current store.DeviceConfig, force bool) (store.DeviceConfig, error)
}

// Setup loads the stored configuration and provisions the network. Holding
// the button at boot forces the configuration portal.
func Setup(ctx context.Context, loader ConfigLoader, reader gpio.Reader, prov Provisioner, logger *slog.Logger) (store.DeviceConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	current := loader.LoadOrDefault()

	_, force, err := reader.Read()
	if err != nil {
		logger.Warn("gpio read failed, not forcing portal", "error", err)
		force = false
	}

	cfg, err := prov.Setup(ctx, current, force)
	if err != nil {
		return cfg, fmt.Errorf("provision: %w", err)
	}
	logger.Info("running with config", "server", cfg.Server(), "port", cfg.Port(), "meter_id", cfg.MeterID())
	return cfg, nil
}
