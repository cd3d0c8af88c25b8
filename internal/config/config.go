// Package config loads daemon settings from flags, SMARTMETER_* environment
// variables, and an optional config file, in that order of precedence.
//
// These are host settings (pins, timings, paths). The broker and meter id
// live in the device config managed by package store.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/smartmeter/internal/gpio"
)

// EnvPrefix prefixes environment overrides, e.g. SMARTMETER_PIN_LED.
const EnvPrefix = "SMARTMETER"

// DefaultConfigDir is searched for smartmeter.{yaml,toml,json}.
const DefaultConfigDir = "/etc/smartmeter"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds the daemon settings.
type Config struct {
	Poll              time.Duration
	Debounce          time.Duration
	PublishInterval   time.Duration
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
	PortalTimeout     time.Duration
	RestartDelay      time.Duration
	Blink             time.Duration

	Chip            string
	PinSensor       int
	PinButton       int
	PinLED          int
	SensorActiveLow bool

	StateDir   string
	APName     string
	PortalAddr string
	HTTPAddr   string
	WiFiIface  string

	LogLevel   string
	LogFormat  string
	PrintState bool

	// File is the config file that was read, if any.
	File string
}

// Pins returns the GPIO wiring.
func (c *Config) Pins() gpio.Pins {
	return gpio.Pins{
		Chip:            c.Chip,
		Sensor:          c.PinSensor,
		Button:          c.PinButton,
		LED:             c.PinLED,
		SensorActiveLow: c.SensorActiveLow,
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Config file (default "+DefaultConfigDir+"/smartmeter.{yaml,toml,json})")

	fs.Duration("poll", time.Millisecond, "Sensor polling interval")
	fs.Duration("debounce", 5*time.Millisecond, "Minimum stable time before a sensor change counts")
	fs.Duration("publish-interval", 10*time.Second, "Interval between count publishes")
	fs.Duration("reconnect-interval", 5*time.Second, "Interval between broker reconnect attempts")
	fs.Duration("connect-timeout", 60*time.Second, "Wi-Fi auto-connect timeout")
	fs.Duration("portal-timeout", 180*time.Second, "Configuration portal timeout (0 waits forever)")
	fs.Duration("restart-delay", 3*time.Second, "Delay before exiting after a provisioning timeout")
	fs.Duration("blink", 10*time.Millisecond, "Indicator on-time per pulse")

	fs.String("chip", gpio.DefaultChip, "GPIO chip")
	fs.Int("pin-sensor", gpio.DefaultPinSensor, "BCM pin number for the optical sensor")
	fs.Int("pin-button", gpio.DefaultPinButton, "BCM pin number for the restart/configure button")
	fs.Int("pin-led", gpio.DefaultPinLED, "BCM pin number for the indicator LED")
	fs.Bool("sensor-active-low", false, "Sensor reads low when the meter LED is lit")

	fs.String("state-dir", "/var/lib/smartmeter", "Directory holding the device config")
	fs.String("ap-name", "SmartMeter AP", "Access point name while provisioning")
	fs.String("portal-addr", ":80", "Configuration portal listen address")
	fs.String("http", "", "HTTP status address (empty to disable)")
	fs.String("wifi-iface", "wlan0", "Wi-Fi interface managed by NetworkManager")

	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.Bool("print-state", false, "Print current inputs and stored config and exit")
	return fs
}

// Load parses args (without the program name) against the OS filesystem.
func Load(args []string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), args)
}

// LoadFs is Load with the config file read from fsys.
func LoadFs(fsys afero.Fs, args []string) (*Config, error) {
	flags := newFlagSet("smartmeter")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(fsys)
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("smartmeter")
		v.AddConfigPath(DefaultConfigDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Poll:              v.GetDuration("poll"),
		Debounce:          v.GetDuration("debounce"),
		PublishInterval:   v.GetDuration("publish-interval"),
		ReconnectInterval: v.GetDuration("reconnect-interval"),
		ConnectTimeout:    v.GetDuration("connect-timeout"),
		PortalTimeout:     v.GetDuration("portal-timeout"),
		RestartDelay:      v.GetDuration("restart-delay"),
		Blink:             v.GetDuration("blink"),

		Chip:            v.GetString("chip"),
		PinSensor:       v.GetInt("pin-sensor"),
		PinButton:       v.GetInt("pin-button"),
		PinLED:          v.GetInt("pin-led"),
		SensorActiveLow: v.GetBool("sensor-active-low"),

		StateDir:   v.GetString("state-dir"),
		APName:     v.GetString("ap-name"),
		PortalAddr: v.GetString("portal-addr"),
		HTTPAddr:   v.GetString("http"),
		WiFiIface:  v.GetString("wifi-iface"),

		LogLevel:   v.GetString("log-level"),
		LogFormat:  v.GetString("log-format"),
		PrintState: v.GetBool("print-state"),

		File: v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and that no pin is used twice.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"poll", c.Poll},
		{"debounce", c.Debounce},
		{"publish-interval", c.PublishInterval},
		{"reconnect-interval", c.ReconnectInterval},
		{"connect-timeout", c.ConnectTimeout},
		{"restart-delay", c.RestartDelay},
		{"blink", c.Blink},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, p.name, p.d)
		}
	}
	if c.PortalTimeout < 0 {
		return fmt.Errorf("%w: portal-timeout must not be negative, got %v", ErrInvalid, c.PortalTimeout)
	}

	if c.PinSensor < 0 || c.PinButton < 0 || c.PinLED < 0 {
		return fmt.Errorf("%w: pin numbers must not be negative", ErrInvalid)
	}
	if c.PinSensor == c.PinButton || c.PinSensor == c.PinLED || c.PinButton == c.PinLED {
		return fmt.Errorf("%w: pins must be distinct (sensor=%d button=%d led=%d)", ErrInvalid, c.PinSensor, c.PinButton, c.PinLED)
	}
	if c.Chip == "" {
		return fmt.Errorf("%w: chip is required", ErrInvalid)
	}
	if c.StateDir == "" {
		return fmt.Errorf("%w: state-dir is required", ErrInvalid)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log-format must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log-level must be debug, info, warn or error, got %q", ErrInvalid, c.LogLevel)
	}
	return nil
}
