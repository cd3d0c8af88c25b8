package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/smartmeter/internal/gpio"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFs(afero.NewMemMapFs(), nil)
	require.NoError(t, err)

	assert.Equal(t, time.Millisecond, cfg.Poll)
	assert.Equal(t, 5*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 10*time.Second, cfg.PublishInterval)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 60*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 180*time.Second, cfg.PortalTimeout)
	assert.Equal(t, 3*time.Second, cfg.RestartDelay)
	assert.Equal(t, 10*time.Millisecond, cfg.Blink)
	assert.Equal(t, gpio.Pins{Chip: "gpiochip0", Sensor: 13, Button: 12, LED: 4}, cfg.Pins())
	assert.Equal(t, "/var/lib/smartmeter", cfg.StateDir)
	assert.Equal(t, "SmartMeter AP", cfg.APName)
	assert.Equal(t, ":80", cfg.PortalAddr)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "wlan0", cfg.WiFiIface)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.PrintState)
	assert.Empty(t, cfg.File)
}

func TestFlags(t *testing.T) {
	cfg, err := LoadFs(afero.NewMemMapFs(), []string{
		"--debounce=20ms",
		"--pin-led", "18",
		"--http", ":8080",
		"--sensor-active-low",
		"--print-state",
		"--portal-timeout=0",
	})
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 18, cfg.PinLED)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.SensorActiveLow)
	assert.True(t, cfg.PrintState)
	assert.Zero(t, cfg.PortalTimeout)
}

func TestConfigFileSearched(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, DefaultConfigDir+"/smartmeter.yaml", []byte(`
debounce: 8ms
pin-sensor: 17
wifi-iface: wlan1
log-level: debug
`), 0o644))

	cfg, err := LoadFs(fsys, nil)
	require.NoError(t, err)

	assert.Equal(t, 8*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 17, cfg.PinSensor)
	assert.Equal(t, "wlan1", cfg.WiFiIface)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DefaultConfigDir+"/smartmeter.yaml", cfg.File)
}

func TestExplicitConfigFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/tmp/meter.toml", []byte(`
publish-interval = "30s"
state-dir = "/tmp/state"
`), 0o644))

	cfg, err := LoadFs(fsys, []string{"--config", "/tmp/meter.toml"})
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PublishInterval)
	assert.Equal(t, "/tmp/state", cfg.StateDir)
}

func TestExplicitConfigFileMissing(t *testing.T) {
	_, err := LoadFs(afero.NewMemMapFs(), []string{"--config", "/nope.yaml"})
	assert.Error(t, err)
}

func TestMalformedConfigFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, DefaultConfigDir+"/smartmeter.json", []byte(`{"poll": `), 0o644))

	_, err := LoadFs(fsys, nil)
	assert.Error(t, err)
}

func TestPrecedence(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, DefaultConfigDir+"/smartmeter.yaml", []byte(`
pin-led: 5
pin-button: 6
ap-name: FromFile
`), 0o644))
	t.Setenv("SMARTMETER_PIN_LED", "7")
	t.Setenv("SMARTMETER_AP_NAME", "FromEnv")

	cfg, err := LoadFs(fsys, []string{"--ap-name", "FromFlag"})
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.PinButton, "file beats default")
	assert.Equal(t, 7, cfg.PinLED, "env beats file")
	assert.Equal(t, "FromFlag", cfg.APName, "flag beats env")
}

func TestUnknownFlag(t *testing.T) {
	_, err := LoadFs(afero.NewMemMapFs(), []string{"--pin-ch", "1"})
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero poll", []string{"--poll=0"}},
		{"negative debounce", []string{"--debounce=-1ms"}},
		{"zero publish interval", []string{"--publish-interval=0s"}},
		{"zero reconnect interval", []string{"--reconnect-interval=0s"}},
		{"negative portal timeout", []string{"--portal-timeout=-1s"}},
		{"zero blink", []string{"--blink=0"}},
		{"shared pin", []string{"--pin-led=13"}},
		{"button on sensor", []string{"--pin-button=13"}},
		{"negative pin", []string{"--pin-sensor=-1"}},
		{"empty chip", []string{"--chip="}},
		{"empty state dir", []string{"--state-dir="}},
		{"bad log format", []string{"--log-format=xml"}},
		{"bad log level", []string{"--log-level=verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFs(afero.NewMemMapFs(), tt.args)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}
