package meter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/smartmeter/internal/gpio"
	"github.com/sweeney/smartmeter/internal/indicator"
	"github.com/sweeney/smartmeter/internal/logic"
	"github.com/sweeney/smartmeter/internal/mqtt"
	"github.com/sweeney/smartmeter/internal/provision"
	"github.com/sweeney/smartmeter/internal/status"
	"github.com/sweeney/smartmeter/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type rig struct {
	reader  *gpio.FakeReader
	led     *gpio.FakeOutput
	client  *mqtt.FakeClient
	tracker *status.Tracker
	dev     *Device
	ticks   int
}

func newRig(samples []gpio.Sample) *rig {
	r := &rig{
		reader:  gpio.NewFakeReader(samples),
		led:     gpio.NewFakeOutput(),
		client:  mqtt.NewFakeClient(),
		tracker: status.NewTracker(t0, "test", status.Config{MeterID: "42"}),
	}
	r.dev = New(Config{
		Reader:  r.reader,
		Blinker: indicator.NewBlinker(r.led, nil),
		Publisher: mqtt.NewPublisher(r.client, mqtt.PublisherConfig{
			MeterID:           "42",
			PublishInterval:   10 * time.Second,
			ReconnectInterval: 5 * time.Second,
		}),
		Tracker:  r.tracker,
		Debounce: 5 * time.Millisecond,
		Blink:    10 * time.Millisecond,
	}, t0)
	return r
}

// run ticks once per millisecond, one sample per tick, up to tick n.
// Tick i happens at t0 + i ms.
func (r *rig) run(t *testing.T, n int) {
	t.Helper()
	for r.ticks < n {
		r.ticks++
		require.NoError(t, r.dev.Tick(t0.Add(time.Duration(r.ticks)*time.Millisecond)))
	}
}

func repeat(s gpio.Sample, n int) []gpio.Sample {
	out := make([]gpio.Sample, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func concat(parts ...[]gpio.Sample) []gpio.Sample {
	var out []gpio.Sample
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var (
	lit  = gpio.Sample{Sensor: true}
	dark = gpio.Sample{}
)

func TestTickCountsDebouncedPulses(t *testing.T) {
	samples := concat(
		repeat(dark, 10),
		repeat(lit, 20),
		repeat(dark, 20),
		repeat(lit, 20),
		repeat(dark, 20),
	)
	r := newRig(samples)
	r.run(t, len(samples))

	assert.Equal(t, uint64(2), r.dev.Count())
}

func TestTickIgnoresBounce(t *testing.T) {
	var samples []gpio.Sample
	samples = append(samples, repeat(dark, 10)...)
	for i := 0; i < 50; i++ {
		samples = append(samples, lit, lit, dark)
	}
	samples = append(samples, repeat(dark, 10)...)
	r := newRig(samples)
	r.run(t, len(samples))

	assert.Zero(t, r.dev.Count())
	assert.Empty(t, r.led.Writes(), "no blink without a pulse")
}

func TestTickBlinksOnPulse(t *testing.T) {
	r := newRig(concat(repeat(dark, 5), repeat(lit, 40)))

	// Pulse confirmed at tick 11, 5ms after the rising sample at tick 6.
	r.run(t, 11)
	assert.Equal(t, uint64(1), r.dev.Count())
	assert.True(t, r.led.On())

	r.run(t, 20)
	assert.True(t, r.led.On(), "still within the blink")

	r.run(t, 21)
	assert.False(t, r.led.On())
	assert.Equal(t, []float64{1, 0}, r.led.Writes())
}

func TestTickPublishesCountOnInterval(t *testing.T) {
	samples := concat(repeat(dark, 10), repeat(lit, 20), repeat(dark, 1))
	r := newRig(samples)

	// 1000 ticks in one window: connect and publish once each.
	r.run(t, 1000)
	require.Len(t, r.client.Messages, 1)
	assert.Equal(t, "smartmeter/42/Wh", r.client.Messages[0].Topic)
	assert.Equal(t, "0", string(r.client.Messages[0].Payload), "first publish happens before the pulse")
	assert.True(t, r.client.Messages[0].Retained)
	assert.Equal(t, 1, r.client.ConnectCalls)

	require.NoError(t, r.dev.Tick(t0.Add(10*time.Second+time.Millisecond)))
	require.Len(t, r.client.Messages, 2)
	assert.Equal(t, "1", string(r.client.Messages[1].Payload))
}

func TestTickRestartButton(t *testing.T) {
	samples := concat(repeat(dark, 10), repeat(lit, 10), []gpio.Sample{{Sensor: true, Button: true}})
	r := newRig(samples)
	r.run(t, 20)
	require.Equal(t, uint64(1), r.dev.Count())
	publishes := r.client.PublishCalls

	err := r.dev.Tick(t0.Add(21 * time.Millisecond))
	assert.ErrorIs(t, err, ErrRestartRequested)
	assert.Equal(t, publishes, r.client.PublishCalls, "no flush on restart")
}

func TestTickReadErrorStillServicesBroker(t *testing.T) {
	r := newRig(repeat(dark, 1))
	r.reader.ReadError = errors.New("line busy")

	require.NoError(t, r.dev.Tick(t0.Add(time.Millisecond)))
	assert.Equal(t, 1, r.client.ConnectCalls)
	assert.Len(t, r.client.Messages, 1)
}

func TestTickBrokerDownDoesNotStopCounting(t *testing.T) {
	samples := concat(repeat(dark, 10), repeat(lit, 20), repeat(dark, 20), repeat(lit, 20))
	r := newRig(samples)
	r.client.ConnectError = errors.New("connection refused")

	r.run(t, len(samples))
	assert.Equal(t, uint64(2), r.dev.Count())
	assert.Equal(t, 1, r.client.ConnectCalls, "one attempt per reconnect window")
	assert.Empty(t, r.client.Messages)
}

func TestTickUpdatesTracker(t *testing.T) {
	samples := concat(repeat(dark, 10), repeat(lit, 20))
	r := newRig(samples)
	r.run(t, len(samples))

	snap := r.tracker.Snapshot()
	assert.Equal(t, uint64(1), snap.Count)
	assert.Equal(t, logic.StateActive, snap.Sensor)
	assert.Equal(t, t0.Add(16*time.Millisecond), snap.LastPulse)
	assert.True(t, snap.MQTTConnected)
	assert.Equal(t, t0.Add(time.Millisecond), snap.LastPublish)
}

func TestCountNeverDecreases(t *testing.T) {
	var samples []gpio.Sample
	for i := 0; i < 30; i++ {
		samples = append(samples, repeat(gpio.Sample{Sensor: i%3 != 0}, 3+i%7)...)
	}
	r := newRig(samples)

	var last uint64
	for i := 1; i <= len(samples); i++ {
		require.NoError(t, r.dev.Tick(t0.Add(time.Duration(i)*time.Millisecond)))
		require.GreaterOrEqual(t, r.dev.Count(), last)
		last = r.dev.Count()
	}
}

type fakeLoader struct{ cfg store.DeviceConfig }

func (f fakeLoader) LoadOrDefault() store.DeviceConfig { return f.cfg }

type recordingProvisioner struct {
	current store.DeviceConfig
	force   bool
	result  store.DeviceConfig
	err     error
}

func (p *recordingProvisioner) Setup(_ context.Context, current store.DeviceConfig, force bool) (store.DeviceConfig, error) {
	p.current = current
	p.force = force
	if p.result.IsZero() {
		return current, p.err
	}
	return p.result, p.err
}

func TestSetupPassesStoredConfig(t *testing.T) {
	stored, err := store.NewDeviceConfig("10.0.0.5", "1883", "42")
	require.NoError(t, err)
	prov := &recordingProvisioner{}

	cfg, err := Setup(context.Background(), fakeLoader{stored}, gpio.NewFakeReader([]gpio.Sample{dark}), prov, nil)
	require.NoError(t, err)
	assert.Equal(t, stored, cfg)
	assert.Equal(t, stored, prov.current)
	assert.False(t, prov.force)
}

func TestSetupButtonForcesPortal(t *testing.T) {
	prov := &recordingProvisioner{}
	_, err := Setup(context.Background(), fakeLoader{store.Default()}, gpio.NewFakeReader([]gpio.Sample{{Button: true}}), prov, nil)
	require.NoError(t, err)
	assert.True(t, prov.force)
}

func TestSetupReadErrorDoesNotForce(t *testing.T) {
	reader := gpio.NewFakeReader(nil)
	reader.ReadError = errors.New("line busy")
	prov := &recordingProvisioner{}

	_, err := Setup(context.Background(), fakeLoader{store.Default()}, reader, prov, nil)
	require.NoError(t, err)
	assert.False(t, prov.force)
}

func TestSetupTimeoutIsTerminal(t *testing.T) {
	prov := &recordingProvisioner{err: provision.ErrProvisioningTimeout}
	_, err := Setup(context.Background(), fakeLoader{store.Default()}, gpio.NewFakeReader([]gpio.Sample{dark}), prov, nil)
	assert.ErrorIs(t, err, provision.ErrProvisioningTimeout)
}

func TestSetupWithController(t *testing.T) {
	fs := afero.NewMemMapFs()
	st := store.New(fs, nil)
	station := &provision.FakeStation{AutoConnectError: errors.New("no network")}
	portal := &provision.FakePortal{Submissions: []provision.Submission{{
		Credentials: provision.Credentials{SSID: "home"},
		Params:      provision.Params{Server: "10.0.0.9", Port: "1884", MeterID: "7"},
	}}}
	ctrl := provision.NewController(provision.Config{
		Station:        station,
		Portal:         portal,
		Store:          st,
		ConnectTimeout: 10 * time.Millisecond,
		PortalTimeout:  time.Second,
	})

	cfg, err := Setup(context.Background(), st, gpio.NewFakeReader([]gpio.Sample{dark}), ctrl, nil)
	require.NoError(t, err)
	assert.Equal(t, "7", cfg.MeterID())

	loaded, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, "smartmeter/7/Wh", mqtt.Topic(loaded.MeterID()))
}
