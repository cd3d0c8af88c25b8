// Package status provides a thread-safe status tracker for the smartmeter daemon.
// The control loop writes snapshots; the HTTP status page reads them.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/smartmeter/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	PollMs              int64
	DebounceMs          int64
	PublishIntervalMs   int64
	ReconnectIntervalMs int64
	Broker              string
	MeterID             string
	Topic               string
	HTTPAddr            string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Count              uint64
	Sensor             logic.State
	LastPulse          time.Time
	MQTTConnected      bool
	LastPublish        time.Time
	LastPublishedCount uint64
	Address            string
	Session            string
	StartTime          time.Time
	Now                time.Time
	Config             Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, session id and config.
func NewTracker(startTime time.Time, session string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Session:   session,
			Config:    cfg,
		},
	}
}

// Update sets the counter view. Called from the loop on every tick.
func (t *Tracker) Update(count uint64, sensor logic.State, lastPulse time.Time) {
	t.mu.Lock()
	t.snap.Count = count
	t.snap.Sensor = sensor
	t.snap.LastPulse = lastPulse
	t.mu.Unlock()
}

// SetMQTT sets the broker link view.
func (t *Tracker) SetMQTT(connected bool, lastPublish time.Time, lastCount uint64) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.LastPublish = lastPublish
	t.snap.LastPublishedCount = lastCount
	t.mu.Unlock()
}

// SetAddress sets the local network address.
func (t *Tracker) SetAddress(addr string) {
	t.mu.Lock()
	t.snap.Address = addr
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
