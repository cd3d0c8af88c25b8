package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Count         uint64     `json:"count"`
	Sensor        string     `json:"sensor"`
	LastPulse     string     `json:"last_pulse,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Session       string     `json:"session"`
	Address       string     `json:"address,omitempty"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected          bool   `json:"connected"`
	Broker             string `json:"broker"`
	Topic              string `json:"topic"`
	LastPublish        string `json:"last_publish,omitempty"`
	LastPublishedCount uint64 `json:"last_published_count"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs              int64  `json:"poll_ms"`
	DebounceMs          int64  `json:"debounce_ms"`
	PublishIntervalMs   int64  `json:"publish_interval_ms"`
	ReconnectIntervalMs int64  `json:"reconnect_interval_ms"`
	MeterID             string `json:"meter_id"`
	HTTPAddr            string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	sensor := string(snap.Sensor)
	if sensor == "" {
		sensor = "UNKNOWN"
	}

	inner := StatusInner{
		Count:         snap.Count,
		Sensor:        sensor,
		LastPulse:     formatTime(snap.LastPulse),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		Session:       snap.Session,
		Address:       snap.Address,
		MQTT: MQTTStatus{
			Connected:          snap.MQTTConnected,
			Broker:             snap.Config.Broker,
			Topic:              snap.Config.Topic,
			LastPublish:        formatTime(snap.LastPublish),
			LastPublishedCount: snap.LastPublishedCount,
		},
		Config: ConfigJSON{
			PollMs:              snap.Config.PollMs,
			DebounceMs:          snap.Config.DebounceMs,
			PublishIntervalMs:   snap.Config.PublishIntervalMs,
			ReconnectIntervalMs: snap.Config.ReconnectIntervalMs,
			MeterID:             snap.Config.MeterID,
			HTTPAddr:            snap.Config.HTTPAddr,
		},
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
