package mqtt

import (
	"log/slog"
	"time"
)

// Default gate intervals.
const (
	DefaultPublishInterval   = 10 * time.Second
	DefaultReconnectInterval = 5 * time.Second
)

// ConnectionState is the publisher's view of the broker link.
type ConnectionState struct {
	Connected            bool
	LastReconnectAttempt time.Time
	LastPublishTime      time.Time
	LastPublishedCount   uint64
	Publishes            int
	ReconnectAttempts    int
}

// Publisher republishes the running count on a fixed interval. Both
// reconnecting and publishing are interval-gated so Publish returns quickly
// no matter how long the broker is away.
type Publisher struct {
	client            Client
	topic             string
	publishInterval   time.Duration
	reconnectInterval time.Duration
	logger            *slog.Logger

	state ConnectionState
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	MeterID           string
	PublishInterval   time.Duration
	ReconnectInterval time.Duration
	Logger            *slog.Logger
}

// NewPublisher creates a Publisher. Zero intervals take the defaults.
func NewPublisher(client Client, cfg PublisherConfig) *Publisher {
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = DefaultPublishInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Publisher{
		client:            client,
		topic:             Topic(cfg.MeterID),
		publishInterval:   cfg.PublishInterval,
		reconnectInterval: cfg.ReconnectInterval,
		logger:            cfg.Logger,
	}
}

// Publish is called every loop iteration with the current count.
// The first reconnect attempt and the first publish happen on the first call.
func (p *Publisher) Publish(count uint64, now time.Time) {
	if !p.client.IsConnected() {
		if p.state.Connected {
			p.logger.Warn("mqtt connection lost")
		}
		p.state.Connected = false

		if !p.due(p.state.LastReconnectAttempt, p.reconnectInterval, now) {
			return
		}
		p.state.LastReconnectAttempt = now
		p.state.ReconnectAttempts++
		if err := p.client.Connect(); err != nil {
			p.logger.Warn("mqtt connect failed", "error", err, "retry_in", p.reconnectInterval)
			return
		}
		p.logger.Info("mqtt connected", "topic", p.topic)
	}
	p.state.Connected = true

	if !p.due(p.state.LastPublishTime, p.publishInterval, now) {
		return
	}
	p.state.LastPublishTime = now

	// A failed publish is not retried early: the next window carries the
	// then-current count.
	if err := p.client.Publish(p.topic, FormatPayload(count), true); err != nil {
		p.logger.Warn("publish failed", "topic", p.topic, "count", count, "error", err)
		return
	}
	p.state.LastPublishedCount = count
	p.state.Publishes++
	p.logger.Debug("published", "topic", p.topic, "count", count)
}

func (p *Publisher) due(last time.Time, interval time.Duration, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

// State returns a copy of the connection state.
func (p *Publisher) State() ConnectionState {
	return p.state
}

// Topic returns the count topic.
func (p *Publisher) Topic() string {
	return p.topic
}
