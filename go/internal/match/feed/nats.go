package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/duel/go/internal/match"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection and subject settings for the match feed
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	BufferSize    int // records queued before new ones are dropped
}

// DefaultNATSConfig returns default NATS feed configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "match.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		BufferSize:    1024,
	}
}

// Envelope is the wire format of a published record
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomKey   string          `json:"roomKey"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NATSFeed publishes match records to core NATS subjects.
// Publish only queues; Run drains the queue so the match loop never waits on the network.
type NATSFeed struct {
	nc     *nats.Conn
	config NATSConfig
	queue  chan match.Record

	published     atomic.Uint64
	dropped       atomic.Uint64
	failed        atomic.Uint64
	lastPublished atomic.Int64 // unix nanos
}

// NewNATSFeed connects to NATS
func NewNATSFeed(cfg NATSConfig) (*NATSFeed, error) {
	opts := []nats.Option{
		nats.Name("match-feed"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultNATSConfig().BufferSize
	}

	return &NATSFeed{
		nc:     nc,
		config: cfg,
		queue:  make(chan match.Record, cfg.BufferSize),
	}, nil
}

// Publish implements match.Feed
func (f *NATSFeed) Publish(rec match.Record) {
	select {
	case f.queue <- rec:
	default:
		f.dropped.Add(1)
		log.Warn().
			Str("room", rec.Room).
			Str("record_type", string(rec.Type)).
			Msg("feed queue full, dropping record")
	}
}

// Run publishes queued records until ctx is cancelled
func (f *NATSFeed) Run(ctx context.Context) {
	log.Info().Str("url", f.config.URL).Str("prefix", f.config.SubjectPrefix).Msg("match feed started")
	for {
		select {
		case <-ctx.Done():
			if err := f.nc.Flush(); err != nil {
				log.Warn().Err(err).Msg("failed to flush NATS on shutdown")
			}
			log.Info().Msg("match feed stopped")
			return
		case rec := <-f.queue:
			if err := f.publish(rec); err != nil {
				f.failed.Add(1)
				log.Error().
					Err(err).
					Str("room", rec.Room).
					Str("record_type", string(rec.Type)).
					Msg("failed to publish match record")
			}
		}
	}
}

func (f *NATSFeed) publish(rec match.Record) error {
	msg, err := BuildMsg(f.config.SubjectPrefix, rec)
	if err != nil {
		return err
	}
	if err := f.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	f.published.Add(1)
	f.lastPublished.Store(time.Now().UnixNano())

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", msg.Header.Get("Event-ID")).
		Msg("published match record")
	return nil
}

// BuildMsg wraps a record in an envelope addressed to <prefix>.<type>
func BuildMsg(prefix string, rec match.Record) (*nats.Msg, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	env := Envelope{
		EventID:   uuid.New().String(),
		EventType: string(rec.Type),
		RoomKey:   rec.Room,
		Timestamp: rec.At.UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return &nats.Msg{
		Subject: fmt.Sprintf("%s.%s", prefix, rec.Type),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{env.EventType},
			"Room-Key":   []string{env.RoomKey},
			"Event-ID":   []string{env.EventID},
		},
	}, nil
}

// Stats implements StatsSource
func (f *NATSFeed) Stats() Stats {
	stats := Stats{
		Broker:    true,
		Connected: f.Connected(),
		Published: f.published.Load(),
		Dropped:   f.dropped.Load(),
		Failed:    f.failed.Load(),
		Queued:    len(f.queue),
		Capacity:  cap(f.queue),
	}
	if last := f.lastPublished.Load(); last > 0 {
		stats.LastPublished = time.Unix(0, last)
	}
	return stats
}

// Connected reports whether the NATS connection is up
func (f *NATSFeed) Connected() bool {
	return f.nc != nil && f.nc.IsConnected()
}

// Close closes the NATS connection
func (f *NATSFeed) Close() error {
	if f.nc != nil {
		f.nc.Close()
	}
	return nil
}
