package feed

import (
	"sync/atomic"
	"time"

	"github.com/mcdev12/duel/go/internal/match"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFeed writes match records to the logger. Used when no broker is configured.
type LogFeed struct {
	level         zerolog.Level
	published     atomic.Uint64
	lastPublished atomic.Int64
}

func NewLogFeed(level zerolog.Level) *LogFeed {
	return &LogFeed{level: level}
}

// Publish implements match.Feed
func (f *LogFeed) Publish(rec match.Record) {
	log.WithLevel(f.level).
		Str("record_type", string(rec.Type)).
		Str("room", rec.Room).
		Int("round", rec.Round).
		Ints("scores", rec.Scores).
		Str("verdict", rec.Verdict).
		Msg("match record")
	f.published.Add(1)
	f.lastPublished.Store(time.Now().UnixNano())
}

// Stats implements StatsSource. A log feed has no broker and never drops.
func (f *LogFeed) Stats() Stats {
	stats := Stats{Published: f.published.Load()}
	if last := f.lastPublished.Load(); last > 0 {
		stats.LastPublished = time.Unix(0, last)
	}
	return stats
}
