package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Stats is a point-in-time view of a feed's delivery counters
type Stats struct {
	Broker        bool
	Connected     bool
	Published     uint64
	Dropped       uint64
	Failed        uint64
	Queued        int
	Capacity      int
	LastPublished time.Time
}

// StatsSource is implemented by every feed
type StatsSource interface {
	Stats() Stats
}

type HealthStatus struct {
	Healthy bool
	Stats   Stats
	Errors  []string
}

// HealthChecker reports whether match records are leaving the process
type HealthChecker struct {
	source StatsSource
	// queue fill ratio above which a warning is reported
	queueAlert float64
}

func NewHealthChecker(source StatsSource) *HealthChecker {
	return &HealthChecker{
		source:     source,
		queueAlert: 0.8,
	}
}

func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Stats:   h.source.Stats(),
		Errors:  []string{},
	}

	if status.Stats.Broker && !status.Stats.Connected {
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}

	if status.Stats.Capacity > 0 {
		fill := float64(status.Stats.Queued) / float64(status.Stats.Capacity)
		if fill >= h.queueAlert {
			status.Errors = append(status.Errors, fmt.Sprintf("feed queue %d/%d full", status.Stats.Queued, status.Stats.Capacity))
		}
	}

	return status
}

// ServeHTTP answers 503 while the feed cannot deliver
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	response := map[string]interface{}{
		"healthy":        status.Healthy,
		"broker":         status.Stats.Broker,
		"nats_connected": status.Stats.Connected,
		"published":      status.Stats.Published,
		"dropped":        status.Stats.Dropped,
		"failed":         status.Stats.Failed,
		"queued":         status.Stats.Queued,
		"last_published": status.Stats.LastPublished,
		"errors":         status.Errors,
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode feed health")
	}
}

// Export renders the feed counters in the Prometheus text format
func (h *HealthChecker) Export() string {
	status := h.Check()

	healthy := 0
	if status.Healthy {
		healthy = 1
	}
	connected := 0
	if status.Stats.Connected {
		connected = 1
	}
	var lastPublished int64
	if !status.Stats.LastPublished.IsZero() {
		lastPublished = status.Stats.LastPublished.Unix()
	}

	return fmt.Sprintf(`# HELP match_feed_healthy Whether the match feed is healthy
# TYPE match_feed_healthy gauge
match_feed_healthy %d

# HELP match_feed_published_total Total number of records published
# TYPE match_feed_published_total counter
match_feed_published_total %d

# HELP match_feed_dropped_total Records dropped because the queue was full
# TYPE match_feed_dropped_total counter
match_feed_dropped_total %d

# HELP match_feed_failed_total Records the broker rejected
# TYPE match_feed_failed_total counter
match_feed_failed_total %d

# HELP match_feed_queued Records waiting to be published
# TYPE match_feed_queued gauge
match_feed_queued %d

# HELP match_feed_nats_connected Whether NATS is connected
# TYPE match_feed_nats_connected gauge
match_feed_nats_connected %d

# HELP match_feed_last_published_timestamp Unix timestamp of the last published record
# TYPE match_feed_last_published_timestamp gauge
match_feed_last_published_timestamp %d
`,
		healthy,
		status.Stats.Published,
		status.Stats.Dropped,
		status.Stats.Failed,
		status.Stats.Queued,
		connected,
		lastPublished,
	)
}

// MetricsHandler serves Export
func (h *HealthChecker) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if _, err := w.Write([]byte(h.Export())); err != nil {
			log.Error().Err(err).Msg("failed to write feed metrics")
		}
	}
}
