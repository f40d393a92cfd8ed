// Package metrics holds the prometheus collectors shared by the game and api packages.
// Label values are bounded (mode, reason, direction); never label by player or session.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Game metrics
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pong_tick_duration_seconds",
		Help:    "Time spent in one session tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025},
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pong_sessions_active",
		Help: "Sessions currently registered",
	})

	sessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_sessions_created_total",
		Help: "Sessions created",
	}, []string{"mode"}) // Bounded: "pvp", "pve", "tournament"

	matchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_matches_finished_total",
		Help: "Matches that reached the finished state",
	}, []string{"reason"}) // Bounded: "score", "forfeit", "left", "abandoned", "idle"

	// Journal metrics
	journalWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pong_journal_events_total",
		Help: "Events written to the match journal",
	})

	journalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pong_journal_dropped_total",
		Help: "Journal events dropped due to rate limiting or buffer full",
	})

	// WebSocket metrics
	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pong_websocket_connections_active",
		Help: "Currently open WebSocket connections",
	})

	wsMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // Bounded: "in", "out", "dropped"

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_limit", "ip_limit"

	// Stats pipeline
	statsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pong_stats_delivered_total",
		Help: "Match summaries accepted by the stats sink",
	})

	statsFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pong_stats_failures_total",
		Help: "Match summaries that could not be delivered",
	}, []string{"reason"}) // Bounded: "queue_full", "sink_error"
)

// RecordTick records tick timing.
func RecordTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// SetActiveSessions updates the session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// SessionCreated counts a new session of the given mode.
func SessionCreated(mode string) {
	sessionsCreated.WithLabelValues(mode).Inc()
}

// MatchFinished counts a finished match.
func MatchFinished(reason string) {
	matchesFinished.WithLabelValues(reason).Inc()
}

// JournalWritten counts a persisted journal event.
func JournalWritten() {
	journalWritten.Inc()
}

// JournalDropped counts a journal event that was not persisted.
func JournalDropped() {
	journalDropped.Inc()
}

// SetWSConnections updates the WebSocket connection gauge.
func SetWSConnections(n int) {
	wsConnections.Set(float64(n))
}

// WSMessage counts one message; direction is "in", "out" or "dropped".
func WSMessage(direction string) {
	wsMessages.WithLabelValues(direction).Inc()
}

// ConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "ws_limit", "ip_limit"
func ConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// StatsDelivered counts a summary accepted by the sink.
func StatsDelivered() {
	statsDelivered.Inc()
}

// StatsFailed counts a summary that was dropped or failed; reason is "queue_full" or "sink_error".
func StatsFailed(reason string) {
	statsFailures.WithLabelValues(reason).Inc()
}
