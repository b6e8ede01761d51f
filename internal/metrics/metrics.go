// Package metrics holds Prometheus instruments that are used across the
// bot.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for StoreOperations.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moby_store_operations_total",
			Help: "Store operations by name and outcome.",
		}, []string{"operation", "outcome"})

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moby_store_operation_duration_seconds",
			Help:    "Wall-clock time spent in store operations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"operation"})

	StorePingSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moby_store_ping_seconds",
			Help: "Latency of the most recent successful database ping.",
		})

	StoreUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moby_store_up",
			Help: "1 when the most recent database ping succeeded, else 0.",
		})

	SettingsCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moby_settings_cache_hits_total",
			Help: "Guild settings lookups served from memory.",
		})

	SettingsCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moby_settings_cache_misses_total",
			Help: "Guild settings lookups that went to the store.",
		})

	FactRefreshErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moby_fact_refresh_errors_total",
			Help: "Failed fact-of-the-day fetches.",
		})

	DiscordEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moby_discord_events_total",
			Help: "Gateway events handled, by type.",
		}, []string{"event"})

	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moby_commands_total",
			Help: "Prefix commands dispatched, by name and outcome.",
		}, []string{"command", "outcome"})
)

func init() {
	prometheus.MustRegister(
		StoreOperations,
		StoreOperationDuration,
		StorePingSeconds,
		StoreUp,
		SettingsCacheHits,
		SettingsCacheMisses,
		FactRefreshErrors,
		DiscordEvents,
		Commands,
	)
}
