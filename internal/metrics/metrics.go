// Package metrics provides Prometheus metrics for asset export and import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "snapshot"
)

// Export metrics track per-asset export outcomes.
var (
	// ExportsTotal is the total number of asset exports by outcome.
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exports_total",
		Help:      "Total number of asset exports by outcome",
	}, []string{"outcome"})

	// ExportDuration is a histogram of single asset export duration in seconds.
	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "export_duration_seconds",
		Help:      "Duration of single asset exports in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	// ArchiveBytesTotal is the total number of bytes written to archives.
	ArchiveBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_bytes_total",
		Help:      "Total number of bytes written to export archives",
	})
)

// Sync metrics track catalog server requests.
var (
	// SyncRequestsTotal is the total number of catalog requests.
	SyncRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_requests_total",
		Help:      "Total number of catalog server requests",
	}, []string{"operation", "outcome"})

	// SyncRequestDuration is a histogram of catalog request duration.
	SyncRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_request_duration_seconds",
		Help:      "Duration of catalog server requests in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
	}, []string{"operation"})

	// SettingsCacheTotal counts settings lookups served from cache or network.
	SettingsCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settings_cache_total",
		Help:      "Total number of settings cache lookups",
	}, []string{"cache", "result"})
)

// Import metrics track archive imports.
var (
	// ImportsTotal is the total number of archive imports by outcome.
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "imports_total",
		Help:      "Total number of archive imports by outcome",
	}, []string{"outcome"})

	// ImportFilesTotal is the total number of archive entries processed on import.
	ImportFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_files_total",
		Help:      "Total number of archive entries processed during import",
	}, []string{"result"})

	// InboxPending is the number of inbox archives waiting for writes to settle.
	InboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inbox_pending",
		Help:      "Number of inbox archives waiting to be imported",
	})
)

// Ledger metrics are refreshed by the collector.
var (
	// LedgerRows is the number of rows per ledger table.
	LedgerRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ledger_rows",
		Help:      "Rows recorded in the export/import ledger",
	}, []string{"table"})
)

// Event metrics track the in-process event bus.
var (
	// EventsDroppedTotal is the total number of events dropped for slow subscribers.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped due to full subscriber buffers",
	}, []string{"event_type"})
)

// Process metrics describe the running listener.
var (
	// ServerInfo provides version and build information.
	ServerInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_info",
		Help:      "Import listener version and build information",
	}, []string{"version", "go_version"})

	// ServerStartTime is the unix timestamp when the listener started.
	ServerStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_start_time_seconds",
		Help:      "Unix timestamp when the import listener started",
	})

	// ComponentStatus tracks the health status of listener components.
	ComponentStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "component_status",
		Help:      "Health status of components (1=healthy, 0=unhealthy)",
	}, []string{"component"})
)
