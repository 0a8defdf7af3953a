package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordExport records one asset export outcome.
func RecordExport(outcome string, duration time.Duration) {
	ExportsTotal.WithLabelValues(outcome).Inc()
	ExportDuration.Observe(duration.Seconds())
}

// RecordArchiveBytes records the size of a written archive.
func RecordArchiveBytes(n int64) {
	if n > 0 {
		ArchiveBytesTotal.Add(float64(n))
	}
}

// RecordSyncRequest records one catalog server request.
func RecordSyncRequest(operation, outcome string, duration time.Duration) {
	SyncRequestsTotal.WithLabelValues(operation, outcome).Inc()
	SyncRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheAccess records a settings or filters cache lookup.
func RecordCacheAccess(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	SettingsCacheTotal.WithLabelValues(cache, result).Inc()
}

// RecordImport records an archive import with its per-entry counts.
func RecordImport(err error, imported, skipped int) {
	if err != nil {
		ImportsTotal.WithLabelValues("failed").Inc()
		return
	}
	ImportsTotal.WithLabelValues("success").Inc()
	ImportFilesTotal.WithLabelValues("imported").Add(float64(imported))
	ImportFilesTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordEventDropped records an event dropped for a slow subscriber.
func RecordEventDropped(eventType string) {
	EventsDroppedTotal.WithLabelValues(eventType).Inc()
}
