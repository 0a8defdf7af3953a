// Package events provides an in-process pub/sub bus for export, import and
// configuration changes.
package events

import (
	"time"
)

// EventType identifies the type of event being published.
type EventType string

const (
	// BatchStarted is published before the first asset of a batch export.
	BatchStarted EventType = "export.batch_started"

	// BatchCompleted is published after the last asset of a batch export.
	BatchCompleted EventType = "export.batch_completed"

	// AssetExported is published when an archive was written.
	AssetExported EventType = "export.asset_exported"

	// AssetSkipped is published when an asset was not exported because it
	// is already present remotely or locally, or is not exportable.
	AssetSkipped EventType = "export.asset_skipped"

	// AssetFailed is published when an asset export aborted.
	AssetFailed EventType = "export.asset_failed"

	// ArchiveUploaded is published after a successful upload.
	ArchiveUploaded EventType = "sync.archive_uploaded"

	// ImportCompleted is published when an archive was extracted.
	ImportCompleted EventType = "import.completed"

	// ImportFailed is published when an archive could not be imported.
	ImportFailed EventType = "import.failed"

	// ConfigReloaded is published after SIGHUP re-read the config file.
	ConfigReloaded EventType = "config.reloaded"

	// ConfigReloadFailed is published when the re-read config was rejected.
	ConfigReloadFailed EventType = "config.reload_failed"
)

// Event represents a published event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// NewEvent creates a new event with the given type and payload.
func NewEvent(eventType EventType, payload any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// EventHandler is a function that processes events.
type EventHandler func(event Event)
