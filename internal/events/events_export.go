package events

import "time"

// BatchEvent describes a batch export run.
type BatchEvent struct {
	BatchID  int64
	Path     string
	Total    int
	Exported int
	Duration time.Duration
}

// AssetEvent describes the outcome of one asset export.
type AssetEvent struct {
	BatchID    int64
	ObjectPath string
	Class      string
	Hash       string
	Outcome    string
	ZipPath    string
	Error      string
	Duration   time.Duration
}

// UploadEvent describes a completed upload.
type UploadEvent struct {
	ObjectPath string
	ZipPath    string
	ProjectID  int
}

// NewBatchStarted creates a BatchStarted event.
func NewBatchStarted(batchID int64, path string, total int) Event {
	return NewEvent(BatchStarted, &BatchEvent{
		BatchID: batchID,
		Path:    path,
		Total:   total,
	})
}

// NewBatchCompleted creates a BatchCompleted event.
func NewBatchCompleted(batchID int64, path string, total, exported int, d time.Duration) Event {
	return NewEvent(BatchCompleted, &BatchEvent{
		BatchID:  batchID,
		Path:     path,
		Total:    total,
		Exported: exported,
		Duration: d,
	})
}

// NewAssetEvent creates an AssetExported, AssetSkipped or AssetFailed event.
func NewAssetEvent(t EventType, payload AssetEvent) Event {
	return NewEvent(t, &payload)
}

// NewArchiveUploaded creates an ArchiveUploaded event.
func NewArchiveUploaded(objectPath, zipPath string, projectID int) Event {
	return NewEvent(ArchiveUploaded, &UploadEvent{
		ObjectPath: objectPath,
		ZipPath:    zipPath,
		ProjectID:  projectID,
	})
}
