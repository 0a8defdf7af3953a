package events

// ImportEvent describes an archive import.
type ImportEvent struct {
	Source   string
	ZipPath  string
	Mode     string
	Imported int
	Skipped  int
	Error    string
}

// NewImportCompleted creates an ImportCompleted event.
func NewImportCompleted(source, zipPath, mode string, imported, skipped int) Event {
	return NewEvent(ImportCompleted, &ImportEvent{
		Source:   source,
		ZipPath:  zipPath,
		Mode:     mode,
		Imported: imported,
		Skipped:  skipped,
	})
}

// NewImportFailed creates an ImportFailed event.
func NewImportFailed(source, zipPath, mode string, err error) Event {
	e := &ImportEvent{
		Source:  source,
		ZipPath: zipPath,
		Mode:    mode,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return NewEvent(ImportFailed, e)
}
