package events

// ConfigEvent describes the outcome of a configuration reload.
type ConfigEvent struct {
	ChangedSections []string
	// Reloadable is false when a changed section only applies on restart.
	Reloadable bool
	Error      string
}

// NewConfigReloaded creates a ConfigReloaded event.
func NewConfigReloaded(changed []string, reloadable bool) Event {
	return NewEvent(ConfigReloaded, &ConfigEvent{
		ChangedSections: changed,
		Reloadable:      reloadable,
	})
}

// NewConfigReloadFailed creates a ConfigReloadFailed event.
func NewConfigReloadFailed(err error) Event {
	e := &ConfigEvent{}
	if err != nil {
		e.Error = err.Error()
	}
	return NewEvent(ConfigReloadFailed, e)
}
