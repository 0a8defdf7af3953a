package config

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/leefowlercu/asset-snapshot/internal/events"
)

var (
	eventBusMu sync.RWMutex
	eventBus   events.Bus
)

// SetEventBus sets the bus that receives config reload events.
// Pass nil to stop publishing.
func SetEventBus(bus events.Bus) {
	eventBusMu.Lock()
	defer eventBusMu.Unlock()
	eventBus = bus
}

// ReloadableSections lists the config sections applied without a restart.
var ReloadableSections = []string{"log_level", "log_file"}

// detectChangedSections returns the top-level keys that differ between old and new.
func detectChangedSections(old, new *Config) []string {
	var changed []string

	if old.LogLevel != new.LogLevel {
		changed = append(changed, "log_level")
	}
	if old.LogFile != new.LogFile {
		changed = append(changed, "log_file")
	}
	if !reflect.DeepEqual(old.Project, new.Project) {
		changed = append(changed, "project")
	}
	if !reflect.DeepEqual(old.Export, new.Export) {
		changed = append(changed, "export")
	}
	if !reflect.DeepEqual(old.Server, new.Server) {
		changed = append(changed, "server")
	}
	if !reflect.DeepEqual(old.Import, new.Import) {
		changed = append(changed, "import")
	}
	if !reflect.DeepEqual(old.Metrics, new.Metrics) {
		changed = append(changed, "metrics")
	}

	return changed
}

func isReloadable(changed []string) bool {
	for _, section := range changed {
		reloadable := false
		for _, r := range ReloadableSections {
			if r == section {
				reloadable = true
				break
			}
		}
		if !reloadable {
			return false
		}
	}
	return true
}

func currentBus() events.Bus {
	eventBusMu.RLock()
	defer eventBusMu.RUnlock()
	return eventBus
}

func publishConfigReloaded(old, new *Config) {
	bus := currentBus()
	if bus == nil {
		return
	}

	changed := detectChangedSections(old, new)
	reloadable := isReloadable(changed)
	if !reloadable {
		slog.Warn("config reload includes sections that apply only after restart",
			"changed_sections", changed)
	}

	if err := bus.Publish(context.Background(), events.NewConfigReloaded(changed, reloadable)); err != nil {
		slog.Error("failed to publish config reload event", "error", err)
	}
}

func publishConfigReloadFailed(err error) {
	bus := currentBus()
	if bus == nil {
		return
	}

	if pubErr := bus.Publish(context.Background(), events.NewConfigReloadFailed(err)); pubErr != nil {
		slog.Error("failed to publish config reload failed event", "error", pubErr)
	}
}
