package server

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/leefowlercu/asset-snapshot/internal/metrics"
)

// ComponentHealth is the state of one listener component.
type ComponentHealth struct {
	Healthy     bool      `json:"healthy"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
	Since       time.Time `json:"since,omitempty"`
}

// LastImport summarizes the most recent import handled by the listener.
type LastImport struct {
	SnapshotID int       `json:"snapshot_id"`
	Mode       string    `json:"mode"`
	Imported   int       `json:"imported"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// HealthStatus is the /readyz response.
type HealthStatus struct {
	// Status is "healthy" or "degraded". A degraded listener still serves.
	Status     string                     `json:"status"`
	Ready      bool                       `json:"ready"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	LastImport *LastImport                `json:"last_import,omitempty"`
}

// HealthManager aggregates component health. It is safe for concurrent use.
type HealthManager struct {
	clock clock.Clock

	mu         sync.RWMutex
	components map[string]ComponentHealth
	lastImport *LastImport
	startTime  time.Time
}

// NewHealthManager creates a HealthManager. A nil clock uses wall time.
func NewHealthManager(clk clock.Clock) *HealthManager {
	if clk == nil {
		clk = clock.New()
	}
	return &HealthManager{
		clock:      clk,
		components: make(map[string]ComponentHealth),
		startTime:  clk.Now(),
	}
}

// Report records the outcome of a component check. A nil err is healthy.
func (m *HealthManager) Report(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	h := ComponentHealth{Healthy: err == nil, LastChecked: now, Since: now}
	if err != nil {
		h.Error = err.Error()
	}
	if prev, ok := m.components[name]; ok && prev.Healthy == h.Healthy {
		h.Since = prev.Since
	}
	m.components[name] = h

	v := 0.0
	if h.Healthy {
		v = 1
	}
	metrics.ComponentStatus.WithLabelValues(name).Set(v)
}

// Remove stops tracking a component.
func (m *HealthManager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.components, name)
}

// RecordImport remembers the latest import outcome.
func (m *HealthManager) RecordImport(li LastImport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	li.FinishedAt = m.clock.Now()
	m.lastImport = &li
}

// Status returns the aggregate health.
func (m *HealthManager) Status() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := HealthStatus{
		Status:     "healthy",
		Ready:      true,
		Uptime:     m.clock.Since(m.startTime).Round(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(m.components)),
	}
	for name, h := range m.components {
		status.Components[name] = h
		if !h.Healthy {
			status.Status = "degraded"
		}
	}
	if m.lastImport != nil {
		li := *m.lastImport
		status.LastImport = &li
	}
	return status
}
