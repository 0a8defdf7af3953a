package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning indicates another listener holds the PID file.
var ErrAlreadyRunning = errors.New("import listener already running")

// PIDFile guards against two listeners serving the same project.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PIDFile at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the path to the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// Claim writes the current PID unless a live process already owns the file.
// A file left behind by a dead process is replaced.
func (p *PIDFile) Claim() error {
	pid, err := p.Read()
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		// Unreadable or corrupt; the owner cannot be verified, so take over.
		if rmErr := p.Remove(); rmErr != nil {
			return rmErr
		}
	case processAlive(pid):
		return fmt.Errorf("pid %d; %w", pid, ErrAlreadyRunning)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory; %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("failed to write temporary PID file; %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename PID file; %w", err)
	}
	return nil
}

// Read returns the PID recorded in the file.
func (p *PIDFile) Read() (int, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read PID file; %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file; %w", err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID %d; must be positive", pid)
	}
	return pid, nil
}

// Owner returns the recorded PID and whether that process is still alive.
func (p *PIDFile) Owner() (int, bool, error) {
	pid, err := p.Read()
	if err != nil {
		return 0, false, err
	}
	return pid, processAlive(pid), nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file; %w", err)
	}
	return nil
}

// processAlive probes pid with signal 0. EPERM means the process exists.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
