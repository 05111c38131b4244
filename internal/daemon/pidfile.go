// Package daemon tracks a background `nest serve` process through a PID file.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRunning is returned by Acquire when a live process already holds the file.
var ErrRunning = errors.New("already running")

// PIDFile records the PID of the serving process.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile for path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire records pid unless another live process is already recorded. A
// stale file left behind by a crashed server is overwritten.
func (p *PIDFile) Acquire(pid int) error {
	if existing, running := p.IsRunning(); running && existing != pid {
		return fmt.Errorf("server %w (pid %d)", ErrRunning, existing)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read returns the recorded PID.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Release removes the file if it still records pid. Missing files are ignored.
func (p *PIDFile) Release(pid int) error {
	recorded, err := p.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && recorded != pid {
		return nil
	}
	if err := os.Remove(p.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
