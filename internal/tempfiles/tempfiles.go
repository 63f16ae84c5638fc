// Package tempfiles tracks a job's intermediate artifacts and removes them,
// best effort, once the job reaches a terminal state.
package tempfiles

import (
	"os"
	"sync"

	"github.com/voxpipe/pkg/logger"
)

// Manager collects intermediate file paths for one job. Final deliverables
// are never tracked here.
type Manager struct {
	mu    sync.Mutex
	paths []string
}

func New() *Manager {
	return &Manager{}
}

// Track records a path for cleanup at job finalization.
func (m *Manager) Track(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
}

// Paths returns the tracked paths in tracking order.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

// Cleanup removes every tracked path. Missing files and permission errors are
// logged, never raised; cleanup can never change a job's verdict.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	paths := m.paths
	m.paths = nil
	m.mu.Unlock()

	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			logger.Warnf("cleanup: failed to remove %s: %v", path, err)
			continue
		}
		logger.Debugf("cleanup: removed %s", path)
	}
}
