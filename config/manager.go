package config

import (
	"sync"

	"github.com/danielcherubini/elegoo-printercore/errors"
)

// Manager owns a SafeConfig backed by a file on disk. Unlike the teacher's
// JetStream-KV-backed manager, there is no message bus here to push live
// updates: the host shell calls Reload on whatever schedule it wants (a
// filesystem watch, a UI "save" button, a signal handler).
type Manager struct {
	mu   sync.RWMutex
	path string
	safe *SafeConfig
}

// NewManager loads path once and returns a Manager wrapping it.
func NewManager(path string) (*Manager, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Manager", "NewManager", "initial config load")
	}
	return &Manager{
		path: path,
		safe: NewSafeConfig(cfg),
	}, nil
}

// Config returns the current, validated configuration.
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.safe.Get()
}

// Reload re-reads the config file from disk and swaps it in atomically. On
// parse or validation failure the previously loaded config is left in place
// and the error is returned to the caller.
func (m *Manager) Reload() error {
	cfg, err := LoadFile(m.path)
	if err != nil {
		return errors.WrapInvalid(err, "Manager", "Reload", "reload config file")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.safe.Update(cfg)
}

// Path returns the file path this manager was constructed with.
func (m *Manager) Path() string {
	return m.path
}
