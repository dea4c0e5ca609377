package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	current  atomic.Pointer[Config]
	loadedMu sync.Mutex
	// loadedPath is the file Initialize read, reused by ReloadConfig("").
	loadedPath string
	initOnce   sync.Once
)

// Initialize loads the process configuration once: path (empty means
// defaults only) plus SATURN_* overrides. Later calls are no-ops and return
// nil, even if the first call failed.
func Initialize(path string) error {
	var err error
	initOnce.Do(func() {
		var cfg *Config
		if cfg, err = LoadConfigWithEnvOverrides(path); err != nil {
			return
		}
		loadedMu.Lock()
		loadedPath = path
		loadedMu.Unlock()
		current.Store(cfg)
	})
	return err
}

// GetConfig returns the process configuration, or nil before Initialize
// or SetConfig.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig replaces the process configuration. Commands and tests that
// build a Config themselves use it instead of Initialize.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig re-reads path, or the file Initialize loaded when path is
// empty. The running configuration is kept when the new one is invalid.
func ReloadConfig(path string) error {
	if path == "" {
		loadedMu.Lock()
		path = loadedPath
		loadedMu.Unlock()
	}

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)
	return nil
}

// MustGetConfig is GetConfig for code that only runs after startup.
func MustGetConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

// Reset forgets the process configuration so Initialize runs again.
// Tests only.
func Reset() {
	loadedMu.Lock()
	loadedPath = ""
	loadedMu.Unlock()
	current.Store(nil)
	initOnce = sync.Once{}
}
