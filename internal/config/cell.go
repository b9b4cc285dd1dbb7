package config

import (
	"sync"
	"sync/atomic"
)

// Cell is the shared (StreamingConfig, version) pair between the control
// exchange and the pipeline supervisors. Version zero means "not yet
// initialized"; supervisors idle until the first Store.
//
// Writes take the mutex and then publish the version with release ordering,
// so a reader that observes version N is guaranteed to read the config
// stored for N (or newer) under the mutex.
type Cell struct {
	mu      sync.Mutex
	cfg     StreamingConfig
	version atomic.Uint64
}

// Store replaces the desired config and bumps the version.
// Returns the new version.
func (c *Cell) Store(cfg StreamingConfig) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	return c.version.Add(1)
}

// Reset returns the cell to the uninitialized state: version zero, no
// config. Supervisors observing version zero tear down and idle until
// the next Store.
func (c *Cell) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = StreamingConfig{}
	c.version.Store(0)
}

// Load returns a copy of the current config together with its version.
func (c *Cell) Load() (StreamingConfig, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg, c.version.Load()
}

// Version returns the current version without copying the config.
func (c *Cell) Version() uint64 {
	return c.version.Load()
}
