package features

import (
	"sort"
	"sync"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string
	Enabled     bool
	Description string
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// Predefined feature flag names
const (
	// FeatureCacheEnabled serves the active listing from the cache
	FeatureCacheEnabled = "cache_enabled"
	// FeatureEventHooksEnabled publishes offer events to subscribers
	FeatureEventHooksEnabled = "event_hooks_enabled"
)

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// Defaults registers the flags this service knows about.
func Defaults(cacheEnabled, eventsEnabled bool) *Manager {
	m := NewManager()
	m.Register(FeatureCacheEnabled, cacheEnabled, "serve GET listings from the cache")
	m.Register(FeatureEventHooksEnabled, eventsEnabled, "publish offer lifecycle events")
	return m
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled. Unknown flags are disabled.
func (m *Manager) IsEnabled(name string) bool {
	if m == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}

	return flag.Enabled
}

// Enable enables a feature flag.
func (m *Manager) Enable(name string) {
	m.set(name, true)
}

// Disable disables a feature flag.
func (m *Manager) Disable(name string) {
	m.set(name, false)
}

func (m *Manager) set(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, exists := m.flags[name]; exists {
		flag.Enabled = enabled
	}
}

// Apply enables or disables registered flags by name. Unknown names are
// returned so callers can report them.
func (m *Manager) Apply(overrides map[string]bool) []string {
	var unknown []string
	for name, on := range overrides {
		if !m.has(name) {
			unknown = append(unknown, name)
			continue
		}
		if on {
			m.Enable(name)
		} else {
			m.Disable(name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func (m *Manager) has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.flags[name]
	return ok
}

// GetAll returns a copy of all feature flags.
func (m *Manager) GetAll() map[string]FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]FeatureFlag, len(m.flags))
	for k, v := range m.flags {
		result[k] = *v
	}
	return result
}
