package features

import (
	"sort"
	"sync"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Predefined feature flag names
const (
	// FeatureValidationJournal records every tap in the validations table
	FeatureValidationJournal = "validation_journal"
	// FeatureReceiptCache keeps recent receipts in the cache
	FeatureReceiptCache = "receipt_cache"
	// FeatureEventHooks publishes validation and issuance events
	FeatureEventHooks = "event_hooks"
)

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// NewDefaultManager returns a manager with the terminal flags registered
// and enabled.
func NewDefaultManager() *Manager {
	m := NewManager()
	m.Register(FeatureValidationJournal, true, "Journal every validation outcome")
	m.Register(FeatureReceiptCache, true, "Cache validation receipts for fast lookup")
	m.Register(FeatureEventHooks, true, "Publish validation and issuance events")
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
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	return exists && flag.Enabled
}

// Set switches a registered flag and reports whether it exists.
func (m *Manager) Set(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	flag, exists := m.flags[name]
	if exists {
		flag.Enabled = enabled
	}
	return exists
}

// Enable enables a feature flag.
func (m *Manager) Enable(name string) bool {
	return m.Set(name, true)
}

// Disable disables a feature flag.
func (m *Manager) Disable(name string) bool {
	return m.Set(name, false)
}

// List returns a copy of all flags ordered by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FeatureFlag, 0, len(m.flags))
	for _, v := range m.flags {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
