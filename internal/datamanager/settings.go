package datamanager

import "sync"

// SettingsProvider is the collaborator surface described by spec.md §6: a
// single getter for the API key, so the value can rotate without any
// component holding a stale copy.
type SettingsProvider interface {
	APIKey() (string, bool)
}

// InMemorySettings is the default SettingsProvider, holding the key in
// memory and allowing it to be rotated at runtime (e.g. from a config
// reload) without restarting the process.
type InMemorySettings struct {
	mu  sync.RWMutex
	key string
	set bool
}

func NewInMemorySettings(apiKey string) *InMemorySettings {
	s := &InMemorySettings{}
	if apiKey != "" {
		s.key, s.set = apiKey, true
	}
	return s
}

func (s *InMemorySettings) APIKey() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.set
}

// SetAPIKey rotates the key.
func (s *InMemorySettings) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key, s.set = key, key != ""
}

var _ SettingsProvider = (*InMemorySettings)(nil)
