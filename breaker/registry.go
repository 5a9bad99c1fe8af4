package breaker

import "sync"

// Registry owns the mapping from dependency name to breaker instance. It is constructed
// once at process start and handed to every caller; there is deliberately no package-level
// singleton.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	settings func(name string) Settings
}

// NewRegistry creates a registry; settingsFor resolves per-dependency settings and may be
// nil to use the defaults for every dependency
func NewRegistry(settingsFor func(name string) Settings) *Registry {
	if settingsFor == nil {
		settingsFor = func(string) Settings { return DefaultSettings() }
	}
	return &Registry{breakers: make(map[string]*Breaker), settings: settingsFor}
}

// Get returns the breaker for the named dependency, creating it on first use
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, present := r.breakers[name]
	r.mu.RUnlock()
	if present {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, present = r.breakers[name]; present {
		return b
	}
	b = New(name, r.settings(name))
	r.breakers[name] = b
	return b
}

// Snapshots captures every registered breaker's state for health reporting
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		result = append(result, b.GetSnapshot())
	}
	return result
}
