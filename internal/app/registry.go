package app

import (
	"fmt"
	"sync"
)

// Registry manages the collection of loaded applications.
type Registry struct {
	mu   sync.RWMutex
	apps map[string]*App
}

// NewRegistry creates a new application registry.
func NewRegistry(apps map[string]*App) *Registry {
	return &Registry{
		apps: apps,
	}
}

// Get retrieves an app by name.
func (r *Registry) Get(name string) (*App, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.apps[name]
	if !exists {
		return nil, fmt.Errorf("app '%s' not found", name)
	}

	return a, nil
}

// List returns all app names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}

	return names
}

// Count returns the number of configured apps.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.apps)
}
