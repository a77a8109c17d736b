// Package conditions implements the condition-evaluation engine: a registry
// of pluggable completion-style evaluators and the ANY/ALL aggregation that
// decides whether a user qualifies for an instance's notifications.
package conditions

import (
	"sort"
	"sync"

	"coursepulse/internal/types"
)

// Registry is the capability table mapping component names to condition
// plugins. Plugins are small stateless evaluators registered at startup;
// lookup is read-mostly and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]types.ConditionPlugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]types.ConditionPlugin)}
}

// Register adds a plugin under the given component name, replacing any
// existing registration.
func (r *Registry) Register(component string, plugin types.ConditionPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[component] = plugin
}

// Lookup returns the plugin for a component name.
func (r *Registry) Lookup(component string) (types.ConditionPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[component]
	return p, ok
}

// Components returns the registered component names in sorted order.
func (r *Registry) Components() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
