package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/sqlgrid/internal/config"
)

// Module is the interface that all connector modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered connector factories and plugin definitions
// for a single application instance. It is read-only once populated and
// safe for concurrent lookups.
type Registry struct {
	mu          sync.RWMutex
	connectors  map[string]*RegisteredConnector
	definitions map[string]*config.PluginDefinition
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		connectors:  make(map[string]*RegisteredConnector),
		definitions: make(map[string]*config.PluginDefinition),
	}
}

// Register runs the Register method of every module.
func (r *Registry) Register(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// PopulateDefinitionsFromModel copies the loaded plugin definitions from the
// config model into the registry. Within one role every name and alias must
// identify a single plugin.
func (r *Registry) PopulateDefinitionsFromModel(model *config.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range model.Plugins {
		if prev, ok := r.definitions[def.Key()]; ok {
			return fmt.Errorf("plugin %q with role %s already defined in %s", def.Name, def.Role, prev.SourceFile)
		}
		for _, prev := range r.definitions {
			if prev.Role != def.Role {
				continue
			}
			if name, ok := overlap(prev, def); ok {
				return fmt.Errorf("plugin %q with role %s: type name %q already used by plugin %q in %s", def.Name, def.Role, name, prev.Name, prev.SourceFile)
			}
		}
		r.definitions[def.Key()] = def
	}
	return nil
}

// overlap reports a name or alias of def that prev also answers to.
func overlap(prev, def *config.PluginDefinition) (string, bool) {
	for _, name := range append([]string{def.Name}, def.Aliases...) {
		if prev.Matches(name) {
			return name, true
		}
	}
	return "", false
}

// Definitions returns every plugin definition sorted by role and then name.
func (r *Registry) Definitions() []*config.PluginDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*config.PluginDefinition, 0, len(r.definitions))
	for _, def := range r.definitions {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FindPlugin returns the plugin serving typeName in the given role. Both the
// plugin name and its aliases match, case-insensitively. Registration keeps
// names unique per role, so at most one plugin matches.
func (r *Registry) FindPlugin(typeName string, role config.Role) (*config.PluginDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.definitions[config.PluginKey(typeName, role)]; ok {
		return def, true
	}
	for _, def := range r.definitions {
		if def.Role == role && def.Matches(typeName) {
			return def, true
		}
	}
	return nil, false
}

// FindByName returns the plugins matching typeName in any role, sorted by role.
func (r *Registry) FindByName(typeName string) []*config.PluginDefinition {
	var out []*config.PluginDefinition
	for _, def := range r.Definitions() {
		if def.Matches(typeName) {
			out = append(out, def)
		}
	}
	return out
}
