package depends

import (
	"context"
	"sort"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/flow"
)

// PluginFinder looks up a plugin by connector type name and role.
type PluginFinder interface {
	FindPlugin(typeName string, role config.Role) (*config.PluginDefinition, bool)
}

// NameFinder is implemented by finders that can look a connector type up
// under any role.
type NameFinder interface {
	FindByName(typeName string) []*config.PluginDefinition
}

// Resolver maps connector references onto registered plugins.
type Resolver struct {
	Finder PluginFinder
}

// NewResolver creates a Resolver backed by finder.
func NewResolver(finder PluginFinder) *Resolver {
	return &Resolver{Finder: finder}
}

// Resolve returns the plugin serving ref. A missing plugin is not an error.
func (r *Resolver) Resolve(ref ConnectorReference) (*config.PluginDefinition, bool) {
	if r.Finder == nil {
		return nil, false
	}
	return r.Finder.FindPlugin(ref.ConnectorType, ref.Role)
}

// ResolveAll returns the distinct plugins serving refs, sorted by role and
// then name. The result depends only on the set of references, not on
// their order or multiplicity.
func (r *Resolver) ResolveAll(refs []ConnectorReference) []*config.PluginDefinition {
	seen := make(map[string]*config.PluginDefinition)
	for _, ref := range refs {
		if def, ok := r.Resolve(ref); ok {
			seen[def.Key()] = def
		}
	}
	return sortedDefinitions(seen)
}

// Candidates returns the plugins registered under an unresolved
// reference's type name for a different role. The compiler needs them in
// its isolation context to report a role mismatch instead of an
// unresolved connector. Finders without name lookup yield nothing.
func (r *Resolver) Candidates(refs []ConnectorReference) []*config.PluginDefinition {
	names, ok := r.Finder.(NameFinder)
	if !ok {
		return nil
	}
	seen := make(map[string]*config.PluginDefinition)
	for _, ref := range r.Unresolved(refs) {
		for _, def := range names.FindByName(ref.ConnectorType) {
			seen[def.Key()] = def
		}
	}
	return sortedDefinitions(seen)
}

func sortedDefinitions(seen map[string]*config.PluginDefinition) []*config.PluginDefinition {
	out := make([]*config.PluginDefinition, 0, len(seen))
	for _, def := range seen {
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

// Unresolved returns the references no plugin serves, in input order.
func (r *Resolver) Unresolved(refs []ConnectorReference) []ConnectorReference {
	var out []ConnectorReference
	for _, ref := range refs {
		if _, ok := r.Resolve(ref); !ok {
			out = append(out, ref)
		}
	}
	return out
}

// Dependencies is the outcome of the dependency pass over a flow.
type Dependencies struct {
	References []ConnectorReference
	Plugins    []*config.PluginDefinition
	Unresolved []ConnectorReference
	// Candidates serve an unresolved type name under another role.
	Candidates []*config.PluginDefinition
}

// IsolationContext returns the plugins a sandboxed compile of the flow must
// be able to load: the resolved plugins plus the role candidates.
func (d *Dependencies) IsolationContext() []*config.PluginDefinition {
	seen := make(map[string]*config.PluginDefinition, len(d.Plugins)+len(d.Candidates))
	for _, def := range d.Plugins {
		seen[def.Key()] = def
	}
	for _, def := range d.Candidates {
		seen[def.Key()] = def
	}
	return sortedDefinitions(seen)
}

// Analyze runs extraction and resolution over a flow. Unresolved references
// are logged as warnings and returned for reporting; the strict compile
// decides whether they are fatal.
func (r *Resolver) Analyze(ctx context.Context, f flow.Flow) *Dependencies {
	logger := ctxlog.FromContext(ctx)
	refs := ExtractReferences(ctx, f)
	deps := &Dependencies{
		References: refs,
		Plugins:    r.ResolveAll(refs),
		Unresolved: r.Unresolved(refs),
		Candidates: r.Candidates(refs),
	}
	for _, ref := range deps.Unresolved {
		logger.Warn("No plugin found for connector reference.", "role", ref.Role, "type", ref.ConnectorType, "table", ref.Table, "index", ref.Statement.Index)
	}
	logger.Debug("Resolved flow dependencies.", "references", len(refs), "plugins", len(deps.Plugins), "candidates", len(deps.Candidates))
	return deps
}
