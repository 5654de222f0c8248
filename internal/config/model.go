package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Role is the capability a connector provides within a statement.
type Role string

const (
	RoleSource    Role = "source"
	RoleSink      Role = "sink"
	RoleTransform Role = "transform"
)

// ParseRole converts a manifest role keyword into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSource, RoleSink, RoleTransform:
		return r, nil
	default:
		return "", fmt.Errorf("unknown plugin role %q: must be one of source, sink, transform", s)
	}
}

// Model is the unified, format-agnostic representation of everything the
// loader found: plugin manifests and, optionally, a job configuration.
type Model struct {
	Plugins []*PluginDefinition
	Job     *JobConfig
}

// PluginDefinition is the format-agnostic representation of a plugin
// manifest. It is the plugin descriptor the resolver hands back to callers.
type PluginDefinition struct {
	Name           string
	Aliases        []string
	Role           Role
	Implementation string
	Description    string
	// Artifacts are absolute paths of the files the plugin needs at runtime.
	Artifacts []string
	Options   map[string]*OptionDefinition
	// SourceFile is the manifest this definition was loaded from.
	SourceFile string
}

// Key returns the registry key for the definition.
func (p *PluginDefinition) Key() string {
	return PluginKey(p.Name, p.Role)
}

// Matches reports whether typeName names this plugin or one of its aliases.
func (p *PluginDefinition) Matches(typeName string) bool {
	if strings.EqualFold(p.Name, typeName) {
		return true
	}
	for _, alias := range p.Aliases {
		if strings.EqualFold(alias, typeName) {
			return true
		}
	}
	return false
}

// PluginKey builds the lookup key for a connector type and role.
func PluginKey(name string, role Role) string {
	return string(role) + "/" + strings.ToLower(name)
}

// OptionTag is the struct tag connectors use to map fields to WITH options.
const OptionTag = "sqlgrid"

// OptionDefinition defines a single WITH option accepted by a plugin.
type OptionDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *cty.Value
	Optional    bool
}

// JobConfig is passed through, unchanged, to the runtime environment.
type JobConfig struct {
	Parallelism        int               `msgpack:"parallelism"`
	CheckpointInterval time.Duration     `msgpack:"checkpoint_interval"`
	Properties         map[string]string `msgpack:"properties,omitempty"`
}

// DefaultJobConfig returns the configuration used when none is supplied.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Parallelism:        1,
		CheckpointInterval: 0,
		Properties:         map[string]string{},
	}
}
