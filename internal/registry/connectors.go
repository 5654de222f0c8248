package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/vk/sqlgrid/internal/runtime"
)

// ConnectorFactory creates a connector instance for a table from its
// decoded options. options is the value returned by NewOptions.
type ConnectorFactory func(ctx context.Context, table string, options any) (runtime.Connector, error)

// RegisteredConnector holds the compiled Go parts of a connector.
type RegisteredConnector struct {
	// NewOptions returns a pointer to a fresh options struct. It may be nil
	// for connectors without options.
	NewOptions func() any
	// OptionsType is the struct type NewOptions points to. It is derived
	// during registration when left empty.
	OptionsType reflect.Type
	New         ConnectorFactory
}

// RegisterConnector registers a Go connector factory under the name used by
// manifests in their `implementation` attribute.
func (r *Registry) RegisterConnector(name string, c *RegisteredConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[name]; exists {
		panic(fmt.Sprintf("connector implementation with name '%s' already registered", name))
	}
	if c.New == nil {
		panic(fmt.Sprintf("connector implementation '%s' has no factory", name))
	}
	if c.OptionsType == nil && c.NewOptions != nil {
		c.OptionsType = reflect.TypeOf(c.NewOptions()).Elem()
	}
	slog.Debug("Registering connector implementation.", "name", name)
	r.connectors[name] = c
}

// Connector returns the Go connector registered under an implementation name.
func (r *Registry) Connector(implementation string) (*RegisteredConnector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[implementation]
	return c, ok
}
