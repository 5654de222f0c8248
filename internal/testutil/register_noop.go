package testutil

import (
	"context"

	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
)

// StaticConnector is a connector whose properties are fixed.
type StaticConnector map[string]string

// Properties implements runtime.Connector.
func (c StaticConnector) Properties() map[string]string { return c }

// NoOpModule registers a connector implementation named "NoOp" that takes
// no options and creates an empty connector. It is useful for manifests
// that only need to pass registry validation.
type NoOpModule struct{}

// Register implements the registry.Module interface.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterConnector("NoOp", &registry.RegisteredConnector{
		New: func(ctx context.Context, table string, options any) (runtime.Connector, error) {
			return StaticConnector{}, nil
		},
	})
}
