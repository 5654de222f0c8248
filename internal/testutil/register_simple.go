package testutil

import "github.com/vk/sqlgrid/internal/registry"

// SimpleModule is a test helper for easily creating a mock module that
// registers a single connector implementation.
type SimpleModule struct {
	Name      string
	Connector *registry.RegisteredConnector
}

// Register implements the registry.Module interface.
func (m *SimpleModule) Register(r *registry.Registry) {
	if m.Name != "" && m.Connector != nil {
		r.RegisterConnector(m.Name, m.Connector)
	}
}
