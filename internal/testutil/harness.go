// Package testutil provides shared fixtures for tests: temporary plugin
// manifests, small connector modules and the helper-process worker used by
// sandbox tests.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/hcl"
	"github.com/vk/sqlgrid/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// WriteFiles writes files, keyed by slash-separated relative path, into a
// fresh temporary directory and returns the directory.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// Plugins is a loaded set of plugin manifests.
type Plugins struct {
	Dir      string
	Model    *config.Model
	Registry *registry.Registry
}

// Get returns the definition for a plugin name and role, failing the test
// when it does not exist.
func (p *Plugins) Get(t *testing.T, name string, role config.Role) *config.PluginDefinition {
	t.Helper()
	def, ok := p.Registry.FindPlugin(name, role)
	require.True(t, ok, "plugin %s/%s not loaded", role, name)
	return def
}

// LoadPlugins writes manifests to disk and loads them, together with the
// given modules, into a validated registry.
func LoadPlugins(t *testing.T, manifests map[string]string, modules ...registry.Module) *Plugins {
	t.Helper()
	dir := WriteFiles(t, manifests)
	reg := registry.New()
	reg.Register(modules...)
	model, _, err := reg.LoadDefinitions(context.Background(), hcl.NewLoader(), dir)
	require.NoError(t, err)
	require.NoError(t, reg.ValidateRegistry(context.Background()))
	return &Plugins{Dir: dir, Model: model, Registry: reg}
}

// LoadManifests loads manifest files that already exist on disk, such as a
// module's own manifest.hcl, into a validated registry.
func LoadManifests(t *testing.T, paths []string, modules ...registry.Module) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.Register(modules...)
	_, _, err := reg.LoadDefinitions(context.Background(), hcl.NewLoader(), paths...)
	require.NoError(t, err)
	require.NoError(t, reg.ValidateRegistry(context.Background()))
	return reg
}
