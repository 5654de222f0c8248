package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sqlgrid/internal/builder"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/hcl"
	"github.com/vk/sqlgrid/internal/jobgraph"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
	"github.com/vk/sqlgrid/internal/sandbox"
	"github.com/vk/sqlgrid/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunWorkerIfRequested(CoreModules...)
	os.Exit(m.Run())
}

// modulesDir holds the manifests shipped with the built-in modules.
var modulesDir = filepath.Join("..", "..", "modules")

const pipeline = `
-- enrich orders with exchange rates
CREATE SOURCE TABLE orders WITH (type = 'kafka', topic = 'orders');
CREATE BATCH TABLE rates WITH (type = 'http', url = 'https://rates.example.com');
CREATE SINK TABLE out WITH (type = 'stdout');
INSERT INTO out SELECT o.id, r.rate FROM orders AS o JOIN rates AS r ON o.cur = r.cur;
`

// setupApp creates an App whose sandbox workers are the running test binary.
func setupApp(t *testing.T, cfg Config) (*App, *testutil.SafeBuffer) {
	t.Helper()
	worker := testutil.SandboxConfig()
	cfg.ScriptPath = "unused.sql"
	cfg.PluginsPath = modulesDir
	cfg.LogLevel = "debug"
	cfg.WorkerPath = worker.WorkerPath
	cfg.WorkerEnv = worker.Env

	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	a, err := NewApp(logBuffer, appConfig, hcl.NewLoader())
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("SQLGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return a, logBuffer
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{})
	assert.Error(t, err)

	_, err = NewConfig(Config{ScriptPath: "a.sql", MaxSandboxes: -1})
	assert.Error(t, err)

	cfg, err := NewConfig(Config{ScriptPath: "a.sql"})
	require.NoError(t, err)
	assert.Equal(t, "modules", cfg.PluginsPath)
}

func TestNewApp_ShipsValidManifests(t *testing.T) {
	a, _ := setupApp(t, Config{})

	for _, key := range []struct {
		name string
		role config.Role
	}{
		{"kafka", config.RoleSource},
		{"kafka", config.RoleSink},
		{"print", config.RoleSink},
		{"s3", config.RoleSink},
		{"s3", config.RoleTransform},
		{"http", config.RoleTransform},
	} {
		_, ok := a.Registry().FindPlugin(key.name, key.role)
		assert.True(t, ok, "%s/%s", key.role, key.name)
	}
	assert.Equal(t, config.DefaultJobConfig(), a.Job())
}

func TestNewApp_RejectsMismatchedManifest(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"bad/manifest.hcl": `
plugin "bad" {
  role           = "sink"
  implementation = "NotRegistered"
}`,
	})
	cfg, err := NewConfig(Config{ScriptPath: "a.sql", PluginsPath: dir})
	require.NoError(t, err)

	_, err = NewApp(&testutil.SafeBuffer{}, cfg, hcl.NewLoader())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotRegistered")
}

func TestNewApp_CustomModules(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"custom/manifest.hcl": `
plugin "custom" {
  role           = "source"
  implementation = "CustomSource"
}`,
	})
	cfg, err := NewConfig(Config{ScriptPath: "a.sql", PluginsPath: dir})
	require.NoError(t, err)

	a, err := NewApp(&testutil.SafeBuffer{}, cfg, hcl.NewLoader(), &testutil.SimpleModule{
		Name: "CustomSource",
		Connector: &registry.RegisteredConnector{
			New: func(ctx context.Context, table string, options any) (runtime.Connector, error) {
				return testutil.StaticConnector{}, nil
			},
		},
	})
	require.NoError(t, err)

	_, ok := a.Registry().FindPlugin("custom", config.RoleSource)
	assert.True(t, ok)
	_, ok = a.Registry().Connector("KafkaSource")
	assert.False(t, ok, "explicit modules replace the built-in ones")
}

func TestCompile(t *testing.T) {
	a, out := setupApp(t, Config{})

	res, err := a.Compile(context.Background(), "job-1", pipeline)
	require.NoError(t, err)

	keys := make([]string, 0, len(res.Plugins))
	for _, p := range res.Plugins {
		keys = append(keys, p.Key())
	}
	assert.Equal(t, []string{"sink/print", "source/kafka", "transform/http"}, keys)
	assert.Empty(t, res.Unresolved)

	require.NotNil(t, res.Graph)
	assert.Equal(t, "job-1", res.Graph.Name)
	assert.Len(t, res.Graph.VerticesOf(jobgraph.KindLookup), 1)
	assert.Contains(t, out.String(), "job-1")
	assert.Contains(t, out.String(), "Compiling job.")
}

func TestCompile_DepsOnly(t *testing.T) {
	a, _ := setupApp(t, Config{DepsOnly: true})

	res, err := a.Compile(context.Background(), "job-2", pipeline+"CREATE SINK TABLE x WITH (type = 'mystery');")
	require.NoError(t, err)
	assert.Nil(t, res.Graph)
	assert.Len(t, res.Plugins, 3)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "mystery", res.Unresolved[0].ConnectorType)
}

func TestCompile_UnresolvedFailsInsideSandbox(t *testing.T) {
	a, _ := setupApp(t, Config{})

	res, err := a.Compile(context.Background(), "job-3", "CREATE SOURCE TABLE x WITH (type = 'mystery');")
	assert.Nil(t, res)

	var execErr *sandbox.SandboxExecutionError
	require.True(t, errors.As(err, &execErr))
	var unresolved *builder.UnresolvedConnectorError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "mystery", unresolved.ConnectorType)
}

func TestCompile_RoleMismatchReachesSandbox(t *testing.T) {
	a, _ := setupApp(t, Config{})

	res, err := a.Compile(context.Background(), "job-4", "CREATE SOURCE TABLE x WITH (type = 'stdout');")
	assert.Nil(t, res)

	var mismatch *builder.RoleMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "stdout", mismatch.ConnectorType)
	assert.Equal(t, config.RoleSource, mismatch.Want)
	assert.Equal(t, []config.Role{config.RoleSink}, mismatch.Have)
}

func TestRun_WritesGraph(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"job.sql": pipeline,
		"job.hcl": "job {\n  parallelism = 3\n}\n",
	})
	a, out := setupApp(t, Config{
		JobID:         "job-run",
		JobConfigPath: filepath.Join(dir, "job.hcl"),
		OutPath:       filepath.Join(dir, "graph.msgpack"),
	})
	a.config.ScriptPath = filepath.Join(dir, "job.sql")

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "vertex: query:1 query")
	assert.Contains(t, out.String(), "edge: query:1 -> sink:out")

	data, err := os.ReadFile(filepath.Join(dir, "graph.msgpack"))
	require.NoError(t, err)
	g, err := jobgraph.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "job-run", g.JobID)
	assert.Equal(t, 3, g.Config.Parallelism)
	for _, v := range g.Vertices {
		assert.Equal(t, 3, v.Parallelism, v.ID)
	}
}

func TestRun_MissingScript(t *testing.T) {
	a, _ := setupApp(t, Config{})
	a.config.ScriptPath = filepath.Join(t.TempDir(), "nope.sql")

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read script")
}

func TestRun_ConsoleServiceUnavailable(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"job.sql": pipeline})
	a, out := setupApp(t, Config{JobID: "job-c", ConsoleURL: "http://127.0.0.1:1"})
	a.config.ScriptPath = filepath.Join(dir, "job.sql")

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "Console service unavailable")
}
