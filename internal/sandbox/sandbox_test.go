package sandbox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sqlgrid/internal/builder"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/console"
	"github.com/vk/sqlgrid/internal/depends"
	"github.com/vk/sqlgrid/internal/flow"
	"github.com/vk/sqlgrid/internal/jobgraph"
	"github.com/vk/sqlgrid/internal/sandbox"
	"github.com/vk/sqlgrid/internal/statement"
	"github.com/vk/sqlgrid/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunWorkerIfRequested(&testutil.FixtureModule{})
	os.Exit(m.Run())
}

const genFlow = `
CREATE SOURCE TABLE ticks WITH (type = 'datagen', rows = 5);
CREATE SINK TABLE void WITH (type = 'blackhole');
INSERT INTO void SELECT * FROM ticks;
`

func allPlugins(t *testing.T) (*testutil.Plugins, []*config.PluginDefinition) {
	t.Helper()
	p := testutil.LoadPlugins(t, testutil.FixtureManifests, &testutil.FixtureModule{})
	return p, p.Registry.Definitions()
}

func collect(lines <-chan console.Line) func() []console.Line {
	var (
		mu  sync.Mutex
		out []console.Line
		wg  sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for l := range lines {
			mu.Lock()
			out = append(out, l)
			mu.Unlock()
		}
	}()
	return func() []console.Line {
		wg.Wait()
		return out
	}
}

func TestCompile_Success(t *testing.T) {
	_, plugins := allPlugins(t)
	lines := make(chan console.Line)
	wait := collect(lines)

	sb := sandbox.New(testutil.SandboxConfig())
	g, err := sb.Compile(context.Background(), &sandbox.Request{
		JobID:   "job-ok",
		Flow:    flow.Split(genFlow),
		Job:     &config.JobConfig{Parallelism: 4},
		Plugins: plugins,
		Console: lines,
	})
	close(lines)
	require.NoError(t, err)
	require.NotNil(t, g)

	assert.Equal(t, "job-ok", g.JobID)
	assert.Equal(t, "job-ok", g.Name)
	assert.Equal(t, 4, g.Config.Parallelism)

	src, ok := g.Vertex("source:ticks")
	require.True(t, ok)
	assert.Equal(t, "gen", src.Connector)
	assert.Equal(t, "5", src.Properties["rows"])
	assert.Len(t, g.VerticesOf(jobgraph.KindSink), 1)

	got := wait()
	require.NotEmpty(t, got, "worker diagnostics are streamed back")
	var sawCompiling bool
	for _, l := range got {
		assert.Equal(t, "job-ok", l.JobID)
		if strings.Contains(l.Text, "Compiling job.") {
			sawCompiling = true
		}
	}
	assert.True(t, sawCompiling)
}

func TestCompile_Deterministic(t *testing.T) {
	_, plugins := allPlugins(t)
	sb := sandbox.New(testutil.SandboxConfig())
	req := &sandbox.Request{JobID: "job-d", Flow: flow.Split(genFlow), Plugins: plugins}

	first, err := sb.Compile(context.Background(), req)
	require.NoError(t, err)
	second, err := sb.Compile(context.Background(), req)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("graphs differ between runs (-first +second):\n%s", diff)
	}
}

func TestCompile_UnresolvedConnector(t *testing.T) {
	_, plugins := allPlugins(t)
	sb := sandbox.New(testutil.SandboxConfig())

	_, err := sb.Compile(context.Background(), &sandbox.Request{
		JobID:   "job-x",
		Flow:    flow.Split("CREATE SINK TABLE void WITH (type = 'blackhole'); CREATE SOURCE TABLE a WITH (type = 'unknown-x');"),
		Plugins: plugins,
	})
	require.Error(t, err)

	var execErr *sandbox.SandboxExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "job-x", execErr.JobID)
	assert.NotEmpty(t, execErr.Remote)

	var unresolved *builder.UnresolvedConnectorError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "unknown-x", unresolved.ConnectorType)

	var stmtErr *builder.StatementError
	require.True(t, errors.As(err, &stmtErr))
	assert.Equal(t, 1, stmtErr.Index)
	assert.Equal(t, "CREATE SOURCE TABLE a WITH (type = 'unknown-x')", stmtErr.Text)
}

func TestCompile_IsolationContextLimitsPlugins(t *testing.T) {
	p, _ := allPlugins(t)
	sb := sandbox.New(testutil.SandboxConfig())

	// The sink implementation is compiled into the worker, but its manifest
	// is not part of the plugin set.
	_, err := sb.Compile(context.Background(), &sandbox.Request{
		JobID:   "job-iso",
		Flow:    flow.Split(genFlow),
		Plugins: []*config.PluginDefinition{p.Get(t, "gen", config.RoleSource)},
	})
	var unresolved *builder.UnresolvedConnectorError
	require.True(t, errors.As(err, &unresolved), "got %v", err)
	assert.Equal(t, "blackhole", unresolved.ConnectorType)
}

func TestCompile_RoleMismatchWithResolvedContext(t *testing.T) {
	p, _ := allPlugins(t)
	f := flow.Split("CREATE SOURCE TABLE a WITH (type = 'blackhole');")

	deps := depends.NewResolver(p.Registry).Analyze(context.Background(), f)
	require.Empty(t, deps.Plugins)
	require.Len(t, deps.Unresolved, 1)

	_, err := sandbox.New(testutil.SandboxConfig()).Compile(context.Background(), &sandbox.Request{
		JobID:   "job-role",
		Flow:    f,
		Plugins: deps.IsolationContext(),
	})
	var mismatch *builder.RoleMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "blackhole", mismatch.ConnectorType)
	assert.Equal(t, config.RoleSource, mismatch.Want)
	assert.Equal(t, []config.Role{config.RoleSink}, mismatch.Have)
}

func TestCompile_DeclarationErrorsCrossBoundary(t *testing.T) {
	_, plugins := allPlugins(t)

	testCases := []struct {
		name   string
		script string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "table declared twice",
			script: "CREATE SOURCE TABLE ticks WITH (type = 'datagen'); CREATE SINK TABLE ticks WITH (type = 'blackhole');",
			check: func(t *testing.T, err error) {
				var dup *builder.DuplicateTableError
				require.True(t, errors.As(err, &dup), "got %v", err)
				assert.Equal(t, "ticks", dup.Table)
				assert.Equal(t, 0, dup.FirstIndex)
			},
		},
		{
			name:   "table declared twice with IF NOT EXISTS",
			script: "CREATE SOURCE TABLE ticks WITH (type = 'datagen'); CREATE SOURCE TABLE IF NOT EXISTS ticks WITH (type = 'datagen');",
			check: func(t *testing.T, err error) {
				var dup *builder.DuplicateTableError
				require.True(t, errors.As(err, &dup), "got %v", err)
				assert.Equal(t, "ticks", dup.Table)
			},
		},
		{
			name:   "sink plugin used as source",
			script: "CREATE SOURCE TABLE a WITH (type = 'blackhole');",
			check: func(t *testing.T, err error) {
				var mismatch *builder.RoleMismatchError
				require.True(t, errors.As(err, &mismatch), "got %v", err)
				assert.Equal(t, config.RoleSource, mismatch.Want)
				assert.Equal(t, []config.Role{config.RoleSink}, mismatch.Have)
			},
		},
	}

	sb := sandbox.New(testutil.SandboxConfig())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sb.Compile(context.Background(), &sandbox.Request{
				JobID:   "job-decl",
				Flow:    flow.Split(tc.script),
				Plugins: plugins,
			})
			var execErr *sandbox.SandboxExecutionError
			require.True(t, errors.As(err, &execErr), "got %v", err)
			tc.check(t, err)
		})
	}
}

func TestCompile_UndrainedConsoleDoesNotBlock(t *testing.T) {
	_, plugins := allPlugins(t)
	lines := make(chan console.Line)
	defer close(lines)

	done := make(chan error, 1)
	go func() {
		_, err := sandbox.New(testutil.SandboxConfig()).Compile(context.Background(), &sandbox.Request{
			JobID:   "job-quiet",
			Flow:    flow.Split(genFlow),
			Plugins: plugins,
			Console: lines,
		})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(30 * time.Second):
		t.Fatal("compile blocked on an undrained console channel")
	}
}

func TestCompile_ParseErrorCrossesBoundary(t *testing.T) {
	_, plugins := allPlugins(t)
	sb := sandbox.New(testutil.SandboxConfig())

	_, err := sb.Compile(context.Background(), &sandbox.Request{
		JobID:   "job-p",
		Flow:    flow.Flow{"CREATE SINK TABLE void WITH (type = 'blackhole')", "INSERT INTO void\nSELECT FROM"},
		Plugins: plugins,
	})
	var pe *statement.ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, 2, pe.Line)
}

func TestCompile_PanicInsideBoundary(t *testing.T) {
	_, plugins := allPlugins(t)
	sb := sandbox.New(testutil.SandboxConfig())

	_, err := sb.Compile(context.Background(), &sandbox.Request{
		JobID:   "job-boom",
		Flow:    flow.Split("CREATE SINK TABLE b WITH (type = 'boom')"),
		Plugins: plugins,
	})
	var execErr *sandbox.SandboxExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, execErr.Error(), "boom sink exploded")
	assert.Contains(t, execErr.Remote, "goroutine")
}

func TestCompile_ClassLoadingErrors(t *testing.T) {
	p, _ := allPlugins(t)
	gen := p.Get(t, "gen", config.RoleSource)

	t.Run("missing artifact", func(t *testing.T) {
		withArtifact := *gen
		withArtifact.Artifacts = []string{filepath.Join(p.Dir, "gen", "lib", "missing.jar")}

		sb := sandbox.New(testutil.SandboxConfig())
		_, err := sb.Compile(context.Background(), &sandbox.Request{
			JobID:   "job-cl",
			Flow:    flow.Split(genFlow),
			Plugins: []*config.PluginDefinition{&withArtifact},
		})
		var cl *sandbox.ClassLoadingError
		require.True(t, errors.As(err, &cl), "got %v", err)
		assert.Equal(t, withArtifact.Artifacts, cl.Missing)
	})

	t.Run("manifest without source file", func(t *testing.T) {
		detached := *gen
		detached.SourceFile = ""

		sb := sandbox.New(testutil.SandboxConfig())
		_, err := sb.Compile(context.Background(), &sandbox.Request{JobID: "j", Plugins: []*config.PluginDefinition{&detached}})
		var cl *sandbox.ClassLoadingError
		assert.True(t, errors.As(err, &cl))
	})

	t.Run("worker cannot be started", func(t *testing.T) {
		cfg := testutil.SandboxConfig()
		cfg.WorkerPath = filepath.Join(t.TempDir(), "no-such-worker")

		_, err := sandbox.New(cfg).Compile(context.Background(), &sandbox.Request{JobID: "j", Flow: flow.Split(genFlow)})
		var cl *sandbox.ClassLoadingError
		assert.True(t, errors.As(err, &cl), "got %v", err)
	})

	t.Run("manifest rejected by worker", func(t *testing.T) {
		broken := *gen
		broken.SourceFile = filepath.Join(t.TempDir(), "broken.hcl")
		require.NoError(t, os.WriteFile(broken.SourceFile, []byte(`plugin "x" {`), 0o644))

		_, err := sandbox.New(testutil.SandboxConfig()).Compile(context.Background(), &sandbox.Request{
			JobID:   "j",
			Flow:    flow.Split(genFlow),
			Plugins: []*config.PluginDefinition{&broken},
		})
		var cl *sandbox.ClassLoadingError
		assert.True(t, errors.As(err, &cl), "got %v", err)
	})
}

func TestCompile_ConcurrentBoundariesAreIsolated(t *testing.T) {
	_, plugins := allPlugins(t)
	cfg := testutil.SandboxConfig()
	cfg.MaxConcurrent = 2
	sb := sandbox.New(cfg)

	slowFlow := strings.Replace(genFlow, "rows = 5", "rows = 5, delay = '300ms'", 1)
	jobs := map[string]string{
		"job-good": slowFlow,
		"job-bad":  "CREATE SOURCE TABLE a WITH (type = 'unknown-x')",
	}

	type result struct {
		graph *jobgraph.JobGraph
		err   error
		lines []console.Line
	}
	var (
		mu      sync.Mutex
		results = make(map[string]result)
		wg      sync.WaitGroup
	)
	for jobID, script := range jobs {
		wg.Add(1)
		go func(jobID, script string) {
			defer wg.Done()
			lines := make(chan console.Line, 64)
			wait := collect(lines)
			g, err := sb.Compile(context.Background(), &sandbox.Request{
				JobID:   jobID,
				Flow:    flow.Split(script),
				Plugins: plugins,
				Console: lines,
			})
			close(lines)
			mu.Lock()
			results[jobID] = result{graph: g, err: err, lines: wait()}
			mu.Unlock()
		}(jobID, script)
	}
	wg.Wait()

	good := results["job-good"]
	require.NoError(t, good.err)
	assert.Equal(t, "job-good", good.graph.JobID)

	bad := results["job-bad"]
	var unresolved *builder.UnresolvedConnectorError
	require.True(t, errors.As(bad.err, &unresolved))
	assert.Nil(t, bad.graph)

	for jobID, r := range results {
		for _, l := range r.lines {
			assert.Equal(t, jobID, l.JobID, "console line attributed to the wrong job")
		}
	}
}

func TestCompile_Cancelled(t *testing.T) {
	_, plugins := allPlugins(t)
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan console.Line)
	go func() {
		// Cancel as soon as the worker reports progress.
		for l := range lines {
			if strings.Contains(l.Text, "Compiling job.") {
				cancel()
			}
		}
	}()
	defer close(lines)

	slowFlow := strings.Replace(genFlow, "rows = 5", "delay = '1m'", 1)
	_, err := sandbox.New(testutil.SandboxConfig()).Compile(ctx, &sandbox.Request{
		JobID:   "job-c",
		Flow:    flow.Split(slowFlow),
		Plugins: plugins,
		Console: lines,
	})
	var execErr *sandbox.SandboxExecutionError
	require.True(t, errors.As(err, &execErr), "got %v", err)
	assert.ErrorIs(t, err, context.Canceled)
}
