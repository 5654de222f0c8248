package app

import (
	"context"
	"sync"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/console"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/depends"
	"github.com/vk/sqlgrid/internal/flow"
	"github.com/vk/sqlgrid/internal/jobgraph"
	"github.com/vk/sqlgrid/internal/sandbox"
)

// Result is the outcome of compiling one script.
type Result struct {
	JobID string
	// Graph is nil when only dependencies were requested.
	Graph *jobgraph.JobGraph
	// Plugins lists the plugins the script's references resolved to.
	Plugins []*config.PluginDefinition
	// Unresolved lists references the dependency pass found no plugin for.
	Unresolved []depends.ConnectorReference
}

// Compile splits script into a flow, resolves the plugins it references and
// compiles it inside a fresh sandbox. Worker diagnostics are printed to the
// app's output, and forwarded when a console service is connected.
func (a *App) Compile(ctx context.Context, jobID, script string) (*Result, error) {
	ctx = ctxlog.With(ctxlog.WithLogger(ctx, a.logger), "job_id", jobID)
	logger := ctxlog.FromContext(ctx)

	f := flow.Split(script)
	logger.Debug("Script split into flow.", "statements", f.Len())

	deps := depends.NewResolver(a.registry).Analyze(ctx, f)
	res := &Result{JobID: jobID, Plugins: deps.Plugins, Unresolved: deps.Unresolved}
	if a.config.DepsOnly {
		return res, nil
	}

	sinks := []console.Sink{console.NewPrinter(a.outW)}
	if a.forwarder != nil {
		sinks = append(sinks, a.forwarder)
	}
	lines := make(chan console.Line, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		console.Pump(ctx, lines, sinks...)
	}()

	graph, err := a.sandbox.Compile(ctx, &sandbox.Request{
		JobID:   jobID,
		Flow:    f,
		Job:     a.job,
		Plugins: deps.IsolationContext(),
		Console: lines,
	})
	close(lines)
	wg.Wait()
	if err != nil {
		return nil, err
	}

	logger.Info("Job graph compiled.", "vertices", len(graph.Vertices), "edges", len(graph.Edges))
	res.Graph = graph
	return res, nil
}
