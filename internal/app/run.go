package app

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/vk/sqlgrid/internal/console"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/jobgraph"
)

// Run executes the main application logic based on the app's configuration:
// it compiles the script and reports the plugins it needs and the graph it
// produced.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	script, err := os.ReadFile(a.config.ScriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	jobID := a.config.JobID
	if jobID == "" {
		jobID = uuid.NewString()
		a.logger.Debug("Generated job ID.", "job_id", jobID)
	}

	if a.config.ConsoleURL != "" && !a.config.DepsOnly {
		fwd, err := console.Dial(ctx, a.config.ConsoleURL, console.ForwarderOptions{})
		if err != nil {
			a.logger.Warn("Console service unavailable, diagnostics are printed locally only.", "error", err)
		} else {
			a.forwarder = fwd
			defer func() {
				fwd.Close()
				a.forwarder = nil
			}()
		}
	}

	res, err := a.Compile(ctx, jobID, string(script))
	if err != nil {
		return fmt.Errorf("compilation of job %s failed: %w", jobID, err)
	}

	for _, ref := range res.Unresolved {
		fmt.Fprintf(a.outW, "unresolved: %s\n", ref)
	}
	for _, p := range res.Plugins {
		fmt.Fprintf(a.outW, "plugin: %s %s\n", p.Key(), p.SourceFile)
	}
	if res.Graph == nil {
		return nil
	}

	for _, v := range res.Graph.Vertices {
		fmt.Fprintf(a.outW, "vertex: %s %s\n", v.ID, v.Kind)
	}
	for _, e := range res.Graph.Edges {
		fmt.Fprintf(a.outW, "edge: %s -> %s\n", e.From, e.To)
	}

	if a.config.OutPath != "" {
		data, err := jobgraph.Encode(res.Graph)
		if err != nil {
			return err
		}
		if err := os.WriteFile(a.config.OutPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write job graph: %w", err)
		}
		a.logger.Info("Job graph written.", "path", a.config.OutPath, "bytes", len(data))
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}
