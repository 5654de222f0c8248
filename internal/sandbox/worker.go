package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/vk/sqlgrid/internal/builder"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/hcl"
	"github.com/vk/sqlgrid/internal/jobgraph"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
)

// WorkerMain serves a single request on the process's standard streams and
// returns the process exit code.
func WorkerMain(modules ...registry.Module) int {
	if err := Serve(context.Background(), os.Stdin, os.Stdout, os.Stderr, modules...); err != nil {
		fmt.Fprintf(os.Stderr, "sandbox worker: %v\n", err)
		return 1
	}
	return 0
}

// Serve reads one request from stdin, compiles it with a registry holding
// only the request's plugin manifests and the given modules, and writes the
// response to stdout. Diagnostics go to stderr. Compile failures, including
// panics, are reported in the response; the returned error covers only
// failures to talk to the host.
func Serve(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, modules ...registry.Module) error {
	var req request
	if err := readMessage(stdin, &req); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(req.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	ctx = ctxlog.WithLogger(ctx, logger.With("job_id", req.JobID))

	resp := compile(ctx, &req, modules)
	resp.RequestID = req.RequestID
	if err := writeMessage(stdout, resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func compile(ctx context.Context, req *request, modules []registry.Module) (resp *response) {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Compilation panicked.", "panic", r)
			resp = &response{Failure: &Failure{
				Kind:    kindPanic,
				Message: fmt.Sprintf("panic: %v", r),
				Remote:  string(debug.Stack()),
			}}
		}
	}()

	reg := registry.New()
	reg.Register(modules...)
	var opts []builder.Option
	if len(req.Manifests) > 0 {
		_, converter, err := reg.LoadDefinitions(ctx, hcl.NewLoader(), req.Manifests...)
		if err != nil {
			return &response{Failure: &Failure{Kind: kindLoad, Message: err.Error()}}
		}
		opts = append(opts, builder.WithConverter(converter))
	}
	if err := reg.ValidateRegistry(ctx); err != nil {
		return &response{Failure: &Failure{Kind: kindLoad, Message: err.Error()}}
	}

	logger.Info("Compiling job.", "statements", len(req.Flow), "plugins", len(reg.Definitions()))
	env := runtime.NewEnvironment(req.Job, req.JobID)
	graph, err := builder.Compile(ctx, env, reg, req.Flow, req.JobID, opts...)
	if err != nil {
		logger.Error("Compilation failed.", "error", err)
		return &response{Failure: toFailure(err)}
	}

	data, err := jobgraph.Encode(graph)
	if err != nil {
		return &response{Failure: toFailure(err)}
	}
	logger.Info("Compilation succeeded.", "vertices", len(graph.Vertices), "edges", len(graph.Edges))
	return &response{Graph: data}
}
