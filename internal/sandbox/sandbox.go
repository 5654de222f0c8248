// Package sandbox runs the strict compile pass of a flow inside an isolated
// boundary: a separate worker process whose plugin set is exactly the one
// the caller resolved for the job.
//
// The host writes one msgpack-encoded request to the worker's stdin and
// reads one response from its stdout. Everything the worker writes to
// stderr is diagnostic output and is streamed back line by line, tagged
// with the job ID, while the compilation runs.
package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/console"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/flow"
	"github.com/vk/sqlgrid/internal/fsutil"
	"github.com/vk/sqlgrid/internal/jobgraph"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkerCommand is the argument that makes the sqlgrid binary act as a worker.
const WorkerCommand = "sandbox-worker"

// tailLines is how many trailing diagnostic lines are kept for error reports.
const tailLines = 20

// Config configures a Sandbox.
type Config struct {
	// WorkerPath is the executable started for each boundary. Defaults to
	// the running executable.
	WorkerPath string
	// WorkerArgs are passed to the worker. Defaults to {WorkerCommand}.
	WorkerArgs []string
	// Env is appended to the host environment of the worker.
	Env []string
	// MaxConcurrent bounds the number of live boundaries. Zero means no bound.
	MaxConcurrent int
	// LogLevel is the level the worker logs its diagnostics at.
	LogLevel string
}

// Request is one compilation. It is owned by a single Compile call.
type Request struct {
	JobID string
	Flow  flow.Flow
	Job   *config.JobConfig
	// Plugins is the isolation context: the worker loads only these.
	Plugins []*config.PluginDefinition
	// Console receives diagnostic output. Lines are dropped when nil, and
	// when the consumer falls too far behind. Nothing is sent on it after
	// Compile returns.
	Console chan<- console.Line
}

// Sandbox launches compilation boundaries. It holds no per-compilation
// state and is safe for concurrent use.
type Sandbox struct {
	cfg Config
	sem *semaphore.Weighted
}

// New creates a Sandbox.
func New(cfg Config) *Sandbox {
	if len(cfg.WorkerArgs) == 0 {
		cfg.WorkerArgs = []string{WorkerCommand}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	s := &Sandbox{cfg: cfg}
	if cfg.MaxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return s
}

// Compile runs the strict compilation of req in a fresh boundary and
// returns the job graph. It blocks until the worker exits, never on the
// console. Cancelling ctx kills the worker.
func (s *Sandbox) Compile(ctx context.Context, req *Request) (*jobgraph.JobGraph, error) {
	requestID := uuid.NewString()
	ctx = ctxlog.With(ctx, "job_id", req.JobID, "request_id", requestID)
	logger := ctxlog.FromContext(ctx)

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, &SandboxExecutionError{JobID: req.JobID, Err: err}
		}
		defer s.sem.Release(1)
	}

	manifests, err := s.isolationContext(req)
	if err != nil {
		return nil, err
	}
	workerPath, err := s.workerPath()
	if err != nil {
		return nil, &ClassLoadingError{JobID: req.JobID, Err: err}
	}

	cmd := exec.CommandContext(ctx, workerPath, s.cfg.WorkerArgs...)
	cmd.Env = append(os.Environ(), s.cfg.Env...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ClassLoadingError{JobID: req.JobID, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ClassLoadingError{JobID: req.JobID, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ClassLoadingError{JobID: req.JobID, Err: err}
	}

	logger.Debug("Starting sandbox worker.", "worker", workerPath, "plugins", len(req.Plugins))
	if err := cmd.Start(); err != nil {
		return nil, &ClassLoadingError{JobID: req.JobID, Err: fmt.Errorf("failed to start worker: %w", err)}
	}

	msg := &request{
		RequestID: requestID,
		JobID:     req.JobID,
		Flow:      req.Flow,
		Job:       req.Job,
		Manifests: manifests,
		LogLevel:  s.cfg.LogLevel,
	}

	var (
		out       bytes.Buffer
		tail      = newTail(tailLines)
		g         errgroup.Group
		queue     *consoleQueue
		delivered = make(chan struct{})
	)
	if req.Console != nil {
		queue = newConsoleQueue(consoleBuffer, consoleFlushTimeout)
		go func() {
			defer close(delivered)
			queue.deliver(ctx, req.Console)
		}()
	} else {
		close(delivered)
	}
	g.Go(func() error {
		defer stdin.Close()
		if err := writeMessage(stdin, msg); err != nil {
			return fmt.Errorf("failed to send request to worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := io.Copy(&out, stdout)
		return err
	})
	g.Go(func() error {
		s.pumpConsole(req, stderr, tail, queue)
		return nil
	})
	ioErr := g.Wait()
	waitErr := cmd.Wait()
	if queue != nil {
		queue.close()
		<-delivered
		if n := queue.Dropped(); n > 0 {
			logger.Warn("Dropped console lines the consumer did not take.", "dropped", n)
		}
	}

	if ctx.Err() != nil {
		return nil, &SandboxExecutionError{JobID: req.JobID, Remote: tail.String(), Err: ctx.Err()}
	}

	var resp response
	if out.Len() == 0 || readMessage(&out, &resp) != nil {
		cause := errors.Join(ioErr, waitErr)
		if cause == nil {
			cause = errors.New("no result")
		}
		return nil, &SandboxExecutionError{
			JobID:  req.JobID,
			Remote: tail.String(),
			Err:    fmt.Errorf("worker exited without a result: %w", cause),
		}
	}

	if resp.Failure != nil {
		remote := resp.Failure.Remote
		if remote == "" {
			remote = tail.String()
		}
		if resp.Failure.Kind == kindLoad {
			return nil, &ClassLoadingError{JobID: req.JobID, Err: &remoteError{msg: resp.Failure.Message}}
		}
		logger.Debug("Sandbox compilation failed.", "kind", resp.Failure.Kind)
		return nil, &SandboxExecutionError{JobID: req.JobID, Remote: remote, Err: resp.Failure.err()}
	}

	graph, err := jobgraph.Decode(resp.Graph)
	if err != nil {
		return nil, &SandboxExecutionError{JobID: req.JobID, Remote: tail.String(), Err: err}
	}
	logger.Debug("Sandbox compilation finished.", "vertices", len(graph.Vertices))
	return graph, nil
}

// isolationContext checks that every manifest and artifact of the plugin
// set exists and returns the manifest paths the worker will load.
func (s *Sandbox) isolationContext(req *Request) ([]string, error) {
	var manifests, files []string
	seen := make(map[string]bool)
	for _, p := range req.Plugins {
		if p.SourceFile == "" {
			return nil, &ClassLoadingError{JobID: req.JobID, Err: fmt.Errorf("plugin %q has no manifest file", p.Key())}
		}
		if !seen[p.SourceFile] {
			seen[p.SourceFile] = true
			manifests = append(manifests, p.SourceFile)
		}
		files = append(files, p.Artifacts...)
	}
	files = append(files, manifests...)

	if missing := fsutil.MissingFiles(files); len(missing) > 0 {
		return nil, &ClassLoadingError{JobID: req.JobID, Missing: missing}
	}
	return manifests, nil
}

func (s *Sandbox) workerPath() (string, error) {
	if s.cfg.WorkerPath == "" {
		return os.Executable()
	}
	return exec.LookPath(s.cfg.WorkerPath)
}

// pumpConsole reads worker stderr line by line, records the trailing lines
// and queues them for the request's console. It never waits on the
// console, so a stalled consumer cannot stall the worker.
func (s *Sandbox) pumpConsole(req *Request, r io.Reader, tail *tail, q *consoleQueue) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		tail.add(text)
		if q != nil {
			q.push(console.Line{JobID: req.JobID, Text: text})
		}
	}
	// Drain whatever is left so the worker never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// tail keeps the last n lines written to it.
type tail struct {
	n     int
	lines []string
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, "\n")
}
