package testutil

import (
	"os"

	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/sandbox"
)

// WorkerEnv makes a test binary act as a sandbox worker.
const WorkerEnv = "SQLGRID_TEST_WORKER"

// RunWorkerIfRequested turns the current test binary into a sandbox worker
// when WorkerEnv is set, and never returns in that case. Call it first in
// TestMain.
func RunWorkerIfRequested(modules ...registry.Module) {
	if os.Getenv(WorkerEnv) != "1" {
		return
	}
	os.Exit(sandbox.WorkerMain(modules...))
}

// SandboxConfig returns a sandbox configuration that re-executes the
// running test binary as the worker.
func SandboxConfig() sandbox.Config {
	return sandbox.Config{
		WorkerPath: os.Args[0],
		Env:        []string{WorkerEnv + "=1"},
		LogLevel:   "debug",
	}
}
