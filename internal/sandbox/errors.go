package sandbox

import (
	"fmt"
	"strings"
)

// ClassLoadingError reports that the isolation context of a compilation
// could not be constructed: a manifest or artifact of the plugin set is
// missing, the worker cannot be started, or the worker cannot load the
// plugin set it was given.
type ClassLoadingError struct {
	JobID   string
	Missing []string
	Err     error
}

func (e *ClassLoadingError) Error() string {
	msg := fmt.Sprintf("failed to construct isolation context for job %q", e.JobID)
	if len(e.Missing) > 0 {
		msg += ": missing " + strings.Join(e.Missing, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClassLoadingError) Unwrap() error { return e.Err }

// SandboxExecutionError wraps a failure that happened inside the boundary.
// Err is the reconstructed typed error and Remote the worker's diagnostic
// context (recent console output or a panic stack).
type SandboxExecutionError struct {
	JobID  string
	Remote string
	Err    error
}

func (e *SandboxExecutionError) Error() string {
	return fmt.Sprintf("compilation of job %q failed: %v", e.JobID, e.Err)
}

func (e *SandboxExecutionError) Unwrap() error { return e.Err }
