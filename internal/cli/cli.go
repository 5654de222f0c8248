package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/sqlgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("sqlgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
sqlgrid - compiles a streaming SQL script into an executable job graph.

Usage:
  sqlgrid [options] [SCRIPT]

Arguments:
  SCRIPT
    Path to the SQL script. Statements are separated by ';'.

Options:
`)
		flagSet.PrintDefaults()
	}

	scriptFlag := flagSet.String("script", "", "Path to the SQL script.")
	sFlag := flagSet.String("s", "", "Path to the SQL script (shorthand).")
	jobIDFlag := flagSet.String("job-id", "", "Job identifier. A random one is generated when empty.")
	pluginsPathFlag := flagSet.String("plugins-path", "modules", "Path to the directory containing plugin manifests.")
	jobConfigFlag := flagSet.String("job-config", "", "Path to an HCL file with a job block.")
	outFlag := flagSet.String("out", "", "Write the encoded job graph to this file.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	maxSandboxesFlag := flagSet.Int("max-sandboxes", 0, "Maximum number of concurrent compilation sandboxes. 0 is unbounded.")
	consoleURLFlag := flagSet.String("console-url", "", "socket.io service that receives compilation diagnostics.")
	depsOnlyFlag := flagSet.Bool("deps-only", false, "Only resolve the plugins the script needs, without compiling it.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *scriptFlag != "" {
		path = *scriptFlag
	} else if *sFlag != "" {
		path = *sFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Script path determined.", "path", path)

	if path == "" {
		slog.Debug("No script provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ScriptPath:    path,
		JobID:         *jobIDFlag,
		PluginsPath:   *pluginsPathFlag,
		JobConfigPath: *jobConfigFlag,
		OutPath:       *outFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
		MaxSandboxes:  *maxSandboxesFlag,
		ConsoleURL:    *consoleURLFlag,
		DepsOnly:      *depsOnlyFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
