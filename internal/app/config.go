package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ScriptPath    string // SQL script to compile
	JobID         string // generated when empty
	PluginsPath   string // plugin manifests
	JobConfigPath string // optional file holding a job block
	OutPath       string // encoded job graph is written here when set

	LogFormat    string
	LogLevel     string
	MaxSandboxes int
	ConsoleURL   string
	DepsOnly     bool

	// WorkerPath and WorkerEnv override how sandbox workers are started.
	// The running executable is used when WorkerPath is empty.
	WorkerPath string
	WorkerEnv  []string
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ScriptPath == "" {
		return nil, errors.New("ScriptPath is a required configuration field and cannot be empty")
	}
	if cfg.MaxSandboxes < 0 {
		return nil, errors.New("MaxSandboxes must not be negative")
	}
	if cfg.PluginsPath == "" {
		cfg.PluginsPath = "modules"
	}
	return &cfg, nil
}
