package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/console"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/sandbox"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	registry  *registry.Registry
	job       *config.JobConfig
	sandbox   *sandbox.Sandbox
	forwarder *console.Forwarder
}

// NewApp is the constructor for the main application. It loads the plugin
// manifests and the job configuration, validates the registry against the
// registered modules, and returns a fully initialized App with its own
// isolated logger and registry.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = CoreModules
	}
	reg.Register(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	if _, _, err := reg.LoadDefinitions(ctx, loader, appConfig.PluginsPath); err != nil {
		return nil, err
	}
	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")

	job, err := loadJobConfig(ctx, loader, appConfig.JobConfigPath)
	if err != nil {
		return nil, err
	}

	sb := sandbox.New(sandbox.Config{
		WorkerPath:    appConfig.WorkerPath,
		Env:           appConfig.WorkerEnv,
		MaxConcurrent: appConfig.MaxSandboxes,
		LogLevel:      appConfig.LogLevel,
	})

	return &App{
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		registry: reg,
		job:      job,
		sandbox:  sb,
	}, nil
}

// loadJobConfig reads the job block from path. Without a path the default
// job configuration is used.
func loadJobConfig(ctx context.Context, loader config.Loader, path string) (*config.JobConfig, error) {
	if path == "" {
		return config.DefaultJobConfig(), nil
	}
	model, _, err := loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load job configuration: %w", err)
	}
	if model.Job == nil {
		return nil, fmt.Errorf("no job block found in %s", path)
	}
	return model.Job, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Job returns the job configuration passed to every compilation.
func (a *App) Job() *config.JobConfig {
	return a.job
}
