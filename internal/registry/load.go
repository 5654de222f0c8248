package registry

import (
	"context"
	"fmt"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/ctxlog"
)

// LoadDefinitions reads plugin manifests through loader and adds them to
// the registry. Any job block found alongside the manifests is returned.
func (r *Registry) LoadDefinitions(ctx context.Context, loader config.Loader, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading plugin definitions.", "paths", paths)

	if len(paths) == 0 {
		logger.Warn("No plugin manifest paths given.")
		return &config.Model{}, nil, nil
	}

	model, converter, err := loader.Load(ctx, paths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load plugin manifests: %w", err)
	}
	if err := r.PopulateDefinitionsFromModel(model); err != nil {
		return nil, nil, err
	}

	if len(model.Plugins) == 0 {
		logger.Warn("No plugin definitions found.", "paths", paths)
	}
	logger.Info("Registry loaded successfully.", "plugin_definitions_loaded", len(model.Plugins))
	return model, converter, nil
}
