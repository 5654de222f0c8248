// This file contains the logic for translating HCL schema structs (from
// schema.go) into the format-agnostic configuration model defined in the
// config package.

package hcl

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// translateOptionDefinition is a helper that processes a single HCL option
// block, handling its default value and type parsing.
func translateOptionDefinition(in *optionBlock, pluginName string) (*config.OptionDefinition, error) {
	parsedType, err := optionType(in.Type)
	if err != nil {
		return nil, fmt.Errorf("invalid type for option '%s' in plugin '%s': %w", in.Name, pluginName, err)
	}

	var defaultVal *cty.Value
	var isOptional bool

	if in.Default != nil {
		val, diags := in.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default value for option '%s' in plugin '%s': %w", in.Name, pluginName, diags)
		}
		if !val.IsNull() {
			converted, err := convert.Convert(val, parsedType)
			if err != nil {
				return nil, fmt.Errorf("default value for option '%s' in plugin '%s' does not match type %s: %w", in.Name, pluginName, parsedType.FriendlyName(), err)
			}
			defaultVal = &converted
			isOptional = true
		}
	}

	return &config.OptionDefinition{
		Name:        in.Name,
		Type:        parsedType,
		Description: in.Description,
		Default:     defaultVal,
		Optional:    isOptional,
	}, nil
}

// translatePluginDefinition converts the HCL-specific plugin schema into the agnostic model.
func (l *Loader) translatePluginDefinition(ctx context.Context, s *pluginBlock, file string) (*config.PluginDefinition, error) {
	role, err := config.ParseRole(s.Role)
	if err != nil {
		return nil, fmt.Errorf("plugin '%s': %w", s.Name, err)
	}
	if s.Implementation == "" {
		return nil, fmt.Errorf("plugin '%s': implementation must not be empty", s.Name)
	}

	absFile, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("plugin '%s': resolving manifest path: %w", s.Name, err)
	}
	baseDir := filepath.Dir(absFile)

	p := &config.PluginDefinition{
		Name:           s.Name,
		Aliases:        s.Aliases,
		Role:           role,
		Implementation: s.Implementation,
		Description:    s.Description,
		Options:        make(map[string]*config.OptionDefinition),
		SourceFile:     absFile,
	}

	for _, artifact := range s.Artifacts {
		if !filepath.IsAbs(artifact) {
			artifact = filepath.Join(baseDir, artifact)
		}
		p.Artifacts = append(p.Artifacts, filepath.Clean(artifact))
	}

	for _, opt := range s.Options {
		if opt.Name == "type" {
			return nil, fmt.Errorf("plugin '%s': option name 'type' is reserved for the connector type", s.Name)
		}
		if _, dup := p.Options[opt.Name]; dup {
			return nil, fmt.Errorf("plugin '%s': option '%s' declared twice", s.Name, opt.Name)
		}
		def, err := translateOptionDefinition(opt, s.Name)
		if err != nil {
			return nil, err
		}
		p.Options[opt.Name] = def
	}
	return p, nil
}

// translateJob converts the HCL-specific job schema into the agnostic model.
func translateJob(s *jobBlock) (*config.JobConfig, error) {
	job := config.DefaultJobConfig()
	if s.Parallelism != nil {
		if *s.Parallelism < 1 {
			return nil, fmt.Errorf("job parallelism must be at least 1, got %d", *s.Parallelism)
		}
		job.Parallelism = *s.Parallelism
	}
	if s.CheckpointInterval != "" {
		d, err := time.ParseDuration(s.CheckpointInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid job checkpoint_interval: %w", err)
		}
		job.CheckpointInterval = d
	}
	for k, v := range s.Properties {
		job.Properties[k] = v
	}
	return job, nil
}
