package config

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths, translates it into the
	// format-agnostic model, and returns a matching Converter.
	Load(ctx context.Context, paths ...string) (*Model, Converter, error)
}

// Converter is the interface for a format-specific data binding and type
// conversion implementation. It acts as the bridge between raw option values
// taken from a statement's WITH clause and the Go types used by connectors.
type Converter interface {
	// DecodeOptions decodes option values into a target Go struct, applying
	// the defaults and type constraints declared by the plugin manifest.
	DecodeOptions(
		ctx context.Context,
		target any,
		values map[string]cty.Value,
		defs map[string]*OptionDefinition,
	) error

	// ToCtyValue converts a native Go value into its equivalent cty.Value.
	ToCtyValue(v any) (cty.Value, error)
}
