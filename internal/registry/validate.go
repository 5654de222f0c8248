package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ValidateRegistry performs a strict parity check between manifests and Go code.
// Every manifest must name a registered implementation, and the options it
// declares must match the implementation's options struct both in presence
// and in type.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, def := range r.Definitions() {
		plugin := def.Key()
		handler, ok := r.Connector(def.Implementation)
		if !ok {
			errs = append(errs, fmt.Sprintf("plugin '%s': implementation '%s' is not registered", plugin, def.Implementation))
			continue
		}

		if handler.OptionsType == nil {
			if len(def.Options) > 0 {
				errs = append(errs, fmt.Sprintf("plugin '%s': manifest declares options, but Go connector has no options struct", plugin))
			}
			continue
		}

		manifestOptions := make(map[string]struct{})
		for name := range def.Options {
			manifestOptions[name] = struct{}{}
		}

		goOptions := make(map[string]reflect.StructField)
		optionsType := handler.OptionsType
		for i := 0; i < optionsType.NumField(); i++ {
			field := optionsType.Field(i)
			if !field.IsExported() {
				continue
			}
			tag := field.Tag.Get(config.OptionTag)
			tagName := strings.Split(tag, ",")[0]
			if tagName != "" && tagName != "-" {
				goOptions[tagName] = field
			}
		}

		// Check for presence mismatches
		for name := range goOptions {
			if _, ok := manifestOptions[name]; !ok {
				errs = append(errs, fmt.Sprintf("plugin '%s': Go struct has field for option '%s' which is not declared in manifest", plugin, name))
			}
		}
		for name := range manifestOptions {
			if _, ok := goOptions[name]; !ok {
				errs = append(errs, fmt.Sprintf("plugin '%s': manifest declares option '%s' which is not found in Go struct", plugin, name))
			}
		}

		// Check for type mismatches
		for name, optionDef := range def.Options {
			goField, ok := goOptions[name]
			if !ok {
				continue // Already handled by presence check
			}

			manifestType := optionDef.Type
			if manifestType.Equals(cty.DynamicPseudoType) {
				logger.Warn("Manifest for plugin has option with 'type = any', which disables static type checking. Consider using a specific type like 'string', 'number', or 'bool'.", "plugin", plugin, "option", name)
				continue
			}

			// Infer type from the Go field
			goFieldType, err := gocty.ImpliedType(reflect.Zero(goField.Type).Interface())
			if err != nil {
				errs = append(errs, fmt.Sprintf("plugin '%s', option '%s': could not imply cty type from Go field type %s: %v", plugin, name, goField.Type, err))
				continue
			}

			// The core type check
			if !manifestType.Equals(goFieldType) {
				errs = append(errs, fmt.Sprintf("plugin '%s', option '%s': type mismatch. Manifest requires '%s' but Go struct field '%s' provides compatible type '%s'",
					plugin, name, manifestType.FriendlyName(), goField.Name, goFieldType.FriendlyName()))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}
