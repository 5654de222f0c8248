package hcl

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Converter is the HCL-specific implementation of the config.Converter interface.
type Converter struct{}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{}
}

// DecodeOptions converts option values to the types declared by the
// manifest, applies defaults, and populates the provided Go struct using
// reflection. Fields are matched by their `sqlgrid` tag, falling back to
// the field name.
func (c *Converter) DecodeOptions(
	ctx context.Context,
	target any,
	values map[string]cty.Value,
	defs map[string]*config.OptionDefinition,
) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting option decoding.", "values", len(values), "definitions", len(defs))

	structVal := reflect.ValueOf(target)
	if structVal.Kind() != reflect.Ptr || structVal.IsNil() {
		return fmt.Errorf("options target must be a non-nil pointer")
	}
	structVal = structVal.Elem()
	if structVal.Kind() != reflect.Struct {
		return fmt.Errorf("options target must point to a struct, got %s", structVal.Kind())
	}
	structType := structVal.Type()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldVal := structVal.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		lookupName := field.Name
		if tag := field.Tag.Get(config.OptionTag); tag != "" {
			lookupName = strings.Split(tag, ",")[0]
		}
		if lookupName == "-" {
			continue
		}

		def, defExists := defs[lookupName]
		if !defExists {
			continue
		}

		targetPtr := fieldVal.Addr().Interface()
		val, provided := values[lookupName]

		switch {
		case provided:
			typed, err := convert.Convert(val, def.Type)
			if err != nil {
				return &config.OptionError{Option: lookupName, Err: fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), def.Type.FriendlyName(), err)}
			}
			if err := c.decode(ctx, typed, targetPtr); err != nil {
				return &config.OptionError{Option: lookupName, Err: err}
			}
		case def.Default != nil:
			if err := c.decode(ctx, *def.Default, targetPtr); err != nil {
				return &config.OptionError{Option: lookupName, Err: fmt.Errorf("failed to apply default: %w", err)}
			}
		case !def.Optional:
			return &config.OptionError{Option: lookupName, Err: errors.New("missing required option")}
		}
	}
	logger.Debug("Finished option decoding successfully.")
	return nil
}

// decode handles the conversion and decoding of a cty.Value into a Go pointer.
func (c *Converter) decode(ctx context.Context, val cty.Value, goVal any) error {
	logger := ctxlog.FromContext(ctx)
	valPtr := reflect.ValueOf(goVal)
	if valPtr.Kind() != reflect.Ptr {
		return fmt.Errorf("target for decoding must be a pointer, got %T", goVal)
	}

	impliedType, err := gocty.ImpliedType(valPtr.Elem().Interface())
	if err != nil {
		logger.Debug("Could not imply cty.Type from Go type, attempting direct decoding.", "go_type", valPtr.Elem().Type().String(), "error", err)
		return gocty.FromCtyValue(val, goVal)
	}

	convertedVal, err := convert.Convert(val, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to Go type %s: %w", val.Type().FriendlyName(), impliedType.FriendlyName(), err)
	}

	if !val.Type().Equals(convertedVal.Type()) {
		logger.Debug("Implicitly converted value type.",
			"from", val.Type().FriendlyName(),
			"to", convertedVal.Type().FriendlyName(),
		)
	}

	return gocty.FromCtyValue(convertedVal, goVal)
}

// ToCtyValue converts a native Go value into its corresponding cty.Value.
func (c *Converter) ToCtyValue(v any) (cty.Value, error) {
	if v == nil {
		return cty.NilVal, nil
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("unable to infer cty.Type: %w", err)
	}
	return gocty.ToCtyValue(v, ty)
}
