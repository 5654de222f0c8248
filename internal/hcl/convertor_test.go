package hcl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
)

type testOptions struct {
	Topic   string   `sqlgrid:"topic"`
	Brokers []string `sqlgrid:"brokers"`
	Retries int      `sqlgrid:"retries"`
	Enabled bool     `sqlgrid:"enabled"`
	Ignored string   `sqlgrid:"-"`
}

func testDefs() map[string]*config.OptionDefinition {
	retries := cty.NumberIntVal(3)
	brokers := cty.ListVal([]cty.Value{cty.StringVal("localhost:9092")})
	return map[string]*config.OptionDefinition{
		"topic":   {Name: "topic", Type: cty.String},
		"brokers": {Name: "brokers", Type: cty.List(cty.String), Default: &brokers, Optional: true},
		"retries": {Name: "retries", Type: cty.Number, Default: &retries, Optional: true},
		"enabled": {Name: "enabled", Type: cty.Bool, Optional: true},
	}
}

func TestConverter_DecodeOptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewConverter()

	t.Run("applies values and defaults", func(t *testing.T) {
		var opts testOptions
		err := c.DecodeOptions(ctx, &opts, map[string]cty.Value{
			"topic":   cty.StringVal("events"),
			"enabled": cty.StringVal("true"),
		}, testDefs())
		require.NoError(t, err)
		assert.Equal(t, "events", opts.Topic)
		assert.Equal(t, []string{"localhost:9092"}, opts.Brokers)
		assert.Equal(t, 3, opts.Retries)
		assert.True(t, opts.Enabled)
	})

	t.Run("converts strings to numbers", func(t *testing.T) {
		var opts testOptions
		err := c.DecodeOptions(ctx, &opts, map[string]cty.Value{
			"topic":   cty.StringVal("events"),
			"retries": cty.StringVal("7"),
		}, testDefs())
		require.NoError(t, err)
		assert.Equal(t, 7, opts.Retries)
	})

	t.Run("missing required option", func(t *testing.T) {
		var opts testOptions
		err := c.DecodeOptions(ctx, &opts, map[string]cty.Value{}, testDefs())
		var optErr *config.OptionError
		require.ErrorAs(t, err, &optErr)
		assert.Equal(t, "topic", optErr.Option)
		assert.ErrorContains(t, err, "missing required option")
	})

	t.Run("ill-typed option", func(t *testing.T) {
		var opts testOptions
		err := c.DecodeOptions(ctx, &opts, map[string]cty.Value{
			"topic":   cty.StringVal("events"),
			"retries": cty.StringVal("many"),
		}, testDefs())
		var optErr *config.OptionError
		require.ErrorAs(t, err, &optErr)
		assert.Equal(t, "retries", optErr.Option)
	})

	t.Run("target must be a struct pointer", func(t *testing.T) {
		var opts testOptions
		assert.Error(t, c.DecodeOptions(ctx, opts, nil, testDefs()))
		s := "x"
		assert.Error(t, c.DecodeOptions(ctx, &s, nil, testDefs()))
	})
}

func TestConverter_ToCtyValue(t *testing.T) {
	c := NewConverter()

	v, err := c.ToCtyValue("hello")
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.StringVal("hello")))

	v, err = c.ToCtyValue(nil)
	require.NoError(t, err)
	assert.Equal(t, cty.NilVal, v)
}
