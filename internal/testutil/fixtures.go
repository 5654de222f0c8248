package testutil

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
)

// FixtureManifests declares the plugins served by FixtureModule.
var FixtureManifests = map[string]string{
	"gen/manifest.hcl": `
plugin "gen" {
  role           = "source"
  implementation = "GenSource"
  aliases        = ["datagen"]
  description    = "Generates rows."

  option "rows" {
    type    = number
    default = 10
  }
  option "delay" {
    type    = string
    default = "0s"
  }
}`,
	"blackhole/manifest.hcl": `
plugin "blackhole" {
  role           = "sink"
  implementation = "BlackholeSink"
}`,
	"boom/manifest.hcl": `
plugin "boom" {
  role           = "sink"
  implementation = "BoomSink"
}`,
	"dict/manifest.hcl": `
plugin "dict" {
  role           = "transform"
  implementation = "NoOp"
}`,
}

// GenOptions are the options of the "gen" source.
type GenOptions struct {
	Rows  int    `sqlgrid:"rows"`
	Delay string `sqlgrid:"delay"`
}

// FixtureModule registers the implementations named by FixtureManifests.
// GenSource sleeps for its delay option before returning, which lets tests
// keep a compilation running. BoomSink panics.
type FixtureModule struct{}

// Register implements the registry.Module interface.
func (m *FixtureModule) Register(r *registry.Registry) {
	r.Register(&NoOpModule{})
	r.RegisterConnector("GenSource", &registry.RegisteredConnector{
		NewOptions: func() any { return new(GenOptions) },
		New: func(ctx context.Context, table string, options any) (runtime.Connector, error) {
			o := options.(*GenOptions)
			delay, err := time.ParseDuration(o.Delay)
			if err != nil {
				return nil, fmt.Errorf("invalid delay: %w", err)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return StaticConnector{"rows": strconv.Itoa(o.Rows)}, nil
		},
	})
	r.RegisterConnector("BlackholeSink", &registry.RegisteredConnector{
		New: func(ctx context.Context, table string, options any) (runtime.Connector, error) {
			return StaticConnector{}, nil
		},
	})
	r.RegisterConnector("BoomSink", &registry.RegisteredConnector{
		New: func(ctx context.Context, table string, options any) (runtime.Connector, error) {
			panic("boom sink exploded")
		},
	})
}
