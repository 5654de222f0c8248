package print

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options defines the WITH options of a print sink.
type Options struct {
	Prefix string `sqlgrid:"prefix"`
	Stderr bool   `sqlgrid:"stderr"`
}

// Sink describes where a print table writes its records.
type Sink struct {
	Table  string
	Prefix string
	Stderr bool
}

// Properties implements the runtime.Connector interface.
func (s *Sink) Properties() map[string]string {
	target := "stdout"
	if s.Stderr {
		target = "stderr"
	}
	return map[string]string{
		"prefix": s.Prefix,
		"target": target,
	}
}

// WriteRecord prints a record with its keys sorted for consistent output.
func (s *Sink) WriteRecord(w io.Writer, record map[string]string) error {
	if record == nil {
		_, err := fmt.Fprintf(w, "%s(null)\n", s.Prefix)
		return err
	}

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s%s = %s\n", s.Prefix, k, strconv.Quote(record[k])); err != nil {
			return err
		}
	}
	return nil
}

// NewSink is the factory for the 'print' connector.
func NewSink(ctx context.Context, table string, options any) (runtime.Connector, error) {
	o := options.(*Options)
	ctxlog.FromContext(ctx).Debug("Configured print sink.", "table", table, "stderr", o.Stderr)
	return &Sink{Table: table, Prefix: o.Prefix, Stderr: o.Stderr}, nil
}

// Register registers the connector with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterConnector("PrintSink", &registry.RegisteredConnector{
		NewOptions: func() any { return new(Options) },
		New:        NewSink,
	})
}
