package builder

import (
	"context"
	"fmt"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/flow"
	"github.com/vk/sqlgrid/internal/hcl"
	"github.com/vk/sqlgrid/internal/jobgraph"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
	"github.com/vk/sqlgrid/internal/statement"
)

// ConnectorFinder is the view of the plugin registry the accumulator needs.
// *registry.Registry implements it.
type ConnectorFinder interface {
	FindPlugin(typeName string, role config.Role) (*config.PluginDefinition, bool)
	FindByName(typeName string) []*config.PluginDefinition
	Connector(implementation string) (*registry.RegisteredConnector, bool)
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithConverter sets the converter used to decode WITH options. The HCL
// converter is used by default.
func WithConverter(c config.Converter) Option {
	return func(a *Accumulator) { a.converter = c }
}

// Accumulator applies statements to a runtime environment. It is owned by a
// single compilation and is not safe for concurrent use.
type Accumulator struct {
	env       *runtime.Environment
	finder    ConnectorFinder
	converter config.Converter

	state State
	// declared maps table and view names to the index of the declaring statement.
	declared map[string]int
}

// New creates an accumulator in the Init state.
func New(env *runtime.Environment, finder ConnectorFinder, opts ...Option) *Accumulator {
	a := &Accumulator{
		env:       env,
		finder:    finder,
		converter: hcl.NewConverter(),
		state:     StateInit,
		declared:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current lifecycle stage.
func (a *Accumulator) State() State { return a.state }

// Apply parses text and applies it as the statement at index.
func (a *Accumulator) Apply(ctx context.Context, index int, text string) error {
	if err := a.ready(); err != nil {
		return err
	}
	stmt, err := statement.Parse(text)
	if err != nil {
		return a.fail(index, text, err)
	}
	return a.ApplyStatement(ctx, index, stmt)
}

// ApplyStatement applies an already parsed statement.
func (a *Accumulator) ApplyStatement(ctx context.Context, index int, stmt statement.Statement) error {
	if err := a.ready(); err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx).With("index", index)
	a.state = StateBinding

	var err error
	switch s := stmt.(type) {
	case *statement.CreateTable:
		logger.Debug("Binding table.", "table", s.Name, "kind", s.Kind, "type", s.ConnectorType)
		err = a.bindTable(ctx, index, s)
	case *statement.InsertSelect:
		logger.Debug("Registering insert.", "target", s.Target, "sources", s.Sources)
		err = a.env.AddQuery(s.Target, s.Query, s.Sources)
	case *statement.CreateView:
		logger.Debug("Registering view.", "view", s.Name, "sources", s.Sources)
		err = a.addView(index, s)
	case *statement.Unparsed:
		err = s.Err
	default:
		err = fmt.Errorf("unsupported statement type %T", stmt)
	}
	if err != nil {
		return a.fail(index, stmt.SQL(), err)
	}

	a.state = StateBound
	return nil
}

// Finalize builds the job graph and names it jobName, or after the job ID
// when jobName is empty.
func (a *Accumulator) Finalize(ctx context.Context, jobName string) (*jobgraph.JobGraph, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx)
	a.state = StateFinalizing

	if jobName == "" {
		jobName = a.env.JobID()
	}
	g, err := a.env.BuildGraph(jobName)
	if err != nil {
		a.state = StateFailed
		return nil, fmt.Errorf("failed to build job graph: %w", err)
	}

	a.state = StateDone
	logger.Info("Job graph built.", "job_name", g.Name, "vertices", len(g.Vertices), "edges", len(g.Edges))
	return g, nil
}

// Compile applies every statement of f in order and finalizes the graph.
func Compile(ctx context.Context, env *runtime.Environment, finder ConnectorFinder, f flow.Flow, jobName string, opts ...Option) (*jobgraph.JobGraph, error) {
	a := New(env, finder, opts...)
	for i, text := range f {
		if err := a.Apply(ctx, i, text); err != nil {
			return nil, err
		}
	}
	return a.Finalize(ctx, jobName)
}

func (a *Accumulator) ready() error {
	switch a.state {
	case StateFailed:
		return ErrFailed
	case StateFinalizing, StateDone:
		return fmt.Errorf("accumulator is %s and cannot accept further calls", a.state)
	}
	return nil
}

func (a *Accumulator) fail(index int, text string, err error) error {
	a.state = StateFailed
	return &StatementError{Index: index, Text: text, Err: err}
}

func (a *Accumulator) addView(index int, s *statement.CreateView) error {
	if first, ok := a.declared[s.Name]; ok {
		return &DuplicateTableError{Table: s.Name, FirstIndex: first}
	}
	if err := a.env.AddView(s.Name, s.Query, s.Sources); err != nil {
		return err
	}
	a.declared[s.Name] = index
	return nil
}
