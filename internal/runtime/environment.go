// Package runtime is the streaming execution environment a compilation
// builds into. It keeps the catalog of bound tables and views and turns the
// registered queries into a job graph.
package runtime

import (
	"errors"
	"fmt"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/dag"
	"github.com/vk/sqlgrid/internal/jobgraph"
)

// ErrNoOperators is returned when a graph is requested before any query
// writes to a sink.
var ErrNoOperators = errors.New("no operators defined in streaming topology, cannot build job graph")

// Connector is a configured connector instance bound to a table.
type Connector interface {
	// Properties describes the instance in the compiled graph.
	Properties() map[string]string
}

// Table is a virtual table registered in the environment.
type Table struct {
	Name          string
	Role          config.Role
	ConnectorType string
	Connector     Connector
}

type view struct {
	name    string
	query   string
	sources []string
}

type query struct {
	target  string
	query   string
	sources []string
}

// Environment accumulates tables, views and queries for one job. It is not
// safe for concurrent use; a compilation owns its environment exclusively.
type Environment struct {
	jobID  string
	config *config.JobConfig

	tables map[string]*Table
	views  map[string]*view
	// names records table and view names in declaration order.
	names   []string
	queries []*query
}

// NewEnvironment creates an empty environment for a job. A nil config is
// replaced by config.DefaultJobConfig().
func NewEnvironment(cfg *config.JobConfig, jobID string) *Environment {
	if cfg == nil {
		cfg = config.DefaultJobConfig()
	}
	return &Environment{
		jobID:  jobID,
		config: cfg,
		tables: make(map[string]*Table),
		views:  make(map[string]*view),
	}
}

// JobID returns the identifier of the job being built.
func (e *Environment) JobID() string { return e.jobID }

// Config returns the job configuration.
func (e *Environment) Config() *config.JobConfig { return e.config }

// Table returns a bound table by name.
func (e *Environment) Table(name string) (*Table, bool) {
	t, ok := e.tables[name]
	return t, ok
}

// Declared reports whether a table or view with this name exists.
func (e *Environment) Declared(name string) bool {
	_, isTable := e.tables[name]
	_, isView := e.views[name]
	return isTable || isView
}

// BindTable registers a table backed by a connector instance.
func (e *Environment) BindTable(name string, role config.Role, connectorType string, conn Connector) error {
	if e.Declared(name) {
		return fmt.Errorf("table %q is already registered", name)
	}
	if conn == nil {
		return fmt.Errorf("table %q has no connector instance", name)
	}
	e.tables[name] = &Table{Name: name, Role: role, ConnectorType: connectorType, Connector: conn}
	e.names = append(e.names, name)
	return nil
}

// AddView registers a named query. Every source must already be declared
// and readable.
func (e *Environment) AddView(name, queryText string, sources []string) error {
	if e.Declared(name) {
		return fmt.Errorf("view %q is already registered", name)
	}
	if err := e.checkReadable(sources); err != nil {
		return err
	}
	e.views[name] = &view{name: name, query: queryText, sources: sources}
	e.names = append(e.names, name)
	return nil
}

// AddQuery registers a query writing into a sink table.
func (e *Environment) AddQuery(target, queryText string, sources []string) error {
	t, ok := e.tables[target]
	if !ok {
		if _, isView := e.views[target]; isView {
			return &TableRoleError{Table: target, Role: "view", Want: config.RoleSink}
		}
		return &UnboundTableError{Table: target}
	}
	if t.Role != config.RoleSink {
		return &TableRoleError{Table: target, Role: string(t.Role), Want: config.RoleSink}
	}
	if err := e.checkReadable(sources); err != nil {
		return err
	}
	e.queries = append(e.queries, &query{target: target, query: queryText, sources: sources})
	return nil
}

func (e *Environment) checkReadable(sources []string) error {
	for _, name := range sources {
		if _, isView := e.views[name]; isView {
			continue
		}
		t, ok := e.tables[name]
		if !ok {
			return &UnboundTableError{Table: name}
		}
		if t.Role == config.RoleSink {
			return &TableRoleError{Table: name, Role: string(t.Role), Want: config.RoleSource}
		}
	}
	return nil
}

// UnboundTableError reports a reference to a table that was never declared.
type UnboundTableError struct {
	Table string
}

func (e *UnboundTableError) Error() string {
	return fmt.Sprintf("table %q is not declared", e.Table)
}

// TableRoleError reports a table used in a way its role does not allow.
type TableRoleError struct {
	Table string
	Role  string
	Want  config.Role
}

func (e *TableRoleError) Error() string {
	if e.Want == config.RoleSink {
		return fmt.Sprintf("cannot insert into %s %q: only sink tables accept inserts", e.Role, e.Table)
	}
	return fmt.Sprintf("cannot read from %s table %q", e.Role, e.Table)
}

// BuildGraph turns the registered queries into a job graph named jobName.
// Only tables and views reachable from a query become vertices.
func (e *Environment) BuildGraph(jobName string) (*jobgraph.JobGraph, error) {
	if len(e.queries) == 0 {
		return nil, ErrNoOperators
	}

	b := &graphBuilder{
		env:      e,
		dag:      dag.New(),
		vertices: make(map[string]jobgraph.Vertex),
	}
	for i, q := range e.queries {
		id := fmt.Sprintf("query:%d", i+1)
		b.addVertex(jobgraph.Vertex{ID: id, Kind: jobgraph.KindQuery, Query: q.query})
		for _, src := range q.sources {
			if err := b.link(b.ensureReadable(src), id); err != nil {
				return nil, err
			}
		}
		sinkID := b.ensureTable(e.tables[q.target], jobgraph.KindSink)
		if err := b.link(id, sinkID); err != nil {
			return nil, err
		}
	}

	order, err := b.dag.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("invalid job topology: %w", err)
	}

	g := &jobgraph.JobGraph{
		JobID:    e.jobID,
		Name:     jobName,
		Config:   e.config,
		Vertices: make([]jobgraph.Vertex, 0, len(order)),
		Edges:    b.edges,
	}
	for _, id := range order {
		g.Vertices = append(g.Vertices, b.vertices[id])
	}
	return g, nil
}

type graphBuilder struct {
	env      *Environment
	dag      *dag.Graph
	vertices map[string]jobgraph.Vertex
	edges    []jobgraph.Edge
}

func (b *graphBuilder) addVertex(v jobgraph.Vertex) {
	v.Parallelism = b.env.config.Parallelism
	if v.Parallelism < 1 {
		v.Parallelism = 1
	}
	b.vertices[v.ID] = v
	b.dag.AddNode(v.ID)
}

func (b *graphBuilder) link(from, to string) error {
	deps, err := b.dag.Dependencies(to)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if d == from {
			return nil
		}
	}
	if err := b.dag.AddEdge(from, to); err != nil {
		return err
	}
	b.edges = append(b.edges, jobgraph.Edge{From: from, To: to})
	return nil
}

// ensureReadable returns the vertex producing the named table or view,
// creating it and its upstream vertices on first use.
func (b *graphBuilder) ensureReadable(name string) string {
	if t, ok := b.env.tables[name]; ok {
		kind := jobgraph.KindSource
		if t.Role == config.RoleTransform {
			kind = jobgraph.KindLookup
		}
		return b.ensureTable(t, kind)
	}

	v := b.env.views[name]
	id := "view:" + v.name
	if b.dag.HasNode(id) {
		return id
	}
	upstream := make([]string, 0, len(v.sources))
	for _, src := range v.sources {
		upstream = append(upstream, b.ensureReadable(src))
	}
	b.addVertex(jobgraph.Vertex{ID: id, Kind: jobgraph.KindView, Table: v.name, Query: v.query})
	for _, from := range upstream {
		// Both ends exist and views only read earlier declarations.
		_ = b.link(from, id)
	}
	return id
}

func (b *graphBuilder) ensureTable(t *Table, kind jobgraph.VertexKind) string {
	id := string(kind) + ":" + t.Name
	if b.dag.HasNode(id) {
		return id
	}
	b.addVertex(jobgraph.Vertex{
		ID:         id,
		Kind:       kind,
		Table:      t.Name,
		Connector:  t.ConnectorType,
		Properties: t.Connector.Properties(),
	})
	return id
}
