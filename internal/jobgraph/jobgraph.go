// Package jobgraph defines the compiled, serializable job graph: the only
// artifact a compilation hands back to its caller.
package jobgraph

import (
	"bytes"
	"fmt"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vmihailenco/msgpack/v5"
)

// VertexKind classifies a vertex of the graph.
type VertexKind string

const (
	KindSource VertexKind = "source"
	KindLookup VertexKind = "lookup"
	KindQuery  VertexKind = "query"
	KindView   VertexKind = "view"
	KindSink   VertexKind = "sink"
)

// Vertex is one operator of the job.
type Vertex struct {
	ID          string            `msgpack:"id"`
	Kind        VertexKind        `msgpack:"kind"`
	Table       string            `msgpack:"table,omitempty"`
	Connector   string            `msgpack:"connector,omitempty"`
	Query       string            `msgpack:"query,omitempty"`
	Parallelism int               `msgpack:"parallelism"`
	Properties  map[string]string `msgpack:"properties,omitempty"`
}

// Edge is a data dependency: To consumes the output of From.
type Edge struct {
	From string `msgpack:"from"`
	To   string `msgpack:"to"`
}

// JobGraph is the result of compiling a flow. It is immutable once returned.
type JobGraph struct {
	JobID    string            `msgpack:"job_id"`
	Name     string            `msgpack:"name"`
	Config   *config.JobConfig `msgpack:"config"`
	Vertices []Vertex          `msgpack:"vertices"`
	Edges    []Edge            `msgpack:"edges"`
}

// Vertex returns the vertex with the given ID.
func (g *JobGraph) Vertex(id string) (Vertex, bool) {
	for _, v := range g.Vertices {
		if v.ID == id {
			return v, true
		}
	}
	return Vertex{}, false
}

// VerticesOf returns the vertices of the given kind in graph order.
func (g *JobGraph) VerticesOf(kind VertexKind) []Vertex {
	var out []Vertex
	for _, v := range g.Vertices {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// Encode serializes the graph. Map keys are sorted, so identical graphs
// always encode to identical bytes.
func Encode(g *JobGraph) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(g); err != nil {
		return nil, fmt.Errorf("failed to encode job graph %q: %w", g.JobID, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a graph produced by Encode.
func Decode(data []byte) (*JobGraph, error) {
	var g JobGraph
	if err := msgpack.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode job graph: %w", err)
	}
	return &g, nil
}
