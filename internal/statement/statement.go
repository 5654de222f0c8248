// Package statement parses individual statement texts of a flow into a
// closed set of typed statements.
//
// The set of variants is fixed: *CreateTable, *InsertSelect, *CreateView and
// *Unparsed. Callers dispatch with a type switch and treat any other value as
// a programming error.
package statement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// Statement is one parsed statement of a flow.
type Statement interface {
	// SQL returns the statement text as it appeared in the flow.
	SQL() string
	sealed()
}

// TableKind is the declared role of a table in CREATE ... TABLE.
type TableKind int

const (
	Source TableKind = iota
	Sink
	Batch
)

func (k TableKind) String() string {
	switch k {
	case Source:
		return "SOURCE"
	case Sink:
		return "SINK"
	case Batch:
		return "BATCH"
	default:
		return fmt.Sprintf("TableKind(%d)", int(k))
	}
}

// Role maps a table kind to the plugin role that must implement it. Batch
// tables are served by transform plugins.
func (k TableKind) Role() config.Role {
	switch k {
	case Source:
		return config.RoleSource
	case Sink:
		return config.RoleSink
	default:
		return config.RoleTransform
	}
}

// Column is one entry of an optional table schema.
type Column struct {
	Name    string
	Type    string
	Comment string
}

// Watermark declares the event-time column of a source table.
type Watermark struct {
	Column string
	Expr   string
}

// CreateTable declares a virtual table backed by a connector.
type CreateTable struct {
	Kind          TableKind
	Name          string
	IfNotExists   bool
	ConnectorType string
	// Options holds every WITH option except "type".
	Options   map[string]cty.Value
	Columns   []Column
	Watermark *Watermark
	Comment   string
	Text      string
}

// InsertSelect writes the result of a query into a previously declared table.
type InsertSelect struct {
	Target  string
	Columns []string
	Query   string
	// Sources lists the tables read by Query in first-seen order.
	Sources []string
	Text    string
}

// CreateView names a query so later statements can read from it.
type CreateView struct {
	Name    string
	Query   string
	Sources []string
	Text    string
}

// Unparsed carries a statement that could not be parsed.
type Unparsed struct {
	Text string
	Err  *ParseError
}

func (s *CreateTable) SQL() string  { return s.Text }
func (s *InsertSelect) SQL() string { return s.Text }
func (s *CreateView) SQL() string   { return s.Text }
func (s *Unparsed) SQL() string     { return s.Text }

func (*CreateTable) sealed()  {}
func (*InsertSelect) sealed() {}
func (*CreateView) sealed()   {}
func (*Unparsed) sealed()     {}

// OptionKeys returns the option names of the table in sorted order.
func (s *CreateTable) OptionKeys() []string {
	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseError describes malformed statement text.
type ParseError struct {
	Text   string
	Offset int
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

func newParseError(text string, offset int, msg string) *ParseError {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	line := 1 + strings.Count(text[:offset], "\n")
	col := offset - strings.LastIndexByte(text[:offset], '\n')
	return &ParseError{
		Text:   text,
		Offset: offset,
		Line:   line,
		Column: col,
		Msg:    msg,
	}
}
