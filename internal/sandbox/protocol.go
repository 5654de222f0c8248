package sandbox

import (
	"errors"
	"fmt"
	"io"

	"github.com/vk/sqlgrid/internal/builder"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/runtime"
	"github.com/vk/sqlgrid/internal/statement"
	"github.com/vmihailenco/msgpack/v5"
)

// request is the message the host writes to the worker's stdin.
type request struct {
	RequestID string            `msgpack:"request_id"`
	JobID     string            `msgpack:"job_id"`
	Flow      []string          `msgpack:"flow"`
	Job       *config.JobConfig `msgpack:"job"`
	// Manifests are the plugin manifests forming the isolation context.
	Manifests []string `msgpack:"manifests"`
	LogLevel  string   `msgpack:"log_level"`
}

// response is the message the worker writes to its stdout.
type response struct {
	RequestID string   `msgpack:"request_id"`
	Graph     []byte   `msgpack:"graph,omitempty"`
	Failure   *Failure `msgpack:"failure,omitempty"`
}

// Failure kinds.
const (
	kindParse        = "parse"
	kindUnresolved   = "unresolved_connector"
	kindRoleMismatch = "role_mismatch"
	kindDuplicate    = "duplicate_table"
	kindUnbound      = "unbound_table"
	kindTableRole    = "table_role"
	kindOption       = "option"
	kindNoOperators  = "no_operators"
	kindLoad         = "load"
	kindPanic        = "panic"
	kindOther        = "other"
)

// Failure is the serializable form of a compile error.
type Failure struct {
	Kind    string `msgpack:"kind"`
	Message string `msgpack:"message"`

	HasStatement bool   `msgpack:"has_statement,omitempty"`
	Index        int    `msgpack:"index,omitempty"`
	Statement    string `msgpack:"statement,omitempty"`

	ConnectorType  string   `msgpack:"connector_type,omitempty"`
	Role           string   `msgpack:"role,omitempty"`
	Roles          []string `msgpack:"roles,omitempty"`
	Implementation string   `msgpack:"implementation,omitempty"`
	Table          string   `msgpack:"table,omitempty"`
	FirstIndex     int      `msgpack:"first_index,omitempty"`
	Option         string   `msgpack:"option,omitempty"`

	Offset int `msgpack:"offset,omitempty"`
	Line   int `msgpack:"line,omitempty"`
	Column int `msgpack:"column,omitempty"`

	Remote string `msgpack:"remote,omitempty"`
}

// toFailure flattens err into a Failure.
func toFailure(err error) *Failure {
	f := &Failure{Kind: kindOther, Message: err.Error()}

	var stmtErr *builder.StatementError
	if errors.As(err, &stmtErr) {
		f.HasStatement = true
		f.Index = stmtErr.Index
		f.Statement = stmtErr.Text
		err = stmtErr.Err
		f.Message = err.Error()
	}

	var (
		parseErr     *statement.ParseError
		unresolved   *builder.UnresolvedConnectorError
		roleMismatch *builder.RoleMismatchError
		duplicate    *builder.DuplicateTableError
		unbound      *builder.UnboundTableError
		tableRole    *builder.TableRoleError
		optionErr    *config.OptionError
	)
	switch {
	case errors.As(err, &parseErr):
		f.Kind = kindParse
		f.Message = parseErr.Msg
		f.Offset, f.Line, f.Column = parseErr.Offset, parseErr.Line, parseErr.Column
	case errors.As(err, &unresolved):
		f.Kind = kindUnresolved
		f.ConnectorType = unresolved.ConnectorType
		f.Role = string(unresolved.Role)
		f.Implementation = unresolved.Implementation
	case errors.As(err, &roleMismatch):
		f.Kind = kindRoleMismatch
		f.ConnectorType = roleMismatch.ConnectorType
		f.Role = string(roleMismatch.Want)
		for _, r := range roleMismatch.Have {
			f.Roles = append(f.Roles, string(r))
		}
	case errors.As(err, &duplicate):
		f.Kind = kindDuplicate
		f.Table = duplicate.Table
		f.FirstIndex = duplicate.FirstIndex
	case errors.As(err, &unbound):
		f.Kind = kindUnbound
		f.Table = unbound.Table
	case errors.As(err, &tableRole):
		f.Kind = kindTableRole
		f.Table = tableRole.Table
		f.Role = tableRole.Role
		f.Roles = []string{string(tableRole.Want)}
	case errors.As(err, &optionErr):
		f.Kind = kindOption
		f.Option = optionErr.Option
		f.Message = optionErr.Err.Error()
	case errors.Is(err, runtime.ErrNoOperators):
		f.Kind = kindNoOperators
	}
	return f
}

// remoteError carries a message whose type did not survive the boundary.
type remoteError struct {
	msg string
}

func (e *remoteError) Error() string { return e.msg }

// err rebuilds the typed error a Failure was flattened from.
func (f *Failure) err() error {
	var err error
	switch f.Kind {
	case kindParse:
		err = &statement.ParseError{Text: f.Statement, Offset: f.Offset, Line: f.Line, Column: f.Column, Msg: f.Message}
	case kindUnresolved:
		err = &builder.UnresolvedConnectorError{ConnectorType: f.ConnectorType, Role: config.Role(f.Role), Implementation: f.Implementation}
	case kindRoleMismatch:
		have := make([]config.Role, len(f.Roles))
		for i, r := range f.Roles {
			have[i] = config.Role(r)
		}
		err = &builder.RoleMismatchError{ConnectorType: f.ConnectorType, Want: config.Role(f.Role), Have: have}
	case kindDuplicate:
		err = &builder.DuplicateTableError{Table: f.Table, FirstIndex: f.FirstIndex}
	case kindUnbound:
		err = &builder.UnboundTableError{Table: f.Table}
	case kindTableRole:
		want := config.RoleSink
		if len(f.Roles) > 0 {
			want = config.Role(f.Roles[0])
		}
		err = &builder.TableRoleError{Table: f.Table, Role: f.Role, Want: want}
	case kindOption:
		err = &config.OptionError{Option: f.Option, Err: &remoteError{msg: f.Message}}
	case kindNoOperators:
		err = fmt.Errorf("failed to build job graph: %w", runtime.ErrNoOperators)
	default:
		err = &remoteError{msg: f.Message}
	}
	if f.HasStatement {
		err = &builder.StatementError{Index: f.Index, Text: f.Statement, Err: err}
	}
	return err
}

func writeMessage(w io.Writer, v any) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(v)
}

func readMessage(r io.Reader, v any) error {
	return msgpack.NewDecoder(r).Decode(v)
}
