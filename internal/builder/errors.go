package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/runtime"
)

// ErrFailed is returned by every call made after the accumulator failed.
var ErrFailed = errors.New("accumulator has failed and cannot accept further statements")

// UnboundTableError reports a query touching a table never declared.
type UnboundTableError = runtime.UnboundTableError

// TableRoleError reports a table used against its role.
type TableRoleError = runtime.TableRoleError

// StatementError attributes a compile failure to the statement that caused it.
type StatementError struct {
	Index int
	Text  string
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %v\n  in: %s", e.Index, e.Err, oneLine(e.Text))
}

func (e *StatementError) Unwrap() error { return e.Err }

// UnresolvedConnectorError reports a connector type with no plugin for the
// declared role, or a plugin whose implementation is not compiled in.
type UnresolvedConnectorError struct {
	ConnectorType  string
	Role           config.Role
	Implementation string
}

func (e *UnresolvedConnectorError) Error() string {
	if e.Implementation != "" {
		return fmt.Sprintf("%s connector %q names implementation %q which is not registered", e.Role, e.ConnectorType, e.Implementation)
	}
	return fmt.Sprintf("no %s plugin found for connector type %q", e.Role, e.ConnectorType)
}

// RoleMismatchError reports a connector type that exists, but not for the
// role the statement declares.
type RoleMismatchError struct {
	ConnectorType string
	Want          config.Role
	Have          []config.Role
}

func (e *RoleMismatchError) Error() string {
	have := make([]string, len(e.Have))
	for i, r := range e.Have {
		have[i] = string(r)
	}
	return fmt.Sprintf("connector type %q cannot be used as %s, it supports: %s", e.ConnectorType, e.Want, strings.Join(have, ", "))
}

// DuplicateTableError reports a second declaration of a table or view name.
type DuplicateTableError struct {
	Table      string
	FirstIndex int
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("table %q is already declared by statement %d", e.Table, e.FirstIndex)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
