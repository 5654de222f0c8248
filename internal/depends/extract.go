// Package depends derives the plugin dependencies of a flow ahead of strict
// compilation. Every operation here is best effort: malformed statements and
// unknown connector types are reported, never raised.
package depends

import (
	"context"
	"fmt"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/flow"
	"github.com/vk/sqlgrid/internal/statement"
)

// StatementRef identifies the statement a reference was declared by.
type StatementRef struct {
	Index int
	Text  string
}

// ConnectorReference is a connector type required by a table declaration.
type ConnectorReference struct {
	Role          config.Role
	ConnectorType string
	Table         string
	Statement     StatementRef
}

func (r ConnectorReference) String() string {
	return fmt.Sprintf("%s %q (table %s, statement %d)", r.Role, r.ConnectorType, r.Table, r.Statement.Index)
}

// ExtractReferences scans a flow for table declarations. Statements that do
// not parse are skipped.
func ExtractReferences(ctx context.Context, f flow.Flow) []ConnectorReference {
	logger := ctxlog.FromContext(ctx)
	var refs []ConnectorReference
	for i, text := range f {
		switch s := statement.ParseOrUnparsed(text).(type) {
		case *statement.CreateTable:
			refs = append(refs, ConnectorReference{
				Role:          s.Kind.Role(),
				ConnectorType: s.ConnectorType,
				Table:         s.Name,
				Statement:     StatementRef{Index: i, Text: s.Text},
			})
		case *statement.Unparsed:
			logger.Debug("Skipping unparsable statement during dependency extraction.", "index", i, "error", s.Err)
		case *statement.InsertSelect, *statement.CreateView:
			// No connector declared.
		}
	}
	return refs
}
