package builder

import (
	"context"
	"fmt"
	"maps"

	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/runtime"
	"github.com/vk/sqlgrid/internal/statement"
	"github.com/zclconf/go-cty/cty"
)

func (a *Accumulator) bindTable(ctx context.Context, index int, s *statement.CreateTable) error {
	logger := ctxlog.FromContext(ctx)

	// IF NOT EXISTS does not license a redeclaration within one script.
	if first, ok := a.declared[s.Name]; ok {
		return &DuplicateTableError{Table: s.Name, FirstIndex: first}
	}

	role := s.Kind.Role()
	def, err := a.resolve(s.ConnectorType, role)
	if err != nil {
		return err
	}
	impl, ok := a.finder.Connector(def.Implementation)
	if !ok {
		return &UnresolvedConnectorError{ConnectorType: s.ConnectorType, Role: role, Implementation: def.Implementation}
	}

	var options any
	if impl.NewOptions != nil {
		options = impl.NewOptions()
		if err := a.converter.DecodeOptions(ctx, options, s.Options, def.Options); err != nil {
			return err
		}
	}

	conn, err := impl.New(ctx, s.Name, options)
	if err != nil {
		return fmt.Errorf("failed to create %s connector %q for table %q: %w", role, def.Name, s.Name, err)
	}

	extra := make(map[string]string)
	for _, key := range s.OptionKeys() {
		if _, declared := def.Options[key]; declared {
			continue
		}
		logger.Debug("Passing through option not declared by plugin.", "table", s.Name, "option", key)
		extra[key] = formatValue(s.Options[key])
	}
	if len(extra) > 0 {
		conn = &overlay{Connector: conn, extra: extra}
	}

	if err := a.env.BindTable(s.Name, role, def.Name, conn); err != nil {
		return err
	}
	a.declared[s.Name] = index
	return nil
}

// resolve finds the plugin for a connector type and role, telling an
// unknown type apart from a type registered only for other roles.
func (a *Accumulator) resolve(typeName string, role config.Role) (*config.PluginDefinition, error) {
	if def, ok := a.finder.FindPlugin(typeName, role); ok {
		return def, nil
	}
	others := a.finder.FindByName(typeName)
	if len(others) == 0 {
		return nil, &UnresolvedConnectorError{ConnectorType: typeName, Role: role}
	}
	have := make([]config.Role, 0, len(others))
	for _, d := range others {
		have = append(have, d.Role)
	}
	return nil, &RoleMismatchError{ConnectorType: typeName, Want: role, Have: have}
}

// overlay adds undeclared WITH options to a connector's properties.
type overlay struct {
	runtime.Connector
	extra map[string]string
}

func (o *overlay) Properties() map[string]string {
	props := make(map[string]string, len(o.extra))
	maps.Copy(props, o.extra)
	maps.Copy(props, o.Connector.Properties())
	return props
}

func formatValue(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	switch v.Type() {
	case cty.String:
		return v.AsString()
	case cty.Number:
		return v.AsBigFloat().Text('f', -1)
	case cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	default:
		return v.GoString()
	}
}
