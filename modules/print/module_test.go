package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sqlgrid/internal/builder"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/flow"
	"github.com/vk/sqlgrid/internal/runtime"
	"github.com/vk/sqlgrid/internal/testutil"
)

func TestPrintSinkByAlias(t *testing.T) {
	reg := testutil.LoadManifests(t, []string{"manifest.hcl"}, &Module{})
	reg.Register(&testutil.NoOpModule{})

	src := &config.PluginDefinition{Name: "static", Role: config.RoleSource, Implementation: "NoOp"}
	require.NoError(t, reg.PopulateDefinitionsFromModel(&config.Model{Plugins: []*config.PluginDefinition{src}}))

	env := runtime.NewEnvironment(nil, "print-test")
	g, err := builder.Compile(context.Background(), env, reg, flow.Split(`
CREATE SOURCE TABLE s WITH (type = 'static');
CREATE SINK TABLE out WITH (type = 'STDOUT', prefix = '> ', stderr = true);
INSERT INTO out SELECT * FROM s;
`), "")
	require.NoError(t, err)

	v, ok := g.Vertex("sink:out")
	require.True(t, ok)
	assert.Equal(t, "print", v.Connector)
	assert.Equal(t, map[string]string{"prefix": "> ", "target": "stderr"}, v.Properties)
}

func TestWriteRecord(t *testing.T) {
	var buf bytes.Buffer
	s := &Sink{Prefix: "  "}

	require.NoError(t, s.WriteRecord(&buf, map[string]string{"b": "2", "a": `say "hi"`}))
	require.NoError(t, s.WriteRecord(&buf, nil))

	assert.Equal(t, "  a = \"say \\\"hi\\\"\"\n  b = \"2\"\n  (null)\n", buf.String())
}
