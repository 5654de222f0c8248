package depends

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/flow"
)

type finderFunc func(typeName string, role config.Role) (*config.PluginDefinition, bool)

func (f finderFunc) FindPlugin(typeName string, role config.Role) (*config.PluginDefinition, bool) {
	return f(typeName, role)
}

func mapFinder(defs ...*config.PluginDefinition) PluginFinder {
	return finderFunc(func(typeName string, role config.Role) (*config.PluginDefinition, bool) {
		for _, d := range defs {
			if d.Role == role && d.Matches(typeName) {
				return d, true
			}
		}
		return nil, false
	})
}

var (
	kafkaSource = &config.PluginDefinition{Name: "kafka", Role: config.RoleSource}
	printSink   = &config.PluginDefinition{Name: "print", Aliases: []string{"stdout"}, Role: config.RoleSink}
	httpLookup  = &config.PluginDefinition{Name: "http", Role: config.RoleTransform}
)

const script = `
CREATE SOURCE TABLE orders WITH (type = 'kafka', topic = 'o');
CREATE BATCH TABLE rates WITH (type = 'http', url = 'http://x');
this is not sql;
CREATE SINK TABLE out WITH (type = 'STDOUT');
CREATE SINK TABLE lost WITH (type = 'unknown-x');
INSERT INTO out SELECT * FROM orders;
CREATE SOURCE TABLE broken WITH (topic = 'no type');
`

func TestExtractReferences(t *testing.T) {
	refs := ExtractReferences(context.Background(), flow.Split(script))

	require.Len(t, refs, 4)
	assert.Equal(t, ConnectorReference{
		Role:          config.RoleSource,
		ConnectorType: "kafka",
		Table:         "orders",
		Statement:     StatementRef{Index: 0, Text: "CREATE SOURCE TABLE orders WITH (type = 'kafka', topic = 'o')"},
	}, refs[0])
	assert.Equal(t, config.RoleTransform, refs[1].Role)
	assert.Equal(t, "http", refs[1].ConnectorType)
	assert.Equal(t, config.RoleSink, refs[2].Role)
	assert.Equal(t, 3, refs[2].Statement.Index)
	assert.Equal(t, "unknown-x", refs[3].ConnectorType)
}

func TestExtractReferences_NeverFails(t *testing.T) {
	inputs := []flow.Flow{
		nil,
		{""},
		{"CREATE"},
		{"CREATE SOURCE TABLE"},
		{"CREATE SOURCE TABLE a WITH ("},
		{"INSERT INTO x SELECT FROM"},
		{"'unterminated"},
		{"/* open comment"},
		{"\x00\xff\xfe"},
	}
	for _, f := range inputs {
		assert.NotPanics(t, func() {
			assert.Empty(t, ExtractReferences(context.Background(), f))
		})
	}
}

func TestResolver(t *testing.T) {
	r := NewResolver(mapFinder(kafkaSource, printSink, httpLookup))
	refs := ExtractReferences(context.Background(), flow.Split(script))

	def, ok := r.Resolve(refs[2])
	require.True(t, ok)
	assert.Same(t, printSink, def)

	_, ok = r.Resolve(refs[3])
	assert.False(t, ok)

	assert.Equal(t, []*config.PluginDefinition{printSink, kafkaSource, httpLookup}, r.ResolveAll(refs))

	unresolved := r.Unresolved(refs)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "unknown-x", unresolved[0].ConnectorType)
}

func TestResolver_OrderIndependentAndIdempotent(t *testing.T) {
	r := NewResolver(mapFinder(kafkaSource, printSink, httpLookup))
	refs := ExtractReferences(context.Background(), flow.Split(script))
	want := r.ResolveAll(refs)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]ConnectorReference(nil), refs...)
		shuffled = append(shuffled, refs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, r.ResolveAll(shuffled))
	}
	assert.Equal(t, want, r.ResolveAll(refs))
}

func TestResolver_NilFinder(t *testing.T) {
	r := &Resolver{}
	refs := []ConnectorReference{{Role: config.RoleSource, ConnectorType: "kafka"}}
	assert.Empty(t, r.ResolveAll(refs))
	assert.Equal(t, refs, r.Unresolved(refs))
}

func TestAnalyze(t *testing.T) {
	r := NewResolver(mapFinder(kafkaSource, printSink))
	deps := r.Analyze(context.Background(), flow.Split(script))

	assert.Len(t, deps.References, 4)
	assert.Equal(t, []*config.PluginDefinition{printSink, kafkaSource}, deps.Plugins)
	require.Len(t, deps.Unresolved, 2)
	assert.Equal(t, "http", deps.Unresolved[0].ConnectorType)
	assert.Equal(t, "unknown-x", deps.Unresolved[1].ConnectorType)
}

type registryFinder struct {
	defs []*config.PluginDefinition
}

func (f registryFinder) FindPlugin(typeName string, role config.Role) (*config.PluginDefinition, bool) {
	return mapFinder(f.defs...).FindPlugin(typeName, role)
}

func (f registryFinder) FindByName(typeName string) []*config.PluginDefinition {
	var out []*config.PluginDefinition
	for _, d := range f.defs {
		if d.Matches(typeName) {
			out = append(out, d)
		}
	}
	return out
}

func TestAnalyze_RoleCandidates(t *testing.T) {
	testCases := []struct {
		name       string
		finder     PluginFinder
		script     string
		candidates []*config.PluginDefinition
		isolation  []*config.PluginDefinition
	}{
		{
			name:       "sink used as source",
			finder:     registryFinder{defs: []*config.PluginDefinition{kafkaSource, printSink}},
			script:     "CREATE SOURCE TABLE a WITH (type = 'stdout');",
			candidates: []*config.PluginDefinition{printSink},
			isolation:  []*config.PluginDefinition{printSink},
		},
		{
			name:       "candidate already resolved is deduplicated",
			finder:     registryFinder{defs: []*config.PluginDefinition{kafkaSource, printSink}},
			script:     "CREATE SOURCE TABLE a WITH (type = 'kafka'); CREATE SINK TABLE b WITH (type = 'kafka');",
			candidates: []*config.PluginDefinition{kafkaSource},
			isolation:  []*config.PluginDefinition{kafkaSource},
		},
		{
			name:       "unknown type has no candidates",
			finder:     registryFinder{defs: []*config.PluginDefinition{kafkaSource, printSink}},
			script:     "CREATE SOURCE TABLE a WITH (type = 'nope'); CREATE SINK TABLE b WITH (type = 'print');",
			candidates: []*config.PluginDefinition{},
			isolation:  []*config.PluginDefinition{printSink},
		},
		{
			name:      "finder without name lookup",
			finder:    mapFinder(kafkaSource, printSink),
			script:    "CREATE SOURCE TABLE a WITH (type = 'stdout');",
			isolation: []*config.PluginDefinition{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			deps := NewResolver(tc.finder).Analyze(context.Background(), flow.Split(tc.script))
			assert.Equal(t, tc.candidates, deps.Candidates)
			assert.Equal(t, tc.isolation, deps.IsolationContext())
		})
	}
}
