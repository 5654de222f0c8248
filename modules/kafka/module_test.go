package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/sqlgrid/internal/builder"
	"github.com/vk/sqlgrid/internal/config"
	"github.com/vk/sqlgrid/internal/flow"
	"github.com/vk/sqlgrid/internal/jobgraph"
	"github.com/vk/sqlgrid/internal/runtime"
	"github.com/vk/sqlgrid/internal/testutil"
)

func compile(t *testing.T, script string) (*jobgraph.JobGraph, error) {
	t.Helper()
	reg := testutil.LoadManifests(t, []string{"manifest.hcl"}, &Module{})
	env := runtime.NewEnvironment(nil, "kafka-test")
	return builder.Compile(context.Background(), env, reg, flow.Split(script), "")
}

func TestManifestMatchesModule(t *testing.T) {
	reg := testutil.LoadManifests(t, []string{"manifest.hcl"}, &Module{})
	_, ok := reg.FindPlugin("kafka", config.RoleSource)
	assert.True(t, ok)
	_, ok = reg.FindPlugin("KAFKA", config.RoleSink)
	assert.True(t, ok)
}

func TestKafkaPipeline(t *testing.T) {
	g, err := compile(t, `
CREATE SOURCE TABLE clicks WITH (type = 'kafka', topic = 'clicks, views', brokers = 'b1:9092,b2:9092', offset = 'EARLIEST');
CREATE SINK TABLE out WITH (type = 'kafka', topic = 'clicks-out', partitions = 3);
INSERT INTO out SELECT * FROM clicks;
`)
	require.NoError(t, err)

	src, ok := g.Vertex("source:clicks")
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"topic":    "clicks,views",
		"brokers":  "b1:9092,b2:9092",
		"group_id": "sqlgrid",
		"format":   "json",
		"offset":   "earliest",
	}, src.Properties)

	sink, ok := g.Vertex("sink:out")
	require.True(t, ok)
	assert.Equal(t, "3", sink.Properties["partitions"])
	assert.Equal(t, "localhost:9092", sink.Properties["brokers"])
}

func TestKafkaInvalidOptions(t *testing.T) {
	testCases := []struct {
		name    string
		table   string
		wantErr string
	}{
		{
			name:    "missing topic",
			table:   "CREATE SOURCE TABLE s WITH (type = 'kafka')",
			wantErr: "topic",
		},
		{
			name:    "blank topic",
			table:   "CREATE SOURCE TABLE s WITH (type = 'kafka', topic = ' , ')",
			wantErr: "must not be empty",
		},
		{
			name:    "broker without port",
			table:   "CREATE SOURCE TABLE s WITH (type = 'kafka', topic = 't', brokers = 'localhost')",
			wantErr: "invalid broker address",
		},
		{
			name:    "unknown format",
			table:   "CREATE SOURCE TABLE s WITH (type = 'kafka', topic = 't', format = 'xml')",
			wantErr: "unsupported format",
		},
		{
			name:    "unknown offset",
			table:   "CREATE SOURCE TABLE s WITH (type = 'kafka', topic = 't', offset = 'middle')",
			wantErr: "invalid offset",
		},
		{
			name:    "sink with two topics",
			table:   "CREATE SINK TABLE s WITH (type = 'kafka', topic = 'a,b')",
			wantErr: "exactly one topic",
		},
		{
			name:    "zero partitions",
			table:   "CREATE SINK TABLE s WITH (type = 'kafka', topic = 'a', partitions = 0)",
			wantErr: "partitions must be at least 1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compile(t, tc.table)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)

			var stmtErr *builder.StatementError
			assert.True(t, errors.As(err, &stmtErr))
		})
	}
}
