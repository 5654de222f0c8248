// Package kafka provides the Kafka source and sink connectors.
package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// SourceOptions are the WITH options of a Kafka source table.
type SourceOptions struct {
	Topic   string `sqlgrid:"topic"`
	Brokers string `sqlgrid:"brokers"`
	GroupID string `sqlgrid:"group_id"`
	Format  string `sqlgrid:"format"`
	Offset  string `sqlgrid:"offset"`
}

// SinkOptions are the WITH options of a Kafka sink table.
type SinkOptions struct {
	Topic      string `sqlgrid:"topic"`
	Brokers    string `sqlgrid:"brokers"`
	Format     string `sqlgrid:"format"`
	Partitions int    `sqlgrid:"partitions"`
}

var formats = map[string]bool{"json": true, "csv": true, "raw": true}

// Connector is a configured Kafka endpoint.
type Connector struct {
	Topics  []string
	Brokers []string
	props   map[string]string
}

// Properties implements the runtime.Connector interface.
func (c *Connector) Properties() map[string]string {
	return c.props
}

// parseBrokers splits a comma-separated broker list and checks that every
// entry is a host:port pair.
func parseBrokers(s string) ([]string, error) {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, port, err := net.SplitHostPort(b); err != nil || port == "" {
			return nil, fmt.Errorf("invalid broker address %q: expected host:port", b)
		}
		brokers = append(brokers, b)
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers configured")
	}
	return brokers, nil
}

func parseTopics(s string) ([]string, error) {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("option 'topic' must not be empty")
	}
	return topics, nil
}

func checkFormat(format string) error {
	if !formats[strings.ToLower(format)] {
		return fmt.Errorf("unsupported format %q: must be one of csv, json, raw", format)
	}
	return nil
}

// NewSource creates a Kafka source connector.
func NewSource(ctx context.Context, table string, options any) (runtime.Connector, error) {
	o := options.(*SourceOptions)
	topics, err := parseTopics(o.Topic)
	if err != nil {
		return nil, err
	}
	brokers, err := parseBrokers(o.Brokers)
	if err != nil {
		return nil, err
	}
	if err := checkFormat(o.Format); err != nil {
		return nil, err
	}
	offset := strings.ToLower(o.Offset)
	if offset != "earliest" && offset != "latest" {
		return nil, fmt.Errorf("invalid offset %q: must be earliest or latest", o.Offset)
	}

	ctxlog.FromContext(ctx).Debug("Configured Kafka source.", "table", table, "topics", topics, "brokers", brokers)
	return &Connector{
		Topics:  topics,
		Brokers: brokers,
		props: map[string]string{
			"topic":    strings.Join(topics, ","),
			"brokers":  strings.Join(brokers, ","),
			"group_id": o.GroupID,
			"format":   strings.ToLower(o.Format),
			"offset":   offset,
		},
	}, nil
}

// NewSink creates a Kafka sink connector.
func NewSink(ctx context.Context, table string, options any) (runtime.Connector, error) {
	o := options.(*SinkOptions)
	topics, err := parseTopics(o.Topic)
	if err != nil {
		return nil, err
	}
	if len(topics) > 1 {
		return nil, fmt.Errorf("a sink writes to exactly one topic, got %d", len(topics))
	}
	brokers, err := parseBrokers(o.Brokers)
	if err != nil {
		return nil, err
	}
	if err := checkFormat(o.Format); err != nil {
		return nil, err
	}
	if o.Partitions < 1 {
		return nil, fmt.Errorf("partitions must be at least 1, got %d", o.Partitions)
	}

	ctxlog.FromContext(ctx).Debug("Configured Kafka sink.", "table", table, "topic", topics[0])
	return &Connector{
		Topics:  topics,
		Brokers: brokers,
		props: map[string]string{
			"topic":      topics[0],
			"brokers":    strings.Join(brokers, ","),
			"format":     strings.ToLower(o.Format),
			"partitions": strconv.Itoa(o.Partitions),
		},
	}, nil
}

// Register registers the connectors with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterConnector("KafkaSource", &registry.RegisteredConnector{
		NewOptions: func() any { return new(SourceOptions) },
		New:        NewSource,
	})
	r.RegisterConnector("KafkaSink", &registry.RegisteredConnector{
		NewOptions: func() any { return new(SinkOptions) },
		New:        NewSink,
	})
}
