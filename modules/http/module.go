// Package http provides a lookup connector that enriches records by calling
// an HTTP service.
package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options defines the WITH options of an HTTP lookup table.
type Options struct {
	URL      string `sqlgrid:"url"`
	Method   string `sqlgrid:"method"`
	Timeout  string `sqlgrid:"timeout"`
	CacheTTL string `sqlgrid:"cache_ttl"`
}

// Lookup is a configured HTTP lookup endpoint.
type Lookup struct {
	URL      *url.URL
	Method   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Properties implements the runtime.Connector interface.
func (l *Lookup) Properties() map[string]string {
	return map[string]string{
		"url":       l.URL.String(),
		"method":    l.Method,
		"timeout":   l.Timeout.String(),
		"cache_ttl": l.CacheTTL.String(),
	}
}

// Client returns an HTTP client configured for the lookup.
func (l *Lookup) Client() *http.Client {
	return &http.Client{
		Timeout: l.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// NewLookup is the factory for the 'http' connector.
func NewLookup(ctx context.Context, table string, options any) (runtime.Connector, error) {
	o := options.(*Options)

	u, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url '%s': %w", o.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url '%s': scheme must be http or https", o.URL)
	}

	method := strings.ToUpper(o.Method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("unsupported method '%s': must be GET or POST", o.Method)
	}

	timeout, err := time.ParseDuration(o.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", timeout)
	}
	ttl, err := time.ParseDuration(o.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache_ttl: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("Configured HTTP lookup.", "table", table, "url", u.Redacted())
	return &Lookup{URL: u, Method: method, Timeout: timeout, CacheTTL: ttl}, nil
}

// Register registers the connector with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterConnector("HttpLookup", &registry.RegisteredConnector{
		NewOptions: func() any { return new(Options) },
		New:        NewLookup,
	})
}
