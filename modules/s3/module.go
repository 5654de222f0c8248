package s3

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/vk/sqlgrid/internal/ctxlog"
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/internal/runtime"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options defines the WITH options shared by S3 tables.
type Options struct {
	Path     string `sqlgrid:"path"`
	Format   string `sqlgrid:"format"`
	Region   string `sqlgrid:"region"`
	Endpoint string `sqlgrid:"endpoint"`
}

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// contentTypes maps file formats to the content type objects are written with.
var contentTypes = map[string]string{
	"parquet": "application/vnd.apache.parquet",
	"csv":     "text/csv",
	"json":    "application/json",
	"orc":     "application/octet-stream",
}

// Location is a configured S3 prefix.
type Location struct {
	Bucket      string
	Prefix      string
	Format      string
	Region      string
	Endpoint    string
	ContentType string
}

// Properties implements the runtime.Connector interface.
func (l *Location) Properties() map[string]string {
	props := map[string]string{
		"bucket":       l.Bucket,
		"prefix":       l.Prefix,
		"format":       l.Format,
		"region":       l.Region,
		"content_type": l.ContentType,
	}
	if l.Endpoint != "" {
		props["endpoint"] = l.Endpoint
	}
	return props
}

// parseLocation validates the options and splits path into bucket and prefix.
func parseLocation(o *Options) (*Location, error) {
	u, err := url.Parse(o.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid path '%s': %w", o.Path, err)
	}
	if u.Scheme != "s3" && u.Scheme != "s3a" {
		return nil, fmt.Errorf("invalid path '%s': scheme must be s3 or s3a", o.Path)
	}
	if !bucketName.MatchString(u.Host) {
		return nil, fmt.Errorf("invalid bucket name '%s'", u.Host)
	}

	format := strings.ToLower(o.Format)
	contentType, ok := contentTypes[format]
	if !ok {
		if contentType = mime.TypeByExtension("." + format); contentType == "" {
			return nil, fmt.Errorf("unsupported format '%s'", o.Format)
		}
	}

	if o.Endpoint != "" {
		ep, err := url.Parse(o.Endpoint)
		if err != nil || ep.Scheme == "" || ep.Host == "" {
			return nil, fmt.Errorf("invalid endpoint '%s': expected an absolute URL", o.Endpoint)
		}
	}

	return &Location{
		Bucket:      u.Host,
		Prefix:      strings.TrimPrefix(u.Path, "/"),
		Format:      format,
		Region:      o.Region,
		Endpoint:    o.Endpoint,
		ContentType: contentType,
	}, nil
}

func newLocation(ctx context.Context, table string, options any) (runtime.Connector, error) {
	loc, err := parseLocation(options.(*Options))
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Configured S3 location.", "table", table, "bucket", loc.Bucket, "prefix", loc.Prefix)
	return loc, nil
}

// Register registers the connectors with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterConnector("S3Sink", &registry.RegisteredConnector{
		NewOptions: func() any { return new(Options) },
		New:        newLocation,
	})
	r.RegisterConnector("S3Batch", &registry.RegisteredConnector{
		NewOptions: func() any { return new(Options) },
		New:        newLocation,
	})
}
