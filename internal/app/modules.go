package app

import (
	"github.com/vk/sqlgrid/internal/registry"
	"github.com/vk/sqlgrid/modules/http"
	"github.com/vk/sqlgrid/modules/kafka"
	"github.com/vk/sqlgrid/modules/print"
	"github.com/vk/sqlgrid/modules/s3"
)

// CoreModules is the definitive list of all connector modules compiled into
// the sqlgrid binary. Sandbox workers register the same list.
var CoreModules = []registry.Module{
	&kafka.Module{},
	&print.Module{},
	&s3.Module{},
	&http.Module{},
}
