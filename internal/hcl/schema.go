package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Plugins []*pluginBlock `hcl:"plugin,block"`
	Jobs    []*jobBlock    `hcl:"job,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

// pluginBlock represents a `plugin` manifest block.
type pluginBlock struct {
	Name           string         `hcl:"name,label"`
	Role           string         `hcl:"role"`
	Implementation string         `hcl:"implementation"`
	Description    string         `hcl:"description,optional"`
	Aliases        []string       `hcl:"aliases,optional"`
	Artifacts      []string       `hcl:"artifacts,optional"`
	Options        []*optionBlock `hcl:"option,block"`
}

// optionBlock defines a single WITH option accepted by a plugin.
type optionBlock struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// jobBlock represents the `job` block of a job configuration file.
type jobBlock struct {
	Parallelism        *int              `hcl:"parallelism,optional"`
	CheckpointInterval string            `hcl:"checkpoint_interval,optional"`
	Properties         map[string]string `hcl:"properties,optional"`
}
