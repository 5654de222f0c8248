// Package hcl provides the concrete HCL implementation for the configuration
// loading and data conversion interfaces defined in the `config` package.
// It is responsible for reading plugin manifests and job configuration files,
// translating them into the format-agnostic model, and binding option values
// onto connector Go structs through cty.
package hcl
