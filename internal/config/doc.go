// Package config defines the format-agnostic configuration model for the
// compiler, along with the core interfaces (Loader, Converter) for loading
// plugin manifests and job configuration and for binding connector options.
//
// The `config.Model` is the single source of truth for the `registry`,
// `builder` and `sandbox` packages. Concrete implementations of the
// interfaces, such as for HCL, are provided in separate packages.
package config
