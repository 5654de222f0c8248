// Package app contains the core application logic. It wires the plugin
// registry, the dependency pass and the compilation sandbox together and
// defines the compile lifecycle, decoupled from any specific entrypoint
// like a CLI.
package app
