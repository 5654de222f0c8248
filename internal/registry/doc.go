// Package registry provides the central "glue" for the plugin system.
//
// The Registry stores two things: the plugin definitions parsed from HCL
// manifests (which connector type names exist, for which role, with which
// options and artifacts) and the compiled Go connector factories that
// manifests name in their `implementation` attribute.
//
// During startup the registry is populated and then validated to ensure the
// Go code and the manifests are in sync, so a compile never discovers a
// missing factory or an option type mismatch halfway through a flow.
package registry
