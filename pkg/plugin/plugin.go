// Package plugin defines the public contract between the moddata framework
// and the plugins it hosts.
//
// A plugin describes itself once through Describe. The host registers it,
// checks its required framework version, and then calls OnEnabled. Plugins
// that persist data additionally implement saves.GlobalSaver and/or
// saves.LocalSaver.
package plugin

import (
	"context"
)

// Plugin is implemented by everything the framework hosts.
type Plugin interface {
	// Describe returns plugin metadata. Called once at registration time;
	// the result must not change afterwards.
	Describe() Descriptor

	// OnEnabled is called after registration, once the version check passed.
	OnEnabled(ctx context.Context) error
}

// Descriptor is the identity of a loaded plugin.
type Descriptor struct {
	Name        string `json:"name"        yaml:"name"`    // unique key, e.g. "better-scanner"
	Version     string `json:"version"     yaml:"version"` // semver, e.g. "1.2.0"
	Description string `json:"description" yaml:"description,omitempty"`
	Author      string `json:"author"      yaml:"author,omitempty"`

	// RequiredFrameworkVersion is the minimum framework version the plugin
	// was built against. Empty or "0.0.0" means no requirement.
	RequiredFrameworkVersion string `json:"required_framework_version,omitempty" yaml:"required_framework_version,omitempty"`

	// Module identifies the code unit that owns the plugin, typically its
	// import path or the manifest directory for manifest-only plugins.
	Module string `json:"module,omitempty" yaml:"module,omitempty"`

	// Instance is the plugin's root object. Opaque to the framework.
	Instance any `json:"-" yaml:"-"`
}

type callerKey struct{}

// WithCaller returns a context that identifies p as the plugin making the
// calls made with it. Save and load entry points resolve their target plugin
// from this value.
func WithCaller(ctx context.Context, p Plugin) context.Context {
	return context.WithValue(ctx, callerKey{}, p)
}

// CallerFrom returns the plugin stored by WithCaller.
func CallerFrom(ctx context.Context) (Plugin, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(callerKey{}).(Plugin)
	return p, ok && p != nil
}
