// Package plugin holds the process-wide plugin registry.
//
// The registry is the single source of truth for which plugins exist. Save
// resolution and version gating both read from it, so it must be populated
// before either runs.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/goatkit/moddata/internal/plugin/version"
	pkgplugin "github.com/goatkit/moddata/pkg/plugin"
)

// Type aliases for the public plugin contract.
type Plugin = pkgplugin.Plugin
type Descriptor = pkgplugin.Descriptor

// State is the lifecycle state of a registered plugin.
type State int

const (
	StateUnknown State = iota
	StateRegistered
	StateEnabled
	StateBlocked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateEnabled:
		return "enabled"
	case StateBlocked:
		return "blocked"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Registry maps plugin names to plugins. The first registration of a name
// wins; later ones are logged and dropped.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*registeredPlugin
	order   []string
	logger  *slog.Logger
}

type registeredPlugin struct {
	plugin Plugin
	desc   Descriptor
	state  State
	err    error
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		plugins: make(map[string]*registeredPlugin),
		logger:  logger,
	}
}

// Register adds p. It never fails loudly: a missing or duplicate name is
// logged and the plugin is ignored. Returns whether p was added.
func (r *Registry) Register(p Plugin) bool {
	if p == nil {
		return false
	}
	desc := p.Describe()
	if desc.Name == "" {
		r.logger.Warn("refusing to register plugin without a name", "module", desc.Module)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[desc.Name]; exists {
		r.logger.Warn("tried to load two plugins with the same name",
			"plugin", desc.Name, "module", desc.Module)
		globalRegistryMetrics().conflicts.Inc()
		return false
	}

	r.plugins[desc.Name] = &registeredPlugin{
		plugin: p,
		desc:   desc,
		state:  StateRegistered,
	}
	r.order = append(r.order, desc.Name)

	r.logger.Info("loaded plugin",
		"plugin", desc.Name, "version", desc.Version, "module", desc.Module)
	return true
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rp, exists := r.plugins[name]
	if !exists {
		return nil, false
	}
	return rp.plugin, true
}

// Describe returns the descriptor recorded at registration.
func (r *Registry) Describe(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rp, exists := r.plugins[name]
	if !exists {
		return Descriptor{}, false
	}
	return rp.desc, true
}

// GetByModule returns the plugin owned by the given code unit.
func (r *Registry) GetByModule(module string) (Plugin, bool) {
	if module == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		rp := r.plugins[name]
		if rp.desc.Module == module {
			return rp.plugin, true
		}
	}
	return nil, false
}

// GetByType returns the first plugin whose concrete type, or whose root
// instance's type, is t.
func (r *Registry) GetByType(t reflect.Type) (Plugin, bool) {
	if t == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		rp := r.plugins[name]
		if reflect.TypeOf(rp.plugin) == t {
			return rp.plugin, true
		}
		if rp.desc.Instance != nil && reflect.TypeOf(rp.desc.Instance) == t {
			return rp.plugin, true
		}
	}
	return nil, false
}

// Find returns the registered plugin of type P.
func Find[P Plugin](r *Registry) (P, bool) {
	var zero P
	p, ok := r.GetByType(reflect.TypeFor[P]())
	if !ok {
		return zero, false
	}
	typed, ok := p.(P)
	return typed, ok
}

// Resolve maps a caller-supplied plugin to its registered entry. The caller
// must be the very instance that was registered under its name, and it must
// have been enabled.
func (r *Registry) Resolve(p Plugin) (Plugin, bool) {
	if p == nil {
		return nil, false
	}
	name := p.Describe().Name

	r.mu.RLock()
	rp, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok || rp.state != StateEnabled {
		return nil, false
	}
	if !sameInstance(rp.plugin, p) {
		return nil, false
	}
	return rp.plugin, true
}

func sameInstance(a, b Plugin) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// List returns all plugins in registration order.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.plugins[name].plugin)
	}
	return out
}

// Enabled returns the plugins that passed the version gate and enabled
// cleanly, in registration order.
func (r *Registry) Enabled() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		if rp := r.plugins[name]; rp.state == StateEnabled {
			out = append(out, rp.plugin)
		}
	}
	return out
}

// Names returns plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// State returns the lifecycle state of the named plugin.
func (r *Registry) State(name string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rp, ok := r.plugins[name]; ok {
		return rp.state
	}
	return StateUnknown
}

// Err returns the error that blocked or failed the named plugin.
func (r *Registry) Err(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rp, ok := r.plugins[name]; ok {
		return rp.err
	}
	return nil
}

// EnableAll runs the version gate for every registered plugin and calls
// OnEnabled on those that pass. Blocked plugins are logged as errors and
// never enabled; the remaining plugins are unaffected. Returns the number
// of plugins enabled by this call.
func (r *Registry) EnableAll(ctx context.Context, frameworkVersion string) int {
	r.mu.RLock()
	pending := make([]*registeredPlugin, 0, len(r.order))
	for _, name := range r.order {
		if rp := r.plugins[name]; rp.state == StateRegistered {
			pending = append(pending, rp)
		}
	}
	r.mu.RUnlock()

	enabled := 0
	for _, rp := range pending {
		state, err := r.enable(ctx, rp, frameworkVersion)

		r.mu.Lock()
		rp.state = state
		rp.err = err
		r.mu.Unlock()

		if state == StateEnabled {
			enabled++
		}
	}
	return enabled
}

func (r *Registry) enable(ctx context.Context, rp *registeredPlugin, frameworkVersion string) (state State, err error) {
	name := rp.desc.Name
	if err := version.Check(rp.desc.RequiredFrameworkVersion, frameworkVersion); err != nil {
		logBlocked(r.logger, rp.desc, frameworkVersion, err)
		globalRegistryMetrics().blocked.Inc()
		return StateBlocked, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %q panicked in OnEnabled: %v", name, rec)
			r.logger.Error("plugin failed to enable", "plugin", name, "error", err)
			state = StateFailed
		}
	}()

	if err := rp.plugin.OnEnabled(ctx); err != nil {
		r.logger.Error("plugin failed to enable", "plugin", name, "error", err)
		return StateFailed, fmt.Errorf("plugin %q enable failed: %w", name, err)
	}
	r.logger.Debug("plugin enabled", "plugin", name)
	return StateEnabled, nil
}

func logBlocked(logger *slog.Logger, desc Descriptor, frameworkVersion string, err error) {
	switch {
	case errors.Is(err, version.ErrFrameworkOutdated):
		logger.Error("framework is outdated for plugin, update the framework",
			"plugin", desc.Name, "required", desc.RequiredFrameworkVersion, "framework", frameworkVersion)
	case errors.Is(err, version.ErrPluginOutdated):
		logger.Error("plugin is outdated for this framework, update the plugin",
			"plugin", desc.Name, "required", desc.RequiredFrameworkVersion, "framework", frameworkVersion)
	default:
		logger.Error("plugin has an unusable version requirement",
			"plugin", desc.Name, "required", desc.RequiredFrameworkVersion, "error", err)
	}
}
