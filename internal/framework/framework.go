// Package framework wires configuration, logging, the plugin registry, the
// manifest loader and the save manager into one running instance.
package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/goatkit/moddata/internal/config"
	"github.com/goatkit/moddata/internal/plugin"
	"github.com/goatkit/moddata/internal/plugin/loader"
	"github.com/goatkit/moddata/internal/saves"
	pkgplugin "github.com/goatkit/moddata/pkg/plugin"
)

// ErrStarted is returned by Start when the framework is already running.
var ErrStarted = errors.New("framework: already started")

const logBufferSize = 1000

type options struct {
	logOutput io.Writer
	slot      saves.SlotSource
	plugins   []pkgplugin.Plugin
	autosave  []AutosaveOption
}

// Option configures a Framework.
type Option func(*options)

// WithLogOutput sets where log records are written. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.logOutput = w
		}
	}
}

// WithSlotSource lets the host report the active save slot directly instead
// of deriving it from save events.
func WithSlotSource(s saves.SlotSource) Option {
	return func(o *options) {
		o.slot = s
	}
}

// WithPlugins registers in-process plugins before manifests are loaded.
func WithPlugins(plugins ...pkgplugin.Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugins...)
	}
}

// WithAutosaveOptions passes options to the periodic autosave.
func WithAutosaveOptions(opts ...AutosaveOption) Option {
	return func(o *options) {
		o.autosave = append(o.autosave, opts...)
	}
}

// Framework is the running core.
type Framework struct {
	cfg      *config.Config
	logger   *slog.Logger
	logs     *plugin.LogBuffer
	registry *plugin.Registry
	loader   *loader.Loader
	saves    *saves.Manager
	autosave *Autosave

	mu      sync.Mutex
	started bool
}

// NewLogger builds the framework logger. Every record is also kept in buf
// so it can be queried per plugin.
func NewLogger(cfg *config.Config, w io.Writer, buf *plugin.LogBuffer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var next slog.Handler
	if cfg.LogFormat == "json" {
		next = slog.NewJSONHandler(w, hopts)
	} else {
		next = slog.NewTextHandler(w, hopts)
	}
	return slog.New(plugin.NewBufferHandler(buf, next, level))
}

// New assembles a framework from cfg. Nothing touches disk until Start.
func New(cfg *config.Config, opts ...Option) (*Framework, error) {
	if cfg == nil {
		return nil, errors.New("framework: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logs := plugin.NewLogBuffer(logBufferSize)
	logger := NewLogger(cfg, o.logOutput, logs)

	f := &Framework{
		cfg:      cfg,
		logger:   logger,
		logs:     logs,
		registry: plugin.NewRegistry(logger),
	}
	for _, p := range o.plugins {
		f.registry.Register(p)
	}

	managerOpts := []saves.Option{saves.WithLogger(logger)}
	if o.slot != nil {
		managerOpts = append(managerOpts, saves.WithSlotSource(o.slot))
	}
	f.saves = saves.NewManager(cfg.SaveDir, f.registry, managerOpts...)
	f.loader = loader.NewLoader(cfg.PluginDir, f.registry, logger, loader.WithOnRegister(f.enableLate))

	if cfg.AutosaveSchedule != "" {
		a, err := NewAutosave(f.saves, cfg.AutosaveSchedule, logger, o.autosave...)
		if err != nil {
			return nil, fmt.Errorf("framework: %w", err)
		}
		f.autosave = a
	}
	return f, nil
}

// Config returns the resolved configuration.
func (f *Framework) Config() *config.Config { return f.cfg }

// Logger returns the framework logger.
func (f *Framework) Logger() *slog.Logger { return f.logger }

// Logs returns the in-memory log buffer.
func (f *Framework) Logs() *plugin.LogBuffer { return f.logs }

// Registry returns the plugin registry.
func (f *Framework) Registry() *plugin.Registry { return f.registry }

// Loader returns the manifest loader.
func (f *Framework) Loader() *loader.Loader { return f.loader }

// Saves returns the save manager.
func (f *Framework) Saves() *saves.Manager { return f.saves }

func (f *Framework) running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Start loads manifests, enables every plugin the version gate allows, and
// prepares their save data. Saves are read from disk when the host raises
// its loading events.
func (f *Framework) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrStarted
	}
	f.started = true
	f.mu.Unlock()

	discovered, errs := f.loader.LoadAll(ctx)
	for _, err := range errs {
		f.logger.Warn("could not load plugin manifest", "error", err)
	}

	enabled := f.registry.EnableAll(ctx, f.cfg.FrameworkVersion)
	f.logger.Info("plugins enabled",
		"registered", f.registry.Len(), "from_manifests", discovered, "enabled", enabled)

	for _, p := range f.registry.List() {
		f.prepare(p)
	}

	if f.cfg.WatchPlugins {
		if err := f.loader.WatchDir(ctx); err != nil {
			f.logger.Warn("could not watch plugin directory", "path", f.cfg.PluginDir, "error", err)
		}
	}
	if f.autosave != nil {
		f.autosave.Start()
	}
	return nil
}

// Register adds an in-process plugin. After Start it is enabled right away.
func (f *Framework) Register(ctx context.Context, p pkgplugin.Plugin) bool {
	if !f.registry.Register(p) {
		return false
	}
	if f.running() {
		f.enableLate(ctx, p)
	}
	return true
}

// enableLate handles plugins that appear after Start.
func (f *Framework) enableLate(ctx context.Context, p pkgplugin.Plugin) {
	f.registry.EnableAll(ctx, f.cfg.FrameworkVersion)
	f.prepare(p)
}

// prepare generates save data for an enabled plugin in both scopes.
func (f *Framework) prepare(p pkgplugin.Plugin) {
	if f.registry.State(p.Describe().Name) != plugin.StateEnabled {
		return
	}
	f.saves.LoadData(p, saves.Global)
	f.saves.LoadData(p, saves.Local)
}

// HandleLoading forwards a host loading event to the save manager.
func (f *Framework) HandleLoading(ev saves.LoadingEvent) { f.saves.HandleLoading(ev) }

// HandleSaving forwards a host saving event to the save manager.
func (f *Framework) HandleSaving(ev saves.SavingEvent) { f.saves.HandleSaving(ev) }

// HandleReset forwards a host reset event to the save manager.
func (f *Framework) HandleReset(ev saves.ResetEvent) { f.saves.HandleReset(ev) }

// Close stops the watcher and the autosave. It does not write saves.
func (f *Framework) Close() error {
	f.loader.StopWatch()
	if f.autosave != nil {
		f.autosave.Stop()
	}
	return nil
}
