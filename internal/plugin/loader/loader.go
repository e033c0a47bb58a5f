// Package loader discovers manifest-described plugins on disk and registers
// them with the plugin registry.
//
// A plugin directory contains one sub-directory per plugin, each holding a
// plugin.yaml manifest. Plugins found this way carry no framework code; they
// exist so the registry, version gate and save subsystem know about them.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/goatkit/moddata/internal/plugin"
	"github.com/goatkit/moddata/internal/plugin/version"
	pkgplugin "github.com/goatkit/moddata/pkg/plugin"
)

// ManifestFile is the file name looked up in every plugin directory.
const ManifestFile = "plugin.yaml"

// Validation errors.
var (
	ErrMissingName    = errors.New("manifest: name is required")
	ErrInvalidName    = errors.New("manifest: name must be alphanumeric with dots, dashes or underscores")
	ErrMissingVersion = errors.New("manifest: version is required")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// DiscoveredPlugin holds info about a manifest found on disk.
type DiscoveredPlugin struct {
	Name       string
	Path       string // full path to plugin.yaml
	Registered bool
	LoadedAt   time.Time
}

// Loader handles discovery and registration of manifest plugins.
type Loader struct {
	pluginDir string
	registry  *plugin.Registry
	logger    *slog.Logger

	mu         sync.RWMutex
	discovered map[string]*DiscoveredPlugin // manifest path -> info
	onRegister func(context.Context, plugin.Plugin)

	// Hot discovery
	watcher     *fsnotify.Watcher
	watchCtx    context.Context
	watchCancel context.CancelFunc
	watchMu     sync.Mutex
	debounce    map[string]*time.Timer
	delay       time.Duration
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnRegister sets a callback invoked for every plugin the loader adds to
// the registry after the initial load, e.g. to enable it and generate its
// save data.
func WithOnRegister(fn func(context.Context, plugin.Plugin)) LoaderOption {
	return func(l *Loader) {
		l.onRegister = fn
	}
}

// WithDebounce overrides the delay used to coalesce file system events.
func WithDebounce(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.delay = d
	}
}

// NewLoader creates a loader for the given directory.
func NewLoader(pluginDir string, registry *plugin.Registry, logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		pluginDir:  pluginDir,
		registry:   registry,
		logger:     logger,
		discovered: make(map[string]*DiscoveredPlugin),
		debounce:   make(map[string]*time.Timer),
		delay:      500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ManifestPlugin is a plugin known only through its manifest.
type ManifestPlugin struct {
	manifest pkgplugin.Manifest
	dir      string
	logger   *slog.Logger
}

// Describe implements plugin.Plugin.
func (p *ManifestPlugin) Describe() pkgplugin.Descriptor {
	d := p.manifest.Descriptor(p.dir)
	d.Instance = p
	return d
}

// OnEnabled implements plugin.Plugin.
func (p *ManifestPlugin) OnEnabled(ctx context.Context) error {
	p.logger.Debug("manifest plugin enabled", "plugin", p.manifest.Name)
	return nil
}

// Manifest returns the parsed manifest.
func (p *ManifestPlugin) Manifest() pkgplugin.Manifest {
	return p.manifest
}

// LoadManifest reads and validates a plugin manifest.
func LoadManifest(path string) (*pkgplugin.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m pkgplugin.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest's required fields.
func Validate(m *pkgplugin.Manifest) error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}
	if m.Version == "" {
		return ErrMissingVersion
	}
	if _, err := version.Major(m.Version); err != nil {
		return fmt.Errorf("manifest %s: %w", m.Name, err)
	}
	if !version.NoRequirement(m.RequiredFrameworkVersion) {
		if _, err := version.Major(m.RequiredFrameworkVersion); err != nil {
			return fmt.Errorf("manifest %s: required framework version: %w", m.Name, err)
		}
	}
	return nil
}

// LoadAll walks the plugin directory and registers every valid manifest.
// Returns the number of plugins registered and any errors encountered.
func (l *Loader) LoadAll(ctx context.Context) (int, []error) {
	if _, err := os.Stat(l.pluginDir); os.IsNotExist(err) {
		l.logger.Info("plugin directory does not exist, creating", "path", l.pluginDir)
		if err := os.MkdirAll(l.pluginDir, 0o755); err != nil {
			return 0, []error{fmt.Errorf("create plugin dir: %w", err)}
		}
		return 0, nil
	}

	var errs []error
	loaded := 0
	err := filepath.WalkDir(l.pluginDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != ManifestFile {
			return nil
		}
		ok, err := l.loadManifestPlugin(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", path, err))
		} else if ok {
			loaded++
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("walk plugin dir: %w", err))
	}
	return loaded, errs
}

// loadManifestPlugin registers the plugin described at path. A manifest that
// was already seen is skipped.
func (l *Loader) loadManifestPlugin(path string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d, seen := l.discovered[path]; seen && d.Registered {
		return false, nil
	}

	m, err := LoadManifest(path)
	if err != nil {
		return false, err
	}

	p := &ManifestPlugin{manifest: *m, dir: filepath.Dir(path), logger: l.logger}
	registered := l.registry.Register(p)
	l.discovered[path] = &DiscoveredPlugin{
		Name:       m.Name,
		Path:       path,
		Registered: registered,
		LoadedAt:   time.Now(),
	}
	if !registered {
		return false, nil
	}
	return true, nil
}

// DiscoveredPlugins returns info about every manifest seen so far.
func (l *Loader) DiscoveredPlugins() []*DiscoveredPlugin {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*DiscoveredPlugin, 0, len(l.discovered))
	for _, d := range l.discovered {
		result = append(result, d)
	}
	return result
}

// WatchDir watches the plugin directory and registers plugins whose
// manifests appear after startup. The registry never forgets a plugin, so
// modified or removed manifests only take effect after a restart.
func (l *Loader) WatchDir(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	l.watchMu.Lock()
	l.watcher = watcher
	l.watchCtx, l.watchCancel = context.WithCancel(ctx)
	l.watchMu.Unlock()

	if err := watcher.Add(l.pluginDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch plugin dir: %w", err)
	}
	_ = filepath.WalkDir(l.pluginDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		_ = watcher.Add(path)
		return nil
	})

	l.logger.Info("watching plugin directory", "path", l.pluginDir)

	go l.watchLoop(l.watchCtx, watcher)
	return nil
}

// StopWatch stops the file watcher.
func (l *Loader) StopWatch() {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	if l.watchCancel != nil {
		l.watchCancel()
	}
	if l.watcher != nil {
		l.watcher.Close()
		l.watcher = nil
	}
	for path, timer := range l.debounce {
		timer.Stop()
		delete(l.debounce, path)
	}
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			l.handleFSEvent(ctx, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFSEvent debounces events for directories and manifest files.
func (l *Loader) handleFSEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		if filepath.Base(event.Name) == ManifestFile {
			l.logger.Warn("plugin manifest removed or renamed, restart to apply", "path", event.Name)
		}
		return
	}

	l.watchMu.Lock()
	defer l.watchMu.Unlock()

	if timer, exists := l.debounce[event.Name]; exists {
		timer.Stop()
	}
	l.debounce[event.Name] = time.AfterFunc(l.delay, func() {
		l.processFileChange(ctx, event.Name)
	})
}

func (l *Loader) processFileChange(ctx context.Context, path string) {
	defer func() {
		l.watchMu.Lock()
		delete(l.debounce, path)
		l.watchMu.Unlock()
	}()
	if ctx.Err() != nil {
		return
	}

	manifest := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		l.watchMu.Lock()
		if l.watcher != nil {
			_ = l.watcher.Add(path)
		}
		l.watchMu.Unlock()
		manifest = filepath.Join(path, ManifestFile)
	}
	if filepath.Base(manifest) != ManifestFile {
		return
	}
	if _, err := os.Stat(manifest); err != nil {
		return
	}

	ok, err := l.loadManifestPlugin(manifest)
	if err != nil {
		l.logger.Error("failed to load new plugin", "path", manifest, "error", err)
		return
	}
	if !ok {
		return
	}

	l.mu.RLock()
	name := l.discovered[manifest].Name
	l.mu.RUnlock()
	l.logger.Info("new plugin detected", "plugin", name, "path", manifest)

	if l.onRegister != nil {
		if p, found := l.registry.Get(name); found {
			l.onRegister(ctx, p)
		}
	}
}
