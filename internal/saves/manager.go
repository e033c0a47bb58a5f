// Package saves persists plugin data next to the host game's save files.
//
// Every plugin owns one ItemCollection per scope. Local collections follow
// the save slot the player selected; global collections are shared. A
// Manager owns both scope maps, hydrates them from disk when the host loads
// a save, and writes a whole scope back to disk whenever one plugin saves.
//
// Disk and decoding failures are logged and recovered from. They never
// reach the caller: a broken mod save must not take the game down.
package saves

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/goatkit/moddata/pkg/plugin"
)

// ErrNotPlugin is returned by the context-scoped entry points when the
// context does not carry an enabled plugin.
var ErrNotPlugin = errors.New("saves: only framework plugins can load and save data")

// ErrNoHandler is returned by LoadFromFile and LoadFromGlobalFile when the
// calling plugin has no save handler for the scope. Its collection is still
// loaded.
var ErrNoHandler = errors.New("saves: plugin has no save handler for scope")

// Registry is the part of the plugin registry the manager reads. Only
// enabled plugins take part in whole-scope passes or may act as callers.
type Registry interface {
	Get(name string) (plugin.Plugin, bool)
	Resolve(p plugin.Plugin) (plugin.Plugin, bool)
	Enabled() []plugin.Plugin
}

// Manager owns the global and local scope maps.
type Manager struct {
	dir      string
	registry Registry
	slot     SlotSource
	logger   *slog.Logger
	metrics  *saveMetrics
	scopes   [2]*scopeState

	// selected is the slot named by the last host event. It backs the
	// default SlotSource.
	selected atomic.Int32
}

type scopeState struct {
	scope    Scope
	mu       sync.Mutex
	saves    map[string]*ItemCollection
	hydrated bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSlotSource sets how the active local slot is determined. Without it,
// the slot follows the save names of handled host events.
func WithSlotSource(s SlotSource) Option {
	return func(m *Manager) {
		if s != nil {
			m.slot = s
		}
	}
}

// NewManager creates a manager storing files under dir.
func NewManager(dir string, registry Registry, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		registry: registry,
		logger:   slog.Default(),
		metrics:  globalSaveMetrics(),
	}
	m.selected.Store(int32(Slot1))
	m.slot = func() Slot { return Slot(m.selected.Load()) }
	for _, opt := range opts {
		opt(m)
	}
	for _, scope := range []Scope{Local, Global} {
		m.scopes[scope] = &scopeState{scope: scope, saves: make(map[string]*ItemCollection)}
	}
	return m
}

func (m *Manager) state(scope Scope) *scopeState {
	if scope == Global {
		return m.scopes[Global]
	}
	return m.scopes[Local]
}

// Hydrated reports whether scope has been read from disk at least once.
// Until then, writing the scope would replace the file with defaults.
func (m *Manager) Hydrated(scope Scope) bool {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.hydrated
}

// Dir returns the directory holding the modded save files.
func (m *Manager) Dir() string { return m.dir }

// ActiveSlot returns the slot local data currently belongs to.
func (m *Manager) ActiveSlot() Slot {
	s := m.slot()
	if s == SlotGlobal {
		return Slot1
	}
	return s
}

// Path returns the file backing scope.
func (m *Manager) Path(scope Scope) string {
	if scope == Global {
		return filepath.Join(m.dir, SlotGlobal.FileName())
	}
	return filepath.Join(m.dir, m.ActiveSlot().FileName())
}

// SlotPath returns the file backing slot.
func (m *Manager) SlotPath(slot Slot) string {
	return filepath.Join(m.dir, slot.FileName())
}

func handlerFor(p plugin.Plugin, scope Scope) *Handler {
	switch scope {
	case Global:
		if s, ok := p.(GlobalSaver); ok {
			return s.GlobalSaveHandler()
		}
	default:
		if s, ok := p.(LocalSaver); ok {
			return s.LocalSaveHandler()
		}
	}
	return nil
}

// Collection returns the in-memory collection of p in scope.
func (m *Manager) Collection(p plugin.Plugin, scope Scope) (*ItemCollection, bool) {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	c, ok := st.saves[p.Describe().Name]
	return c, ok
}

// Snapshot returns the in-memory scope in its on-disk shape.
func (m *Manager) Snapshot(scope Scope) File {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.file()
}

func (st *scopeState) file() File {
	f := make(File, len(st.saves))
	for name, c := range st.saves {
		f[name] = c.List()
	}
	return f
}

// LoadData makes sure p has a collection in scope, generating one if
// needed, and binds it to the plugin's save handler.
func (m *Manager) LoadData(p plugin.Plugin, scope Scope) *ItemCollection {
	m.logger.Debug("loading data for plugin", "plugin", p.Describe().Name, "scope", scope)

	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.loadLocked(st, p)
}

func (m *Manager) loadLocked(st *scopeState, p plugin.Plugin) *ItemCollection {
	c, ok := st.saves[p.Describe().Name]
	if !ok {
		return m.generateLocked(st, p)
	}
	if h := handlerFor(p, st.scope); h != nil {
		h.bind(c)
	}
	return c
}

// generateLocked creates an empty collection for p. If p has a handler, a
// fresh save object is constructed and its default values captured.
func (m *Manager) generateLocked(st *scopeState, p plugin.Plugin) *ItemCollection {
	name := p.Describe().Name
	m.logger.Debug("generating new plugin data", "plugin", name, "scope", st.scope)

	c := NewItemCollection()
	if h := handlerFor(p, st.scope); h != nil {
		if _, bindings, ok := m.constructLocked(st, p, h); ok {
			if err := c.capture(bindings, nil); err != nil {
				m.logger.Warn("could not capture default save values", "plugin", name, "scope", st.scope, "error", err)
			}
		}
		h.bind(c)
	}
	st.saves[name] = c
	return c
}

// constructLocked builds a new save object for h. On failure the handler is
// left without an instance.
func (m *Manager) constructLocked(st *scopeState, p plugin.Plugin, h *Handler) (any, []Binding, bool) {
	inst, bindings, err := h.construct()
	if err != nil {
		m.logger.Error("could not create an instance of the save data, this is probably due to an invalid type",
			"plugin", p.Describe().Name, "scope", st.scope, "type", h.TypeName())
		m.logger.Debug("save data construction failure", "plugin", p.Describe().Name, "error", err)
		h.setInstance(nil, nil)
		return nil, nil, false
	}
	m.attach(p, st.scope, bindings)
	h.setInstance(inst, bindings)
	return inst, bindings, true
}

// attach wires Tracked values that save on change back to the manager.
func (m *Manager) attach(p plugin.Plugin, scope Scope, bindings []Binding) {
	for _, b := range bindings {
		if b.tracker == nil {
			continue
		}
		if b.AutoSave != OnItemChanged {
			b.tracker.observe(nil)
			continue
		}
		b.tracker.observe(func() { m.SaveData(p, scope) })
	}
}

// hydrateLocked binds c to p's handler and writes stored values into the
// live save object. include selects which bindings are applied; nil applies
// all of them.
func (m *Manager) hydrateLocked(st *scopeState, p plugin.Plugin, c *ItemCollection, include func(Binding) bool) {
	h := handlerFor(p, st.scope)
	if h == nil {
		return
	}
	h.bind(c)

	inst, bindings := h.live()
	if inst == nil {
		var ok bool
		if _, bindings, ok = m.constructLocked(st, p, h); !ok {
			return
		}
	}
	m.applyLocked(p, c, bindings, include)
}

func (m *Manager) applyLocked(p plugin.Plugin, c *ItemCollection, bindings []Binding, include func(Binding) bool) {
	for _, b := range bindings {
		if include != nil && !include(b) {
			continue
		}
		item, ok := c.Get(b.Name)
		if !ok {
			continue
		}
		if err := b.apply(item); err != nil {
			m.logger.Warn("could not load saved value", "plugin", p.Describe().Name, "prefix", b.Name, "error", err)
		}
	}
}

func autoLoadOnly(b Binding) bool { return b.AutoLoad }

func autoSaveOnGameSave(b Binding) bool { return b.AutoSave != Manual }

func trackedOnGameSave(b Binding) bool { return b.tracker != nil && autoSaveOnGameSave(b) }

// SaveData captures p's live save object into its collection, stores the
// collection in scope, and writes the whole scope to disk.
func (m *Manager) SaveData(p plugin.Plugin, scope Scope) {
	m.logger.Debug("saving data for plugin", "plugin", p.Describe().Name, "scope", scope)

	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	m.saveLocked(st, p)
}

func (m *Manager) saveLocked(st *scopeState, p plugin.Plugin) {
	name := p.Describe().Name
	c, ok := st.saves[name]
	if !ok {
		c = m.generateLocked(st, p)
	}
	if h := handlerFor(p, st.scope); h != nil {
		if inst, bindings := h.live(); inst != nil {
			if err := c.capture(bindings, nil); err != nil {
				m.logger.Warn("could not capture save values", "plugin", name, "scope", st.scope, "error", err)
			}
		}
		h.bind(c)
	}
	st.saves[name] = c
	m.serializeLocked(st)
}

// UpdateAll captures every plugin's live save object into its collection.
// Bindings in Manual mode keep their last saved value. Plain fields are read
// without synchronization, so call it from the goroutine that owns the save
// objects.
func (m *Manager) UpdateAll(scope Scope) {
	m.update(scope, autoSaveOnGameSave)
}

// UpdateTracked is UpdateAll restricted to Tracked values. Value guards its
// own reads, so this pass is safe from any goroutine.
func (m *Manager) UpdateTracked(scope Scope) {
	m.update(scope, trackedOnGameSave)
}

func (m *Manager) update(scope Scope, include func(Binding) bool) {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, p := range m.registry.Enabled() {
		h := handlerFor(p, scope)
		if h == nil {
			continue
		}
		inst, bindings := h.live()
		if inst == nil {
			continue
		}
		name := p.Describe().Name
		c, ok := st.saves[name]
		if !ok {
			continue
		}
		if err := c.capture(bindings, include); err != nil {
			m.logger.Warn("could not capture save values", "plugin", name, "scope", scope, "error", err)
		}
	}
}

// Serialize writes every collection of scope to its file. Failures are
// logged; the in-memory state stays authoritative until the next write.
func (m *Manager) Serialize(scope Scope) {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	m.serializeLocked(st)
}

func (m *Manager) serializeLocked(st *scopeState) {
	path := m.Path(st.scope)
	m.logger.Debug("saving all plugin data", "scope", st.scope, "path", path)

	data, err := Encode(st.file())
	if err != nil {
		m.logger.Error("could not encode save data", "scope", st.scope, "error", err)
		return
	}
	if err := WriteFile(path, data); err != nil {
		m.logger.Error("could not save to file", "scope", st.scope, "path", path)
		m.logger.Debug("save write failure", "path", path, "error", err)
		m.metrics.writeFailures.WithLabelValues(st.scope.String()).Inc()
		return
	}
	m.metrics.serialized.WithLabelValues(st.scope.String()).Inc()
}

// Deserialize replaces the in-memory scope with the contents of its file.
// Enabled plugins missing from the file get fresh collections, and the
// file is rewritten so it matches the installed plugin set. A file that
// cannot be parsed is deleted and regenerated.
func (m *Manager) Deserialize(scope Scope) {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	path := m.Path(scope)
	m.logger.Debug("loading all plugin data", "scope", scope, "path", path)

	data, err := os.ReadFile(path)
	missing := errors.Is(err, fs.ErrNotExist)
	if err != nil && !missing {
		// Only content that was read and rejected counts as corruption.
		m.logger.Error("could not read save file, keeping it and skipping the load", "scope", scope, "path", path)
		m.logger.Debug("save read failure", "path", path, "error", err)
		m.metrics.readFailures.WithLabelValues(scope.String()).Inc()
		return
	}

	st.hydrated = true
	file, err := Decode(data)
	if err != nil {
		m.recoverLocked(st, path, missing, err)
		return
	}
	m.metrics.deserialized.WithLabelValues(scope.String()).Inc()

	st.saves = make(map[string]*ItemCollection, len(file))
	for name, items := range file {
		c := NewItemCollection(items...)
		c.MarkLoaded()
		st.saves[name] = c
	}

	changed := false
	for _, p := range m.registry.Enabled() {
		name := p.Describe().Name
		if c, ok := st.saves[name]; ok {
			m.hydrateLocked(st, p, c, autoLoadOnly)
			continue
		}
		m.generateLocked(st, p)
		changed = true
	}
	if changed {
		m.serializeLocked(st)
	}
}

// recoverLocked discards an unusable scope file and regenerates the data of
// every enabled plugin.
func (m *Manager) recoverLocked(st *scopeState, path string, missing bool, cause error) {
	st.saves = make(map[string]*ItemCollection)

	if missing {
		m.logger.Info("no modded save file yet, generating", "scope", st.scope, "path", path)
	} else {
		m.logger.Error("the save file has been corrupted and could not be loaded", "scope", st.scope, "path", path)
		m.logger.Debug("corrupted save file", "file", filepath.Base(path), "error", cause)
		m.metrics.recoveries.WithLabelValues(st.scope.String()).Inc()

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("could not delete the save file", "path", path)
			m.logger.Debug("save delete failure", "path", path, "error", err)
		}
	}

	for _, p := range m.registry.Enabled() {
		m.generateLocked(st, p)
	}
	m.serializeLocked(st)
}

// Reset deletes the modded file of slot. In-memory data is left alone.
func (m *Manager) Reset(slot Slot) {
	path := m.SlotPath(slot)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("could not reset save file", "slot", slot, "path", path, "error", err)
		return
	}
	m.logger.Debug("reset modded save file", "slot", slot, "path", path)
}

// caller resolves the plugin carried by ctx.
func (m *Manager) caller(ctx context.Context) (plugin.Plugin, error) {
	if p, ok := plugin.CallerFrom(ctx); ok {
		if registered, ok := m.registry.Resolve(p); ok {
			return registered, nil
		}
	}
	m.logger.Warn("only framework plugins can load and save data")
	return nil, ErrNotPlugin
}

func (m *Manager) loadExplicit(ctx context.Context, scope Scope) error {
	p, err := m.caller(ctx)
	if err != nil {
		return err
	}
	m.logger.Debug("loading data for plugin", "plugin", p.Describe().Name, "scope", scope)

	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	c := m.loadLocked(st, p)
	if handlerFor(p, scope) == nil {
		return fmt.Errorf("%w %s", ErrNoHandler, scope)
	}
	m.hydrateLocked(st, p, c, nil)
	return nil
}

func (m *Manager) saveExplicit(ctx context.Context, scope Scope) error {
	p, err := m.caller(ctx)
	if err != nil {
		return err
	}
	m.SaveData(p, scope)
	return nil
}

// LoadFromFile loads the calling plugin's data from the active slot into
// its save object.
func (m *Manager) LoadFromFile(ctx context.Context) error {
	return m.loadExplicit(ctx, Local)
}

// LoadFromGlobalFile loads the calling plugin's global data.
func (m *Manager) LoadFromGlobalFile(ctx context.Context) error {
	return m.loadExplicit(ctx, Global)
}

// SaveToFile saves the calling plugin's data to the active slot.
func (m *Manager) SaveToFile(ctx context.Context) error {
	return m.saveExplicit(ctx, Local)
}

// SaveToGlobalFile saves the calling plugin's global data.
func (m *Manager) SaveToGlobalFile(ctx context.Context) error {
	return m.saveExplicit(ctx, Global)
}
