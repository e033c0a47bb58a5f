package saves

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goatkit/moddata/internal/collection"
	"github.com/goatkit/moddata/pkg/plugin"
)

// ErrReleased is returned by a ModifiableCollection after Release.
var ErrReleased = errors.New("saves: modifiable collection already released")

// ModifiableCollection is a write batch over one plugin's collection. It
// works on a copy that is never locked and touches disk exactly once, when
// it is released.
type ModifiableCollection struct {
	manager *Manager
	plugin  plugin.Plugin
	scope   Scope

	mu       sync.Mutex
	working  *collection.Collection[Item]
	released bool
	once     sync.Once
}

// Modifiable opens a write batch on the calling plugin's collection in
// scope. The caller must Release it; WithModifiable does that for you.
func (m *Manager) Modifiable(ctx context.Context, scope Scope) (*ModifiableCollection, error) {
	p, err := m.caller(ctx)
	if err != nil {
		return nil, err
	}
	return m.ModifiableFor(p, scope), nil
}

// ModifiableFor opens a write batch on p's collection in scope.
func (m *Manager) ModifiableFor(p plugin.Plugin, scope Scope) *ModifiableCollection {
	st := m.state(scope)
	st.mu.Lock()
	items := m.loadLocked(st, p).List()
	st.mu.Unlock()

	return &ModifiableCollection{
		manager: m,
		plugin:  p,
		scope:   scope,
		working: collection.New(false, items...),
	}
}

// WithModifiable runs fn on a write batch and releases it on every exit
// path, including a panic in fn.
func (m *Manager) WithModifiable(ctx context.Context, scope Scope, fn func(*ModifiableCollection) error) (err error) {
	mc, err := m.Modifiable(ctx, scope)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := mc.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(mc)
}

// Scope returns the scope the batch writes to.
func (mc *ModifiableCollection) Scope() Scope { return mc.scope }

func (mc *ModifiableCollection) open() (*collection.Collection[Item], bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.working, !mc.released
}

// Get returns the staged item stored under prefix.
func (mc *ModifiableCollection) Get(prefix string) (Item, bool) {
	w, ok := mc.open()
	if !ok {
		return Item{}, false
	}
	return w.Get(prefix)
}

// Set stages item under prefix. Returns false once released.
func (mc *ModifiableCollection) Set(prefix string, item Item) bool {
	w, ok := mc.open()
	if !ok {
		return false
	}
	item.Key = prefix
	return w.Set(prefix, item)
}

// SetValue encodes v and stages it under prefix.
func (mc *ModifiableCollection) SetValue(prefix string, v any) error {
	item, err := NewItem(prefix, v)
	if err != nil {
		return err
	}
	if !mc.Set(prefix, item) {
		return ErrReleased
	}
	return nil
}

// TryAdd stages item if its prefix is free.
func (mc *ModifiableCollection) TryAdd(item Item) collection.AddResult {
	w, ok := mc.open()
	if !ok {
		return collection.Locked
	}
	return w.TryAdd(item)
}

// GetOrAdd returns the staged item or stages fallback.
func (mc *ModifiableCollection) GetOrAdd(prefix string, fallback Item) (Item, error) {
	w, ok := mc.open()
	if !ok {
		return Item{}, ErrReleased
	}
	fallback.Key = prefix
	return w.GetOrAdd(prefix, fallback)
}

// ModifyOrAdd stages item, replacing any staged item under prefix.
func (mc *ModifiableCollection) ModifyOrAdd(prefix string, item Item) (Item, error) {
	w, ok := mc.open()
	if !ok {
		return Item{}, ErrReleased
	}
	item.Key = prefix
	return w.ModifyOrAdd(prefix, item)
}

// Items returns the staged items in order.
func (mc *ModifiableCollection) Items() []Item {
	w, ok := mc.open()
	if !ok {
		return nil
	}
	return w.Items()
}

// Len returns the number of staged items.
func (mc *ModifiableCollection) Len() int {
	w, ok := mc.open()
	if !ok {
		return 0
	}
	return w.Len()
}

// Release commits the staged items as the plugin's collection and saves
// the scope once. Calling it again returns ErrReleased.
func (mc *ModifiableCollection) Release() error {
	err := ErrReleased
	mc.once.Do(func() {
		mc.mu.Lock()
		items := mc.working.Items()
		mc.working.Clear()
		mc.released = true
		mc.mu.Unlock()

		mc.manager.commit(mc.plugin, mc.scope, items)
		err = nil
	})
	return err
}

// commit replaces p's collection with items, writes them into the live save
// object, and saves the scope.
func (m *Manager) commit(p plugin.Plugin, scope Scope, items []Item) {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	name := p.Describe().Name
	c := NewItemCollection(items...)
	st.saves[name] = c
	if h := handlerFor(p, scope); h != nil {
		h.bind(c)
		if inst, bindings := h.live(); inst != nil {
			m.applyLocked(p, c, bindings, nil)
		}
	}
	m.logger.Debug("committed modified plugin data", "plugin", name, "scope", scope, "items", len(items))
	m.saveLocked(st, p)
}

func (mc *ModifiableCollection) String() string {
	return fmt.Sprintf("modifiable(%s/%s)", mc.plugin.Describe().Name, mc.scope)
}
