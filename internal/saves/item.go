package saves

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/goatkit/moddata/internal/collection"
)

// Item is one persisted value. Prefix is unique within its collection; Type
// records the Go type the value was written from so that readers can detect
// a mismatch before decoding.
type Item struct {
	Key   string          `json:"prefix"`
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// Prefix implements collection.Prefixed.
func (i Item) Prefix() string { return i.Key }

// NewItem encodes v under prefix.
func NewItem(prefix string, v any) (Item, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Item{}, fmt.Errorf("encode %q: %w", prefix, err)
	}
	return Item{Key: prefix, Type: fmt.Sprintf("%T", v), Value: raw}, nil
}

// Decode unmarshals the stored value into v.
func (i Item) Decode(v any) error {
	if len(i.Value) == 0 {
		return fmt.Errorf("decode %q: empty value", i.Key)
	}
	if err := json.Unmarshal(i.Value, v); err != nil {
		return fmt.Errorf("decode %q: %w", i.Key, err)
	}
	return nil
}

// ItemCollection holds the persisted entries of one plugin in one scope.
// It is lockable: once loaded from disk, structural additions through the
// collection API are rejected.
type ItemCollection struct {
	mu    sync.RWMutex
	items *collection.Collection[Item]
}

// NewItemCollection creates an unlocked collection.
func NewItemCollection(items ...Item) *ItemCollection {
	return &ItemCollection{items: collection.New(true, items...)}
}

func (c *ItemCollection) current() *collection.Collection[Item] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

// Get returns the item stored under prefix.
func (c *ItemCollection) Get(prefix string) (Item, bool) { return c.current().Get(prefix) }

// Set inserts or overwrites an item. No-op on a loaded collection.
func (c *ItemCollection) Set(prefix string, item Item) bool {
	item.Key = prefix
	return c.current().Set(prefix, item)
}

// TryAdd inserts item if its prefix is free and the collection is unlocked.
func (c *ItemCollection) TryAdd(item Item) collection.AddResult { return c.current().TryAdd(item) }

// GetOrAdd returns the existing item or stores fallback. Fails with
// collection.ErrLocked on a loaded collection.
func (c *ItemCollection) GetOrAdd(prefix string, fallback Item) (Item, error) {
	fallback.Key = prefix
	return c.current().GetOrAdd(prefix, fallback)
}

// ModifyOrAdd replaces or stores item. Fails with collection.ErrLocked on a
// loaded collection.
func (c *ItemCollection) ModifyOrAdd(prefix string, item Item) (Item, error) {
	item.Key = prefix
	return c.current().ModifyOrAdd(prefix, item)
}

// SetValue encodes v and stores it under prefix.
func (c *ItemCollection) SetValue(prefix string, v any) (bool, error) {
	item, err := NewItem(prefix, v)
	if err != nil {
		return false, err
	}
	return c.Set(prefix, item), nil
}

// Len returns the number of entries.
func (c *ItemCollection) Len() int { return c.current().Len() }

// Loaded reports whether the collection was hydrated from disk.
func (c *ItemCollection) Loaded() bool { return c.current().Loaded() }

// MarkLoaded locks the collection against structural changes.
func (c *ItemCollection) MarkLoaded() { c.current().MarkLoaded() }

// List returns the entries in order. Never nil.
func (c *ItemCollection) List() []Item {
	items := c.current().Items()
	if items == nil {
		items = []Item{}
	}
	return items
}

// ValueOf decodes the value stored under prefix into a T.
func ValueOf[T any](c *ItemCollection, prefix string) (T, bool, error) {
	var v T
	item, ok := c.Get(prefix)
	if !ok {
		return v, false, nil
	}
	if err := item.Decode(&v); err != nil {
		return v, true, err
	}
	return v, true, nil
}

// capture writes the current value of every binding accepted by include into
// the collection. Entries without a binding, and bound entries that include
// rejects, keep their stored value. The loaded flag is preserved; this is
// the manager's value update, not a structural edit by plugin code.
func (c *ItemCollection) capture(bindings []Binding, include func(Binding) bool) error {
	fresh := make(map[string]Item, len(bindings))
	var firstErr error
	for _, b := range bindings {
		if include != nil && !include(b) {
			continue
		}
		item, err := b.item()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fresh[b.Name] = item
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.items
	next := collection.New[Item](true)
	for _, item := range old.Items() {
		if updated, ok := fresh[item.Key]; ok {
			next.TryAdd(updated)
			delete(fresh, item.Key)
			continue
		}
		next.TryAdd(item)
	}
	for _, b := range bindings {
		if item, ok := fresh[b.Name]; ok {
			next.TryAdd(item)
		}
	}
	if old.Loaded() {
		next.MarkLoaded()
	}
	c.items = next
	return firstErr
}
