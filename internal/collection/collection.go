// Package collection provides a prefix-keyed container with a one-way lock.
//
// A Collection keeps items addressable by a unique string prefix. Lockable
// collections reject structural changes once MarkLoaded has been called;
// there is no way to unlock them again.
package collection

import (
	"errors"
	"sync"
)

// ErrLocked is returned when a caller that needs a usable value back tries to
// change a lockable collection after it has been loaded.
var ErrLocked = errors.New("collection: locked and can no longer be modified")

// ErrInvalidPrefix is returned when an item is stored under an empty prefix.
var ErrInvalidPrefix = errors.New("collection: empty prefix")

// Prefixed is implemented by items stored in a Collection.
type Prefixed interface {
	Prefix() string
}

// AddResult reports the outcome of TryAdd.
type AddResult int

const (
	Added AddResult = iota
	Duplicate
	Locked
	Invalid
)

// OK reports whether the item was inserted.
func (r AddResult) OK() bool { return r == Added }

func (r AddResult) String() string {
	switch r {
	case Added:
		return "added"
	case Duplicate:
		return "duplicate"
	case Locked:
		return "locked"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Collection maps unique prefixes to items. Insertion order is kept so that
// listings are stable, but it carries no meaning.
type Collection[T Prefixed] struct {
	mu       sync.RWMutex
	items    map[string]T
	order    []string
	lockable bool
	loaded   bool
}

// New creates a collection. Items with an empty or repeated prefix are skipped.
func New[T Prefixed](lockable bool, items ...T) *Collection[T] {
	c := &Collection[T]{
		items:    make(map[string]T, len(items)),
		lockable: lockable,
	}
	for _, item := range items {
		c.insert(item.Prefix(), item)
	}
	return c
}

func (c *Collection[T]) insert(prefix string, item T) bool {
	if prefix == "" {
		return false
	}
	if _, exists := c.items[prefix]; exists {
		return false
	}
	c.items[prefix] = item
	c.order = append(c.order, prefix)
	return true
}

func (c *Collection[T]) frozen() bool {
	return c.lockable && c.loaded
}

// Lockable reports whether MarkLoaded freezes the collection.
func (c *Collection[T]) Lockable() bool {
	return c.lockable
}

// Loaded reports whether MarkLoaded has been called.
func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// MarkLoaded is a one-way transition.
func (c *Collection[T]) MarkLoaded() {
	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Get returns the item stored under prefix.
func (c *Collection[T]) Get(prefix string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[prefix]
	return item, ok
}

// Set inserts or overwrites the item under prefix. It is a no-op returning
// false on a loaded lockable collection or for an empty prefix.
func (c *Collection[T]) Set(prefix string, item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == "" || c.frozen() {
		return false
	}
	if _, exists := c.items[prefix]; exists {
		c.items[prefix] = item
		return true
	}
	return c.insert(prefix, item)
}

// TryAdd inserts item under its own prefix. It never overwrites.
func (c *Collection[T]) TryAdd(item T) AddResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen() {
		return Locked
	}
	prefix := item.Prefix()
	if prefix == "" {
		return Invalid
	}
	if _, exists := c.items[prefix]; exists {
		return Duplicate
	}
	c.insert(prefix, item)
	return Added
}

// GetOrAdd returns the existing item under prefix, or stores and returns
// fallback. Adding to a loaded lockable collection fails with ErrLocked.
func (c *Collection[T]) GetOrAdd(prefix string, fallback T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[prefix]; ok {
		return item, nil
	}
	var zero T
	if c.frozen() {
		return zero, ErrLocked
	}
	if !c.insert(prefix, fallback) {
		return zero, ErrInvalidPrefix
	}
	return fallback, nil
}

// ModifyOrAdd stores item under prefix, replacing any existing item.
func (c *Collection[T]) ModifyOrAdd(prefix string, item T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.frozen() {
		return zero, ErrLocked
	}
	if prefix == "" {
		return zero, ErrInvalidPrefix
	}
	if _, exists := c.items[prefix]; exists {
		c.items[prefix] = item
		return item, nil
	}
	c.insert(prefix, item)
	return item, nil
}

// Items returns the items in insertion order.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, 0, len(c.order))
	for _, prefix := range c.order {
		out = append(out, c.items[prefix])
	}
	return out
}

// Prefixes returns the prefixes in insertion order.
func (c *Collection[T]) Prefixes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Clear removes every item regardless of lock state. It exists for owners
// that drain a working set, not for general callers.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]T)
	c.order = nil
}
