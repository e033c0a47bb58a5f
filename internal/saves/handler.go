package saves

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrConstruct is reported when a plugin's save object cannot be created.
var ErrConstruct = errors.New("saves: could not create save data instance")

// GlobalSaver is implemented by plugins that keep data in the global slot.
type GlobalSaver interface {
	GlobalSaveHandler() *Handler
}

// LocalSaver is implemented by plugins that keep data in the active slot.
type LocalSaver interface {
	LocalSaveHandler() *Handler
}

// Defaulter lets a save object fill in defaults after construction.
type Defaulter interface {
	Defaults()
}

// Handler is a plugin's save slot for one scope: the collection currently
// bound to it, and the live save object whose fields are bound to entries.
type Handler struct {
	mu         sync.RWMutex
	collection *ItemCollection
	instance   any
	bindings   []Binding
	typeName   string
	construct  func() (any, []Binding, error)
}

// NewHandler creates a handler for save objects of type T. schema lists
// the bindings of a given instance; it is called once per constructed
// instance.
func NewHandler[T any](schema func(*T) []Binding) (*Handler, error) {
	return NewHandlerFunc(func() (*T, error) { return new(T), nil }, schema)
}

// NewHandlerFunc is NewHandler with a custom constructor.
func NewHandlerFunc[T any](factory func() (*T, error), schema func(*T) []Binding) (*Handler, error) {
	if factory == nil || schema == nil {
		return nil, fmt.Errorf("%w: factory and schema are required", ErrInvalidBinding)
	}
	if err := validateBindings(schema(new(T))); err != nil {
		return nil, err
	}

	h := &Handler{typeName: reflect.TypeFor[T]().String()}
	h.construct = func() (inst any, bindings []Binding, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("%w %s: %v", ErrConstruct, h.typeName, rec)
			}
		}()
		v, err := factory()
		if err != nil {
			return nil, nil, fmt.Errorf("%w %s: %w", ErrConstruct, h.typeName, err)
		}
		if v == nil {
			return nil, nil, fmt.Errorf("%w %s: constructor returned nil", ErrConstruct, h.typeName)
		}
		bindings = schema(v)
		if err := validateBindings(bindings); err != nil {
			return nil, nil, err
		}
		// A reused instance may still carry observers from an earlier
		// generation. Defaults runs while the manager holds the scope lock.
		for _, b := range bindings {
			if b.tracker != nil {
				b.tracker.observe(nil)
			}
		}
		if d, ok := any(v).(Defaulter); ok {
			d.Defaults()
		}
		return v, bindings, nil
	}
	return h, nil
}

// MustHandler panics if err is not nil. Intended for package-level plugin
// setup where a bad schema is a programming error.
func MustHandler(h *Handler, err error) *Handler {
	if err != nil {
		panic(err)
	}
	return h
}

// Collection returns the collection currently bound to the handler. It is
// nil until the save manager has loaded or generated data.
func (h *Handler) Collection() *ItemCollection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.collection
}

// Instance returns the live save object, or nil when none could be built.
func (h *Handler) Instance() any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.instance
}

// Bindings returns the bindings of the live save object.
func (h *Handler) Bindings() []Binding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Binding(nil), h.bindings...)
}

// TypeName returns the save object's type name.
func (h *Handler) TypeName() string { return h.typeName }

// InstanceOf returns the handler's live save object as a *T.
func InstanceOf[T any](h *Handler) (*T, bool) {
	if h == nil {
		return nil, false
	}
	v, ok := h.Instance().(*T)
	return v, ok && v != nil
}

func (h *Handler) bind(c *ItemCollection) {
	h.mu.Lock()
	h.collection = c
	h.mu.Unlock()
}

func (h *Handler) setInstance(inst any, bindings []Binding) {
	h.mu.Lock()
	h.instance = inst
	h.bindings = bindings
	h.mu.Unlock()
}

func (h *Handler) live() (any, []Binding) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.instance, h.bindings
}
