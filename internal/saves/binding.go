package saves

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// AutoSaveMode controls when a bound value is written back automatically.
type AutoSaveMode int

const (
	// OnItemChanged saves whenever the value changes. Only Tracked values
	// can observe their own changes.
	OnItemChanged AutoSaveMode = iota
	// OnGameSave saves whenever the host game saves.
	OnGameSave
	// Manual saves only through an explicit SaveToFile call.
	Manual
)

func (m AutoSaveMode) String() string {
	switch m {
	case OnItemChanged:
		return "item-changed"
	case OnGameSave:
		return "game-saved"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

var (
	ErrDuplicateBinding = errors.New("saves: field bound more than once")
	ErrInvalidBinding   = errors.New("saves: invalid binding")
	ErrTypeMismatch     = errors.New("saves: stored type does not match binding")
)

// Binding ties one value of a plugin's save object to a persisted entry.
// Build them with Field or Tracked.
type Binding struct {
	Name     string
	TypeName string
	AutoLoad bool
	AutoSave AutoSaveMode

	target  any
	get     func() any
	set     func(json.RawMessage) error
	tracker tracker
}

// BindOption adjusts a binding.
type BindOption func(*Binding)

// WithAutoLoad sets whether stored data is written into the value when the
// host loads a save.
func WithAutoLoad(enabled bool) BindOption {
	return func(b *Binding) { b.AutoLoad = enabled }
}

// WithAutoSave sets the auto-save mode.
func WithAutoSave(mode AutoSaveMode) BindOption {
	return func(b *Binding) { b.AutoSave = mode }
}

// Field binds a plain field. It auto-loads and saves with the game unless
// options say otherwise.
func Field[T any](name string, ptr *T, opts ...BindOption) Binding {
	b := Binding{
		Name:     name,
		TypeName: reflect.TypeFor[T]().String(),
		AutoLoad: true,
		AutoSave: OnGameSave,
		target:   ptr,
	}
	if ptr != nil {
		b.get = func() any { return *ptr }
		b.set = func(raw json.RawMessage) error {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*ptr = v
			return nil
		}
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// Tracked binds a Value. By default it auto-loads and saves on every Set.
func Tracked[T any](name string, v *Value[T], opts ...BindOption) Binding {
	b := Binding{
		Name:     name,
		TypeName: reflect.TypeFor[T]().String(),
		AutoLoad: true,
		AutoSave: OnItemChanged,
		target:   v,
	}
	if v != nil {
		b.get = func() any { return v.Get() }
		b.set = func(raw json.RawMessage) error {
			var x T
			if err := json.Unmarshal(raw, &x); err != nil {
				return err
			}
			v.load(x)
			return nil
		}
		b.tracker = v
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// item encodes the binding's current value.
func (b Binding) item() (Item, error) {
	raw, err := json.Marshal(b.get())
	if err != nil {
		return Item{}, fmt.Errorf("encode %q: %w", b.Name, err)
	}
	return Item{Key: b.Name, Type: b.TypeName, Value: raw}, nil
}

// apply writes a stored item into the bound value without triggering
// change notifications.
func (b Binding) apply(item Item) error {
	if item.Type != "" && b.TypeName != "" && item.Type != b.TypeName {
		return fmt.Errorf("%w: %q stored as %s, bound as %s", ErrTypeMismatch, b.Name, item.Type, b.TypeName)
	}
	if err := b.set(item.Value); err != nil {
		return fmt.Errorf("decode %q: %w", b.Name, err)
	}
	return nil
}

func validateBindings(bindings []Binding) error {
	names := make(map[string]struct{}, len(bindings))
	targets := make(map[any]string, len(bindings))
	for _, b := range bindings {
		if b.Name == "" || b.target == nil || b.get == nil {
			return fmt.Errorf("%w: %q has no name or target", ErrInvalidBinding, b.Name)
		}
		if _, dup := names[b.Name]; dup {
			return fmt.Errorf("%w: name %q", ErrDuplicateBinding, b.Name)
		}
		if other, dup := targets[b.target]; dup {
			return fmt.Errorf("%w: %q and %q share a field", ErrDuplicateBinding, other, b.Name)
		}
		if b.AutoSave == OnItemChanged && b.tracker == nil {
			return fmt.Errorf("%w: %q uses item-changed auto-save but is not Tracked", ErrInvalidBinding, b.Name)
		}
		names[b.Name] = struct{}{}
		targets[b.target] = b.Name
	}
	return nil
}

type tracker interface {
	observe(func())
}

// Value is a save field that notices its own changes. Do not copy a Value
// after first use.
type Value[T any] struct {
	mu       sync.RWMutex
	v        T
	onChange func()
}

// NewValue returns a Value holding v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.v
}

// Set stores x and notifies the save manager if the binding saves on change.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	v.v = x
	fn := v.onChange
	v.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (v *Value[T]) load(x T) {
	v.mu.Lock()
	v.v = x
	v.mu.Unlock()
}

func (v *Value[T]) observe(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// MarshalJSON implements json.Marshaler.
func (v *Value[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Get())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	v.load(x)
	return nil
}
