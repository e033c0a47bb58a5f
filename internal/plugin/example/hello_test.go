package example

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/moddata/internal/plugin"
	"github.com/goatkit/moddata/internal/saves"
)

func setup(t *testing.T, dir string) (*HelloPlugin, *saves.Manager) {
	t.Helper()
	reg := plugin.NewRegistry(nil)
	m := saves.NewManager(dir, reg)
	p := NewHelloPlugin(m, nil)
	require.True(t, reg.Register(p))
	require.Equal(t, 1, reg.EnableAll(context.Background(), "1.0.0"))
	return p, m
}

func TestHelloPlugin(t *testing.T) {
	ctx := context.Background()

	t.Run("Describe", func(t *testing.T) {
		p := NewHelloPlugin(nil, nil)
		d := p.Describe()
		assert.Equal(t, "hello", d.Name)
		assert.Equal(t, "1.0.0", d.Version)
		assert.Same(t, p, d.Instance)
		assert.NoError(t, p.OnEnabled(ctx))
	})

	t.Run("Greet before load", func(t *testing.T) {
		p, _ := setup(t, t.TempDir())
		_, err := p.Greet(ctx, "Ada")
		assert.ErrorContains(t, err, "not loaded")
	})

	t.Run("Greet persists both scopes", func(t *testing.T) {
		dir := t.TempDir()
		p, m := setup(t, dir)
		m.Deserialize(saves.Global)
		m.Deserialize(saves.Local)

		msg, err := p.Greet(ctx, "Ada")
		require.NoError(t, err)
		assert.Equal(t, "Hello, Ada! (greeting #1)", msg)
		msg, err = p.Greet(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "Hello, World! (greeting #2)", msg)

		global, err := os.ReadFile(filepath.Join(dir, saves.SlotGlobal.FileName()))
		require.NoError(t, err)
		v, ok := saves.QueryValue(global, "hello", "count")
		require.True(t, ok)
		assert.EqualValues(t, 2, v.Int())

		local, err := os.ReadFile(filepath.Join(dir, saves.Slot1.FileName()))
		require.NoError(t, err)
		v, ok = saves.QueryValue(local, "hello", "last")
		require.True(t, ok)
		assert.Equal(t, "World", v.String())
		v, ok = saves.QueryValue(local, "hello", "names")
		require.True(t, ok)
		assert.Len(t, v.Array(), 2)

		reloaded, rm := setup(t, dir)
		rm.Deserialize(saves.Global)
		rm.Deserialize(saves.Local)
		count, last := reloaded.Stats()
		assert.Equal(t, 2, count)
		assert.Equal(t, "World", last)
	})

	t.Run("unregistered instance cannot save", func(t *testing.T) {
		dir := t.TempDir()
		_, m := setup(t, dir)
		stray := NewHelloPlugin(m, nil)
		m.LoadData(stray, saves.Global)
		m.LoadData(stray, saves.Local)

		_, err := stray.Greet(ctx, "Eve")
		assert.ErrorIs(t, err, saves.ErrNotPlugin)
	})
}
