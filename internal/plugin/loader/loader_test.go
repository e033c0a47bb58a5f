package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/moddata/internal/plugin"
	"github.com/goatkit/moddata/internal/plugin/loader"
	pkgplugin "github.com/goatkit/moddata/pkg/plugin"
)

func writeManifest(t *testing.T, dir, name, body string) string {
	t.Helper()
	pluginDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	path := filepath.Join(pluginDir, loader.ManifestFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := writeManifest(t, dir, "scanner", `
name: better-scanner
version: 1.2.0
author: someone
required_framework_version: 1.0.0
`)
		m, err := loader.LoadManifest(path)
		require.NoError(t, err)
		assert.Equal(t, "better-scanner", m.Name)
		assert.Equal(t, "1.0.0", m.RequiredFrameworkVersion)
	})

	cases := []struct {
		name string
		body string
		want error
	}{
		{"missing name", "version: 1.0.0\n", loader.ErrMissingName},
		{"bad name", "name: \"bad name\"\nversion: 1.0.0\n", loader.ErrInvalidName},
		{"missing version", "name: ok\n", loader.ErrMissingVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeManifest(t, dir, tc.name, tc.body)
			_, err := loader.LoadManifest(path)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeManifest(t, dir, "broken", "name: [unterminated\n")
		_, err := loader.LoadManifest(path)
		assert.Error(t, err)
	})
}

func TestLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadAll_EmptyDir", func(t *testing.T) {
		reg := plugin.NewRegistry(nil)
		l := loader.NewLoader(t.TempDir(), reg, nil)

		count, errs := l.LoadAll(ctx)
		assert.Equal(t, 0, count)
		assert.Empty(t, errs)
	})

	t.Run("LoadAll_CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "plugins")
		l := loader.NewLoader(dir, plugin.NewRegistry(nil), nil)

		count, errs := l.LoadAll(ctx)
		assert.Equal(t, 0, count)
		assert.Empty(t, errs)
		assert.DirExists(t, dir)
	})

	t.Run("LoadAll_RegistersManifests", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, "alpha", "name: alpha\nversion: 1.0.0\n")
		writeManifest(t, dir, "beta", "name: beta\nversion: 2.1.0\nrequired_framework_version: 1.0.0\n")
		writeManifest(t, dir, "broken", "name: broken\n")

		reg := plugin.NewRegistry(nil)
		l := loader.NewLoader(dir, reg, nil)

		count, errs := l.LoadAll(ctx)
		assert.Equal(t, 2, count)
		assert.Len(t, errs, 1)

		p, ok := reg.Get("beta")
		require.True(t, ok)
		desc := p.Describe()
		assert.Equal(t, filepath.Join(dir, "beta"), desc.Module)
		assert.Equal(t, "1.0.0", desc.RequiredFrameworkVersion)
		assert.Same(t, p, desc.Instance)

		byModule, ok := reg.GetByModule(filepath.Join(dir, "alpha"))
		require.True(t, ok)
		assert.Equal(t, "alpha", byModule.Describe().Name)
		assert.Len(t, l.DiscoveredPlugins(), 2)
	})

	t.Run("LoadAll_TwiceDoesNotConflict", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, "alpha", "name: alpha\nversion: 1.0.0\n")

		reg := plugin.NewRegistry(nil)
		l := loader.NewLoader(dir, reg, nil)

		count, _ := l.LoadAll(ctx)
		assert.Equal(t, 1, count)
		count, _ = l.LoadAll(ctx)
		assert.Equal(t, 0, count)
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("ManifestPlugin enables", func(t *testing.T) {
		dir := t.TempDir()
		writeManifest(t, dir, "alpha", "name: alpha\nversion: 1.0.0\n")
		reg := plugin.NewRegistry(nil)
		loader.NewLoader(dir, reg, nil).LoadAll(ctx)

		assert.Equal(t, 1, reg.EnableAll(ctx, "1.0.0"))
		assert.Equal(t, plugin.StateEnabled, reg.State("alpha"))
	})
}

func TestLoaderWatchDir(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	reg := plugin.NewRegistry(nil)

	var registered atomic.Int32
	l := loader.NewLoader(dir, reg, nil,
		loader.WithDebounce(20*time.Millisecond),
		loader.WithOnRegister(func(ctx context.Context, p pkgplugin.Plugin) {
			registered.Add(1)
		}),
	)
	require.NoError(t, l.WatchDir(ctx))
	defer l.StopWatch()

	writeManifest(t, dir, "late", "name: late\nversion: 1.0.0\n")

	require.Eventually(t, func() bool {
		_, ok := reg.Get("late")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return registered.Load() == 1
	}, time.Second, 10*time.Millisecond)
}
