package saves_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goatkit/moddata/internal/plugin"
	"github.com/goatkit/moddata/internal/saves"
	pkgplugin "github.com/goatkit/moddata/pkg/plugin"
)

type progress struct {
	Score  int
	Name   string
	Visits saves.Value[int]
}

func progressSchema(p *progress) []saves.Binding {
	return []saves.Binding{
		saves.Field("score", &p.Score),
		saves.Field("name", &p.Name, saves.WithAutoSave(saves.Manual)),
		saves.Tracked("visits", &p.Visits, saves.WithAutoSave(saves.OnGameSave)),
	}
}

type counter struct {
	Count saves.Value[int]
}

func counterSchema(c *counter) []saves.Binding {
	return []saves.Binding{saves.Tracked("count", &c.Count)}
}

type testPlugin struct {
	name     string
	required string
	local    *saves.Handler
	global   *saves.Handler
}

func (p *testPlugin) Describe() pkgplugin.Descriptor {
	return pkgplugin.Descriptor{Name: p.name, Version: "1.0.0", RequiredFrameworkVersion: p.required, Instance: p}
}

func (p *testPlugin) OnEnabled(context.Context) error { return nil }

func (p *testPlugin) LocalSaveHandler() *saves.Handler { return p.local }

func (p *testPlugin) GlobalSaveHandler() *saves.Handler { return p.global }

func newProgressPlugin(t *testing.T, name string) *testPlugin {
	t.Helper()
	local, err := saves.NewHandler(progressSchema)
	require.NoError(t, err)
	global, err := saves.NewHandler(counterSchema)
	require.NoError(t, err)
	return &testPlugin{name: name, local: local, global: global}
}

const frameworkVersion = "1.0.0"

type env struct {
	dir      string
	registry *plugin.Registry
	manager  *saves.Manager
	logs     *plugin.LogBuffer
}

func newEnv(t *testing.T, plugins ...pkgplugin.Plugin) *env {
	t.Helper()
	return newEnvAt(t, t.TempDir(), plugins...)
}

func newEnvAt(t *testing.T, dir string, plugins ...pkgplugin.Plugin) *env {
	t.Helper()
	logs := plugin.NewLogBuffer(200)
	logger := slog.New(plugin.NewBufferHandler(logs, nil, nil))

	registry := plugin.NewRegistry(logger)
	for _, p := range plugins {
		require.True(t, registry.Register(p))
	}
	registry.EnableAll(context.Background(), frameworkVersion)
	return &env{
		dir:      dir,
		registry: registry,
		manager:  saves.NewManager(dir, registry, saves.WithLogger(logger)),
		logs:     logs,
	}
}

func (e *env) read(t *testing.T, slot saves.Slot) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dir, slot.FileName()))
	require.NoError(t, err)
	return data
}

func (e *env) write(t *testing.T, slot saves.Slot, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, slot.FileName()), []byte(content), 0o644))
}

func (e *env) exists(slot saves.Slot) bool {
	_, err := os.Stat(filepath.Join(e.dir, slot.FileName()))
	return !errors.Is(err, os.ErrNotExist)
}

func local(t *testing.T, p *testPlugin) *progress {
	t.Helper()
	inst, ok := saves.InstanceOf[progress](p.local)
	require.True(t, ok, "local save object should be constructed")
	return inst
}

func global(t *testing.T, p *testPlugin) *counter {
	t.Helper()
	inst, ok := saves.InstanceOf[counter](p.global)
	require.True(t, ok, "global save object should be constructed")
	return inst
}
