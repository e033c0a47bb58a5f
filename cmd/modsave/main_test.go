package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/moddata/internal/saves"
)

const slot1 = `{"Alpha":[{"prefix":"score","type":"int","value":42},{"prefix":"gear","value":{"hat":true}}],"Beta":[]}`

type fixture struct {
	saveDir   string
	pluginDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{saveDir: filepath.Join(root, "saves"), pluginDir: filepath.Join(root, "plugins")}
	require.NoError(t, os.MkdirAll(f.saveDir, 0o755))
	require.NoError(t, os.MkdirAll(f.pluginDir, 0o755))
	return f
}

func (f fixture) write(t *testing.T, slot saves.Slot, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.saveDir, slot.FileName()), []byte(content), 0o644))
}

func (f fixture) read(t *testing.T, slot saves.Slot) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.saveDir, slot.FileName()))
	require.NoError(t, err)
	return data
}

func (f fixture) manifest(t *testing.T, name, required string) {
	t.Helper()
	dir := filepath.Join(f.pluginDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "name: " + name + "\nversion: 1.2.0\n"
	if required != "" {
		content += "required_framework_version: " + required + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(content), 0o644))
}

func (f fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--save-dir", f.saveDir, "--plugin-dir", f.pluginDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	f := newFixture(t)
	f.write(t, saves.Slot1, slot1)

	out, err := f.run(t, "inspect", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "PLUGIN")
	assert.Regexp(t, `Alpha\s+score\s+int\s+42`, out)
	assert.Regexp(t, `Alpha\s+gear\s+\{"hat":true\}`, out)

	out, err = f.run(t, "inspect", "1", "--plugin", "Beta")
	require.NoError(t, err)
	assert.NotContains(t, out, "Alpha")

	out, err = f.run(t, "inspect", "slot1", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "\n")
	assert.JSONEq(t, slot1, out)

	_, err = f.run(t, "inspect", "2")
	assert.ErrorContains(t, err, "no save file")

	_, err = f.run(t, "inspect", "7")
	assert.Error(t, err)
}

func TestGetAndSet(t *testing.T) {
	f := newFixture(t)
	f.write(t, saves.Slot1, slot1)

	out, err := f.run(t, "get", "1", "Alpha", "score")
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	out, err = f.run(t, "get", "1", "Alpha", "gear", "--compact")
	require.NoError(t, err)
	assert.Equal(t, `{"hat":true}`+"\n", out)

	_, err = f.run(t, "get", "1", "Alpha", "missing")
	assert.ErrorContains(t, err, "no entry")

	_, err = f.run(t, "set", "1", "Alpha", "score", "7")
	require.NoError(t, err)
	v, ok := saves.QueryValue(f.read(t, saves.Slot1), "Alpha", "score")
	require.True(t, ok)
	assert.EqualValues(t, 7, v.Int())

	_, err = f.run(t, "set", "1", "Beta", "title", "Captain", "--string")
	require.NoError(t, err)
	v, ok = saves.QueryValue(f.read(t, saves.Slot1), "Beta", "title")
	require.True(t, ok)
	assert.Equal(t, "Captain", v.String())

	_, err = f.run(t, "set", "1", "Alpha", "score", "{broken")
	assert.Error(t, err)

	_, err = f.run(t, "set", "global", "Gamma", "level", "3")
	require.NoError(t, err)
	v, ok = saves.QueryValue(f.read(t, saves.SlotGlobal), "Gamma", "level")
	require.True(t, ok)
	assert.EqualValues(t, 3, v.Int())
}

func TestVerify(t *testing.T) {
	t.Run("reports broken files", func(t *testing.T) {
		f := newFixture(t)
		f.write(t, saves.Slot1, slot1)
		f.write(t, saves.Slot2, `{"Alpha":[{"prefix":"a","value":1},{"prefix":"a","value":2}]}`)

		out, err := f.run(t, "verify")
		assert.ErrorContains(t, err, "1 save file(s) failed")
		assert.Contains(t, out, "global: missing")
		assert.Contains(t, out, "slot1: ok (2 plugins)")
		assert.Contains(t, out, "slot2:")
		assert.Contains(t, out, "repeated")
	})

	t.Run("repair regenerates for installed plugins", func(t *testing.T) {
		f := newFixture(t)
		f.manifest(t, "Alpha", "")
		f.write(t, saves.Slot3, `{"Alpha": [`)

		out, err := f.run(t, "verify", "3", "--repair")
		require.NoError(t, err)
		assert.Contains(t, out, "slot3: regenerated")

		data := f.read(t, saves.Slot3)
		require.NoError(t, saves.Validate(data))
		assert.Equal(t, []string{"Alpha"}, saves.Plugins(data))
		_, err = os.Stat(filepath.Join(f.saveDir, saves.Slot1.FileName()))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	f.write(t, saves.Slot2, slot1)

	out, err := f.run(t, "reset", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "slot2: reset")
	_, err = os.Stat(filepath.Join(f.saveDir, saves.Slot2.FileName()))
	assert.True(t, os.IsNotExist(err))

	out, err = f.run(t, "reset", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to reset")
}

func TestPlugins(t *testing.T) {
	f := newFixture(t)
	f.manifest(t, "Alpha", "1.0.0")
	f.manifest(t, "Future", "3.0.0")
	f.manifest(t, "Plain", "")

	out, err := f.run(t, "plugins", "--framework-version", "1.5.0")
	require.NoError(t, err)
	assert.Regexp(t, `Alpha\s+1\.2\.0\s+1\.0\.0\s+enabled`, out)
	assert.Regexp(t, `Future\s+1\.2\.0\s+3\.0\.0\s+blocked`, out)
	assert.Regexp(t, `Plain\s+1\.2\.0\s+-\s+enabled`, out)
}

func TestVersion(t *testing.T) {
	f := newFixture(t)
	t.Setenv("MODDATA_FRAMEWORK_VERSION", "2.0.0")

	out, err := f.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "modsave dev (framework 2.0.0)\n", out)
}
