package saves

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrCorrupt is returned when a save file does not hold a plugin → entries
// object.
var ErrCorrupt = errors.New("saves: save data is corrupted")

// File is the on-disk shape of one scope: plugin name → entries.
type File map[string][]Item

// Encode renders a scope file. Plugin names are written in sorted order.
func Encode(f File) ([]byte, error) {
	out := make(File, len(f))
	for name, items := range f {
		if items == nil {
			items = []Item{}
		}
		out[name] = items
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode saves: %w", err)
	}
	return data, nil
}

// Decode parses a scope file. Empty input, "null", and anything that is not
// an object of entry arrays are reported as ErrCorrupt.
func Decode(data []byte) (File, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrCorrupt)
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, fmt.Errorf("%w: invalid json", ErrCorrupt)
	}
	var f File
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: null", ErrCorrupt)
	}
	return f, nil
}

// WriteFile replaces path with data via a temporary file in the same
// directory, so readers never see a partial file.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace save file: %w", err)
	}
	return nil
}

// Plugins lists the plugin names present in raw save data.
func Plugins(data []byte) []string {
	var names []string
	gjson.ParseBytes(data).ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	return names
}

func entryPath(pluginName, prefix string) string {
	return gjson.Escape(pluginName) + ".#(prefix==" + strconv.Quote(prefix) + ")"
}

// Query returns the raw entry stored for plugin under prefix.
func Query(data []byte, pluginName, prefix string) (gjson.Result, bool) {
	r := gjson.GetBytes(data, entryPath(pluginName, prefix))
	return r, r.Exists()
}

// QueryValue returns the value stored for plugin under prefix.
func QueryValue(data []byte, pluginName, prefix string) (gjson.Result, bool) {
	r := gjson.GetBytes(data, entryPath(pluginName, prefix)+".value")
	return r, r.Exists()
}

// SetRaw replaces the value of one entry in raw save data, appending the
// entry if the plugin has none under prefix. raw must be valid JSON.
func SetRaw(data []byte, pluginName, prefix string, raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("value for %q is not valid json", prefix)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	base := gjson.Escape(pluginName)

	idx := -1
	for i, entry := range gjson.GetBytes(data, base).Array() {
		if entry.Get("prefix").String() == prefix {
			idx = i
			break
		}
	}

	if idx >= 0 {
		out, err := sjson.SetRawBytes(data, base+"."+strconv.Itoa(idx)+".value", raw)
		if err != nil {
			return nil, fmt.Errorf("set %s/%s: %w", pluginName, prefix, err)
		}
		return out, nil
	}

	entry, err := json.Marshal(Item{Key: prefix, Value: raw})
	if err != nil {
		return nil, err
	}
	path := base + ".-1"
	if !gjson.GetBytes(data, base).IsArray() {
		path, entry = base, append(append([]byte("["), entry...), ']')
	}
	out, err := sjson.SetRawBytes(data, path, entry)
	if err != nil {
		return nil, fmt.Errorf("append %s/%s: %w", pluginName, prefix, err)
	}
	return out, nil
}
