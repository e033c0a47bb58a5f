package saves

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

const fileSchema = `{
  "type": "object",
  "additionalProperties": {
    "type": "array",
    "items": {
      "type": "object",
      "required": ["prefix", "value"],
      "properties": {
        "prefix": {"type": "string", "minLength": 1},
        "type": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(fileSchema))
	})
	return schema, schemaErr
}

// ValidationError lists every problem found in a save file. It matches
// ErrCorrupt with errors.Is.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCorrupt, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrCorrupt }

// Validate checks raw save data against the file schema and for repeated
// prefixes within one plugin.
func Validate(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return &ValidationError{Problems: []string{"not valid json"}}
	}

	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile save file schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(trimmed))
	if err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}

	var problems []string
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	if result.Valid() {
		problems = append(problems, duplicatePrefixes(trimmed)...)
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func duplicatePrefixes(data []byte) []string {
	var problems []string
	gjson.ParseBytes(data).ForEach(func(name, entries gjson.Result) bool {
		seen := make(map[string]struct{})
		entries.ForEach(func(_, entry gjson.Result) bool {
			prefix := entry.Get("prefix").String()
			if _, dup := seen[prefix]; dup {
				problems = append(problems, fmt.Sprintf("%s: prefix %q is repeated", name.String(), prefix))
			}
			seen[prefix] = struct{}{}
			return true
		})
		return true
	})
	return problems
}
