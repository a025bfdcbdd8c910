// Package input loads the optional input file that answers the interactive
// questions up front. The document may be JSON or YAML; it is validated
// against an embedded JSON Schema before anything is scanned.
package input

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"mcworldtools/internal/ident"
)

//go:embed input.schema.json
var schemaText string

var schema = jsonschema.MustCompileString("input.schema.json", schemaText)

// ErrUnreadable covers a missing, unreadable or unparsable input file.
var ErrUnreadable = errors.New("input file unreadable")

// Opt is a field that may be absent, explicitly null, or set.
type Opt[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(bytes.TrimSpace(b)) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// Has reports a set, non-null value.
func (o Opt[T]) Has() bool { return o.Set && !o.Null }

// File holds every key the tools read. Absent keys fall back to prompts.
type File struct {
	Action        Opt[int]              `json:"action"`
	InhabitedTime Opt[int64]            `json:"inhabited_time"`
	OnlyExecuting Opt[bool]             `json:"only_executing"`
	Types         Opt[[]string]         `json:"types"`
	Locations     Opt[[]ident.BlockPos] `json:"locations"`
	ID            Opt[string]           `json:"id"`
	Dimension     Opt[string]           `json:"dimension"`
	NBTKeys       Opt[[]string]         `json:"nbt_keys"`
	RemoveBy      Opt[string]           `json:"remove_by"`
	UUID          Opt[string]           `json:"uuid"`
	Confirm       Opt[bool]             `json:"confirm"`
}

// FieldError is one schema violation, labeled with its JSON pointer.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string { return fmt.Sprintf("%q: %s", e.Field, e.Message) }

// ValidationError lists every violation of the input file.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid input file: " + strings.Join(parts, "; ")
}

// Load reads and validates path.
func Load(path string) (*File, error) {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return nil, fmt.Errorf("%w: %q does not exist or is a folder", ErrUnreadable, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return Parse(b)
}

// Parse decodes a JSON or YAML document and validates it.
func Parse(b []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	foldCase(doc)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var inst any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err := schema.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, labeled(ve)
		}
		return nil, err
	}

	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &f, nil
}

// caseless lists the enum fields matched without regard to case.
var caseless = []string{"dimension", "remove_by"}

func foldCase(doc any) {
	m, ok := doc.(map[string]any)
	if !ok {
		return
	}
	for _, k := range caseless {
		if s, ok := m[k].(string); ok {
			m[k] = strings.ToLower(s)
		}
	}
}

// labeled flattens the error tree to its leaves, one per offending field.
func labeled(ve *jsonschema.ValidationError) *ValidationError {
	var out []FieldError
	seen := map[string]bool{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				field = "/"
			}
			key := field + "\x00" + e.Message
			if !seen[key] {
				seen[key] = true
				out = append(out, FieldError{Field: field, Message: e.Message})
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return &ValidationError{Fields: out}
}
