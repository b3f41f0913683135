package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in
// project schema registered as "app".
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	if err := sr.RegisterSchema("app", builtinAppSchema, "#App"); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema compiles schema and registers the definition it names.
func (sr *SchemaRegistry) RegisterSchema(name, schema, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateYAML checks a YAML document against a named schema. Errors carry
// the file positions of the offending values.
func (sr *SchemaRegistry) ValidateYAML(schemaName, filename string, src []byte) []ValidationError {
	f, err := cueyaml.Extract(filename, src)
	if err != nil {
		return convertCUEErrors(err)
	}

	// Values built from one cue.Context must not be evaluated concurrently.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("schema %s not found", schemaName)}}
	}

	data := sr.ctx.BuildFile(f)
	if err := data.Err(); err != nil {
		return convertCUEErrors(err)
	}

	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		ve := ValidationError{}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		format, args := e.Msg()
		ve.Message = fmt.Sprintf(format, args...)
		ve.Path = strings.Join(e.Path(), ".")
		out = append(out, ve)
	}
	return out
}

// builtinAppSchema describes the structure of a project file. Semantic
// checks (duplicate names, route syntax, unknown functions in pragmas) are
// left to the resolver.
const builtinAppSchema = `
#Entry: string | {
	route?:   string
	name?:    string
	method?:  string
	src?:     string
	runtime?: string
	shared?:  bool
	views?:   bool
}

#Names: null | [...string]

#Settings: {
	parallelism?: int & >=1
	state_db?:    string
	watch?: null | {
		debounce?: string
	}
	telemetry?: null | {...}
}

#App: {
	app:      string & !=""
	runtime?: string

	http?:      null | [...#Entry]
	events?:    null | [...#Entry]
	queues?:    null | [...#Entry]
	scheduled?: null | [...#Entry]
	tables?:    null | [...#Entry]
	streams?:   null | [...#Entry]
	custom?:    null | [...#Entry]

	shared?: null | {
		src?:     string
		disable?: #Names
	}
	views?: null | {
		src?:     string
		only?:    #Names
		disable?: #Names
	}
	static?: null | {
		src?: string
	}

	hydrate?: null | #Settings
}
`
