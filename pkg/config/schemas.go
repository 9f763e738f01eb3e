package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for catalog validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	if err := sr.RegisterSchema("panel", builtinPanelSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("catalog", builtinCatalogSchema); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema compiles schema and registers its #Schema definition under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".schema.cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	root := val.LookupPath(cue.ParsePath("#Schema"))
	if !root.Exists() {
		return fmt.Errorf("schema %s does not define #Schema", name)
	}
	sr.schemas[name] = root
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Compile compiles CUE source in the registry's context so it can be unified with its schemas.
func (sr *SchemaRegistry) Compile(src []byte, filename string) cue.Value {
	return sr.ctx.CompileBytes(src, cue.Filename(filename))
}

// Unify unifies val with the named schema and validates the result.
// The returned value carries the schema's defaults.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
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

const panelSchemaBody = `close({
	path?:         string & !=""
	layer?:        int & >=0 & <=1000
	roles?:        [...("main" | "loadable" | "focusable" | "pop")]
	use_mask?:     bool
	mask_color?:   =~"^#([0-9a-fA-F]{6}|[0-9a-fA-F]{8})$"
	behavior?:     string
	main_change?:  "none" | "hide" | "close"
	mask_click?:   "none" | "hide" | "close" | "direct_hide" | "direct_close"
	top_pop?:      "none" | "ignore" | "hide" | "close"
	auto_close?: close({
		[=~"^(mask_click|pop_auto_close|main_ui_switch|destroy_all|path_superseded)$"]: "none" | "hide" | "close"
	})
	loading?: close({
		type?:  string
		title?: string
		text?:  string
	})
	input_scheme?: string
	block_input?:  bool
})`

// builtinPanelSchema constrains a single catalog entry.
const builtinPanelSchema = "#Schema: " + panelSchemaBody

// builtinCatalogSchema constrains a whole catalog document.
const builtinCatalogSchema = `
#Panel: ` + panelSchemaBody + `

#Schema: close({
	panels: [string]: #Panel
	behaviors?: [string]: string & =~"\\.star$"
})
`
