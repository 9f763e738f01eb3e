package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	cueerrors "cuelang.org/go/cue/errors"
	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Catalog holds panel templates loaded from YAML and CUE files.
// It implements engine.TemplateLoader.
type Catalog struct {
	pathFormat string
	schemas    *SchemaRegistry
	validate   *validator.Validate
	logger     zerolog.Logger

	mu        sync.RWMutex
	templates map[string]*engine.Template
	behaviors map[string]string
	sources   []string
}

// NewCatalog creates an empty catalog. pathFormat derives a panel path from
// an entry name when the entry does not set one.
func NewCatalog(pathFormat string, logger zerolog.Logger) *Catalog {
	if pathFormat == "" {
		pathFormat = "%s"
	}
	return &Catalog{
		pathFormat: pathFormat,
		schemas:    NewSchemaRegistry(),
		validate:   NewValidator(),
		logger:     logger.With().Str("component", "catalog").Logger(),
		templates:  make(map[string]*engine.Template),
		behaviors:  make(map[string]string),
	}
}

// Load returns the template registered for path.
func (c *Catalog) Load(path string) (*engine.Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.templates[path]
	if !ok {
		if s := c.suggest(path); len(s) > 0 {
			return nil, fmt.Errorf("%w: %s (did you mean %s?)", engine.ErrTemplateNotFound, path, strings.Join(s, ", "))
		}
		return nil, fmt.Errorf("%w: %s", engine.ErrTemplateNotFound, path)
	}
	cp := *t
	return &cp, nil
}

// Paths returns every registered panel path, sorted.
func (c *Catalog) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	paths := make([]string, 0, len(c.templates))
	for p := range c.templates {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Templates returns copies of every registered template, sorted by path.
func (c *Catalog) Templates() []engine.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]engine.Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Behaviors returns behavior names mapped to Starlark script files.
func (c *Catalog) Behaviors() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string, len(c.behaviors))
	for k, v := range c.behaviors {
		out[k] = v
	}
	return out
}

// Sources returns the files the catalog was loaded from.
func (c *Catalog) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.sources...)
}

// Add registers a template directly, replacing any existing one.
func (c *Catalog) Add(t *engine.Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t.Path] = t
}

// LoadPaths loads every catalog file under paths and replaces the catalog
// contents. On error the previous contents are kept and the returned error is
// a ValidationErrors listing every problem found.
func (c *Catalog) LoadPaths(paths []string) error {
	files, err := collectCatalogFiles(paths)
	if err != nil {
		return err
	}

	templates := make(map[string]*engine.Template)
	behaviors := make(map[string]string)
	origin := make(map[string]string)
	var problems ValidationErrors

	for _, file := range files {
		doc, errs := c.parseFile(file)
		problems = append(problems, errs...)
		if doc == nil {
			continue
		}

		names := make([]string, 0, len(doc.Panels))
		for name := range doc.Panels {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			spec := doc.Panels[name]
			if errs := c.validateSpec(file, name, spec); len(errs) > 0 {
				problems = append(problems, errs...)
				continue
			}

			path := spec.Path
			if path == "" {
				path = fmt.Sprintf(c.pathFormat, name)
			}
			if prev, dup := origin[path]; dup {
				problems = append(problems, ValidationError{
					File:     file,
					Path:     "panels." + name,
					Message:  fmt.Sprintf("duplicate panel path %s (first defined in %s)", path, prev),
					Severity: "error",
				})
				continue
			}

			tmpl, err := spec.Template(path)
			if err != nil {
				problems = append(problems, ValidationError{
					File:     file,
					Path:     "panels." + name,
					Message:  err.Error(),
					Severity: "error",
				})
				continue
			}
			templates[path] = tmpl
			origin[path] = file
		}

		for name, script := range doc.Behaviors {
			if !filepath.IsAbs(script) {
				script = filepath.Join(filepath.Dir(file), script)
			}
			behaviors[name] = script
		}
	}

	for path, t := range templates {
		if t.Behavior != "" {
			if _, ok := behaviors[t.Behavior]; !ok {
				c.logger.Debug().Str("path", path).Str("behavior", t.Behavior).Msg("Behavior has no script; expecting a registered factory")
			}
		}
	}

	if len(problems) > 0 {
		return problems
	}

	c.mu.Lock()
	c.templates = templates
	c.behaviors = behaviors
	c.sources = files
	c.mu.Unlock()

	c.logger.Info().
		Int("files", len(files)).
		Int("panels", len(templates)).
		Int("behaviors", len(behaviors)).
		Msg("Catalog loaded")
	return nil
}

// parseFile decodes one catalog file according to its extension.
func (c *Catalog) parseFile(file string) (*CatalogFile, []ValidationError) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, []ValidationError{{
			File:     file,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	switch filepath.Ext(file) {
	case ".cue":
		return c.parseCUE(file, content)
	default:
		return parseYAML(file, content)
	}
}

func parseYAML(file string, content []byte) (*CatalogFile, []ValidationError) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var doc CatalogFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		ve := ValidationError{File: file, Message: err.Error(), Severity: "error"}
		var te *yaml.TypeError
		if errors.As(err, &te) {
			ve.Message = strings.Join(te.Errors, "; ")
		}
		return nil, []ValidationError{ve}
	}
	return &doc, nil
}

func (c *Catalog) parseCUE(file string, content []byte) (*CatalogFile, []ValidationError) {
	val := c.schemas.Compile(content, file)
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	unified, err := c.schemas.Unify("catalog", val)
	if err != nil {
		return nil, convertCUEErrors(err)
	}

	var doc CatalogFile
	if err := unified.Decode(&doc); err != nil {
		return nil, convertCUEErrors(err)
	}
	return &doc, nil
}

func (c *Catalog) validateSpec(file, name string, spec PanelSpec) []ValidationError {
	err := c.validate.Struct(spec)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{File: file, Path: "panels." + name, Message: err.Error(), Severity: "error"}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed %q validation", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q validation (%s)", fe.Tag(), fe.Param())
		}
		out = append(out, ValidationError{
			File:     file,
			Path:     "panels." + name + "." + fe.Field(),
			Message:  fmt.Sprintf("value %v %s", fe.Value(), msg),
			Severity: "error",
		})
	}
	return out
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:     strings.Join(e.Path(), "."),
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error(), Severity: "error"})
	}
	return out
}

// suggest returns catalog paths close to path. Callers hold c.mu.
func (c *Catalog) suggest(path string) []string {
	type candidate struct {
		path string
		dist int
	}

	limit := len(path) / 3
	if limit < 2 {
		limit = 2
	}

	var found []candidate
	for p := range c.templates {
		if d := levenshtein.ComputeDistance(strings.ToLower(path), strings.ToLower(p)); d <= limit {
			found = append(found, candidate{p, d})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return found[i].path < found[j].path
	})

	out := make([]string, 0, 3)
	for i := 0; i < len(found) && i < 3; i++ {
		out = append(out, found[i].path)
	}
	return out
}

// isCatalogFile reports whether name has a catalog extension.
func isCatalogFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}

// collectCatalogFiles expands directories into their catalog files, sorted.
func collectCatalogFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat catalog path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isCatalogFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk catalog directory %s: %w", p, err)
		}
	}
	sort.Strings(files)
	return files, nil
}
