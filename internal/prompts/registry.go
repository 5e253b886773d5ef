package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// registry holds parsed templates and provides thread-safe access.
type registry struct {
	mu        sync.RWMutex
	templates map[PromptID]*template.Template
	loaded    bool
}

// globalRegistry is the singleton registry instance.
//
//nolint:gochecknoglobals // singleton template registry
var globalRegistry = &registry{
	templates: make(map[PromptID]*template.Template),
}

// funcMap returns the functions available to prompt templates.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
		"hasContent": func(s string) bool {
			return strings.TrimSpace(s) != ""
		},
	}
}

// load parses every embedded template once. The template ID is the file name
// without its extension.
func (r *registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return fmt.Errorf("read embedded templates: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		id := PromptID(strings.TrimSuffix(name, filepath.Ext(name)))

		src, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return fmt.Errorf("read template %s: %w", name, err)
		}
		tmpl, err := template.New(string(id)).Funcs(funcMap()).Parse(string(src))
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[id] = tmpl
	}
	r.loaded = true
	return nil
}

// get returns the parsed template for an ID.
func (r *registry) get(id PromptID) (*template.Template, error) {
	if err := r.load(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tmpl, nil
}
