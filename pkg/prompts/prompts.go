// Package prompts renders the prompt catalogue. Templates are static data
// embedded at build time; rendering is pure and performs no I/O.
package prompts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultCatalogue []byte

// Vars is the data a template renders with.
type Vars map[string]interface{}

// Prompt is a rendered template.
type Prompt struct {
	ID       string
	Category string
	System   string
	User     string
}

// Renderer turns a template id and variables into prompt text.
type Renderer interface {
	Render(id string, vars Vars) (Prompt, error)
}

type catalogueFile struct {
	Version  int `yaml:"version"`
	Defaults struct {
		System string `yaml:"system"`
	} `yaml:"defaults"`
	Templates []templateDef `yaml:"templates"`
}

type templateDef struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Vars     []string `yaml:"vars"`
	System   string   `yaml:"system"`
	Prompt   string   `yaml:"prompt"`
}

type entry struct {
	def    templateDef
	system *template.Template
	prompt *template.Template
}

// Catalogue is a parsed set of templates. It is safe for concurrent use.
type Catalogue struct {
	version int
	entries map[string]*entry
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"default": func(value interface{}, fallback string) string {
		if s := fmt.Sprint(value); value != nil && s != "" {
			return s
		}
		return fallback
	},
	"json": func(v interface{}) (string, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	},
}

// Default returns the embedded catalogue.
func Default() (*Catalogue, error) {
	return Load(defaultCatalogue)
}

// Load parses a YAML catalogue and compiles every template.
func Load(data []byte) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalogue: %w", err)
	}

	c := &Catalogue{version: file.Version, entries: make(map[string]*entry, len(file.Templates))}
	for _, def := range file.Templates {
		if def.ID == "" {
			return nil, fmt.Errorf("prompt template without id")
		}
		if _, dup := c.entries[def.ID]; dup {
			return nil, fmt.Errorf("duplicate prompt template %q", def.ID)
		}
		if def.System == "" {
			def.System = file.Defaults.System
		}

		prompt, err := template.New(def.ID).Funcs(funcs).Option("missingkey=error").Parse(def.Prompt)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", def.ID, err)
		}
		system, err := template.New(def.ID + ".system").Funcs(funcs).Option("missingkey=error").Parse(def.System)
		if err != nil {
			return nil, fmt.Errorf("template %s system: %w", def.ID, err)
		}
		c.entries[def.ID] = &entry{def: def, system: system, prompt: prompt}
	}
	return c, nil
}

// Version of the loaded catalogue.
func (c *Catalogue) Version() int { return c.version }

// IDs lists the template ids in sorted order.
func (c *Catalogue) IDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render executes template id. Every variable the template declares must be
// present in vars.
func (c *Catalogue) Render(id string, vars Vars) (Prompt, error) {
	e, ok := c.entries[id]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt template %q", id)
	}
	for _, name := range e.def.Vars {
		if _, ok := vars[name]; !ok {
			return Prompt{}, fmt.Errorf("template %s: missing variable %s", id, name)
		}
	}

	var user, system bytes.Buffer
	if err := e.prompt.Execute(&user, map[string]interface{}(vars)); err != nil {
		return Prompt{}, fmt.Errorf("failed to render %s: %w", id, err)
	}
	if err := e.system.Execute(&system, map[string]interface{}(vars)); err != nil {
		return Prompt{}, fmt.Errorf("failed to render %s system prompt: %w", id, err)
	}

	return Prompt{
		ID:       id,
		Category: e.def.Category,
		System:   strings.TrimSpace(system.String()),
		User:     strings.TrimSpace(user.String()),
	}, nil
}
