package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"newsdigest/internal/config"
)

//go:embed personas.yaml
var builtinYAML []byte

// Field types understood by schema validation.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeEnum    = "enum"
	TypeBoolean = "boolean"
)

// Field describes one key the model must return.
type Field struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Values   []string `yaml:"values,omitempty"`
	Min      *int     `yaml:"min,omitempty"`
	Max      *int     `yaml:"max,omitempty"`
	Optional bool     `yaml:"optional,omitempty"`
}

// Mapping projects a validated payload onto the common verdict shape.
type Mapping struct {
	Score     string   `yaml:"score"`
	Rationale []string `yaml:"rationale"`
	Tags      []string `yaml:"tags"`
	Audience  string   `yaml:"audience,omitempty"`
	Decision  string   `yaml:"decision"`
	KeepValue string   `yaml:"keep_value"`
}

// Definition is a persona: the instructions sent to the model, the response
// schema, and how to read a verdict from it.
type Definition struct {
	Name         string  `yaml:"name"`
	Title        string  `yaml:"title"`
	Enabled      bool    `yaml:"enabled"`
	MinScore     int     `yaml:"min_score"`
	MaxItems     int     `yaml:"max_items,omitempty"`
	ScoreScale   int     `yaml:"score_scale"`
	Instructions string  `yaml:"instructions"`
	Fields       []Field `yaml:"fields"`
	Mapping      Mapping `yaml:"mapping"`
}

type document struct {
	Personas []Definition `yaml:"personas"`
}

// Registry holds persona definitions in declaration order.
type Registry struct {
	defs []Definition
}

// Builtin returns the embedded GENAI_NEWS and PRODUCT_IDEAS personas.
func Builtin() (*Registry, error) {
	return Parse(builtinYAML)
}

// Parse decodes and validates a persona YAML document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}
	if len(doc.Personas) == 0 {
		return nil, errors.New("parse personas: no personas defined")
	}
	seen := make(map[string]struct{}, len(doc.Personas))
	for i := range doc.Personas {
		def := &doc.Personas[i]
		def.Name = strings.ToUpper(strings.TrimSpace(def.Name))
		if def.Title == "" {
			def.Title = def.Name
		}
		if def.ScoreScale <= 0 {
			def.ScoreScale = 100
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("parse personas: duplicate persona %q", def.Name)
		}
		seen[def.Name] = struct{}{}
		if err := def.validate(); err != nil {
			return nil, err
		}
	}
	return &Registry{defs: doc.Personas}, nil
}

// Load returns the built-in registry, or the YAML file at path when set,
// with config overrides applied.
func Load(cfg *config.Config) (*Registry, error) {
	var (
		reg *Registry
		err error
	)
	if path := strings.TrimSpace(cfg.Personas.File); path != "" {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read personas file: %w", readErr)
		}
		reg, err = Parse(data)
	} else {
		reg, err = Builtin()
	}
	if err != nil {
		return nil, err
	}
	if err := reg.ApplyOverrides(cfg); err != nil {
		return nil, err
	}
	return reg, nil
}

// ApplyOverrides folds [personas.overrides.<NAME>] blocks into the registry.
// Overrides naming an unknown persona are an error.
func (r *Registry) ApplyOverrides(cfg *config.Config) error {
	for _, name := range cfg.OverriddenPersonas() {
		override := cfg.Personas.Overrides[name]
		def := r.lookup(name)
		if def == nil {
			return fmt.Errorf("personas.overrides: unknown persona %q (known: %s)", name, strings.Join(r.Names(), ", "))
		}
		if override.Enabled != nil {
			def.Enabled = *override.Enabled
		}
		if override.MinScore != nil {
			def.MinScore = *override.MinScore
		}
		if override.MaxItems > 0 {
			def.MaxItems = override.MaxItems
		}
	}
	return nil
}

func (r *Registry) lookup(name string) *Definition {
	for i := range r.defs {
		if strings.EqualFold(r.defs[i].Name, name) {
			return &r.defs[i]
		}
	}
	return nil
}

// Get returns the named persona.
func (r *Registry) Get(name string) (Definition, bool) {
	if def := r.lookup(name); def != nil {
		return *def, true
	}
	return Definition{}, false
}

// Enabled returns enabled personas in declaration order.
func (r *Registry) Enabled() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		if def.Enabled {
			out = append(out, def)
		}
	}
	return out
}

// All returns every persona in declaration order.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Names returns persona names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for _, def := range r.defs {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// Cap returns the per-persona digest cap, falling back to defaultCap.
func (d Definition) Cap(defaultCap int) int {
	if d.MaxItems > 0 {
		return d.MaxItems
	}
	return defaultCap
}

func (d Definition) field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return errors.New("persona: name is required")
	}
	if strings.TrimSpace(d.Instructions) == "" {
		return fmt.Errorf("persona %s: instructions are required", d.Name)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("persona %s: at least one field is required", d.Name)
	}
	for _, f := range d.Fields {
		switch f.Type {
		case TypeString, TypeInteger, TypeBoolean:
		case TypeEnum:
			if len(f.Values) == 0 {
				return fmt.Errorf("persona %s: enum field %s has no values", d.Name, f.Name)
			}
		default:
			return fmt.Errorf("persona %s: field %s has unknown type %q", d.Name, f.Name, f.Type)
		}
	}
	score, ok := d.field(d.Mapping.Score)
	if !ok || score.Type != TypeInteger {
		return fmt.Errorf("persona %s: mapping.score must name an integer field", d.Name)
	}
	if score.Optional {
		return fmt.Errorf("persona %s: score field %s cannot be optional", d.Name, score.Name)
	}
	if score.Min == nil || score.Max == nil {
		return fmt.Errorf("persona %s: score field %s needs min and max", d.Name, score.Name)
	}
	if *score.Min < 0 || *score.Max > d.ScoreScale || *score.Min > *score.Max {
		return fmt.Errorf("persona %s: score field %s range %d..%d outside 0..%d", d.Name, score.Name, *score.Min, *score.Max, d.ScoreScale)
	}
	if _, ok := d.field(d.Mapping.Decision); !ok {
		return fmt.Errorf("persona %s: mapping.decision must name a field", d.Name)
	}
	if len(d.Mapping.Tags) == 0 {
		return fmt.Errorf("persona %s: mapping.tags must name at least one field", d.Name)
	}
	for _, name := range append(append([]string{}, d.Mapping.Rationale...), d.Mapping.Tags...) {
		if _, ok := d.field(name); !ok {
			return fmt.Errorf("persona %s: mapping references unknown field %q", d.Name, name)
		}
	}
	if d.MinScore < 0 || d.MinScore > d.ScoreScale {
		return fmt.Errorf("persona %s: min_score %d outside 0..%d", d.Name, d.MinScore, d.ScoreScale)
	}
	return nil
}
