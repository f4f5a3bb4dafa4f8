package persona

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"newsdigest/internal/store"
)

// SchemaError lists every problem found in a model response.
type SchemaError struct {
	Persona  string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("persona %s response invalid: %s", e.Persona, strings.Join(e.Problems, "; "))
}

// Verdict validates payload against the persona schema and projects it onto a
// store.Verdict. Integers may arrive as whole JSON numbers or numeric strings.
func (d Definition) Verdict(payload map[string]any) (*store.Verdict, error) {
	problems := make([]string, 0)
	clean := make(map[string]any, len(d.Fields))

	for _, field := range d.Fields {
		raw, present := payload[field.Name]
		if !present || raw == nil {
			if !field.Optional {
				problems = append(problems, field.Name+": missing")
			}
			continue
		}
		value, err := coerce(field, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", field.Name, err))
			continue
		}
		clean[field.Name] = value
	}
	if len(problems) > 0 {
		return nil, &SchemaError{Persona: d.Name, Problems: problems}
	}

	score, ok := clean[d.Mapping.Score].(int)
	if !ok {
		return nil, &SchemaError{Persona: d.Name, Problems: []string{d.Mapping.Score + ": missing"}}
	}
	verdict := &store.Verdict{
		RelevanceScore: score,
		Details:        clean,
	}
	if d.Mapping.Audience != "" {
		verdict.AudienceHint, _ = clean[d.Mapping.Audience].(string)
	}
	rationale := make([]string, 0, len(d.Mapping.Rationale))
	for _, name := range d.Mapping.Rationale {
		if text := stringify(clean[name]); text != "" {
			rationale = append(rationale, text)
		}
	}
	verdict.Rationale = strings.Join(rationale, " ")
	for _, name := range d.Mapping.Tags {
		if tag := stringify(clean[name]); tag != "" {
			verdict.Tags = append(verdict.Tags, tag)
		}
	}
	if len(verdict.Tags) == 0 {
		return nil, &SchemaError{Persona: d.Name, Problems: []string{"tags: empty"}}
	}

	switch decision := clean[d.Mapping.Decision].(type) {
	case bool:
		verdict.Keep = decision
	case string:
		keepValue := d.Mapping.KeepValue
		if keepValue == "" {
			keepValue = "keep"
		}
		verdict.Keep = strings.EqualFold(decision, keepValue)
	}
	return verdict, nil
}

// Accepts reports whether a valid verdict qualifies the item for the digest.
func (d Definition) Accepts(v *store.Verdict) bool {
	return v != nil && v.Keep && v.RelevanceScore >= d.MinScore
}

func coerce(field Field, raw any) (any, error) {
	switch field.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		s = strings.TrimSpace(s)
		if s == "" && !field.Optional {
			return nil, fmt.Errorf("empty string")
		}
		return s, nil
	case TypeInteger:
		n, err := toInt(raw)
		if err != nil {
			return nil, err
		}
		if field.Min != nil && n < *field.Min {
			return nil, fmt.Errorf("%d below minimum %d", n, *field.Min)
		}
		if field.Max != nil && n > *field.Max {
			return nil, fmt.Errorf("%d above maximum %d", n, *field.Max)
		}
		return n, nil
	case TypeEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s, got %T", strings.Join(field.Values, "|"), raw)
		}
		for _, allowed := range field.Values {
			if strings.EqualFold(strings.TrimSpace(s), allowed) {
				return allowed, nil
			}
		}
		return nil, fmt.Errorf("%q not one of %s", s, strings.Join(field.Values, "|"))
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", v)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", raw)
	}
	return nil, fmt.Errorf("unknown field type %q", field.Type)
}

func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", raw)
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
