package serialize

import (
	"fmt"
	"sort"
	"strings"

	"tidb-rest/internal/entity"
	"tidb-rest/internal/fieldset"
)

// Transform rewrites one field's coerced value before processors run.
type Transform struct {
	Field string
	Fn    func(value any) (any, error)
}

// Processor sees the whole parsed-so-far mapping plus the original input,
// for cross-field derivation. Processors run after per-field transforms,
// in declaration order.
type Processor func(parsed map[string]any, input map[string]any) error

// ValidationError carries one message per offending field. It maps to a
// 422 body; partial attribute mappings are never returned alongside it.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, f := range names {
		parts[i] = fmt.Sprintf("%s: %s", f, e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Parser converts wire bodies into attribute mappings through the
// resolved writable field set.
type Parser struct {
	entity     *entity.Entity
	fields     []string
	transforms []Transform
	processors []Processor

	// Envelope, when non-empty, is the key the input payload sits under.
	Envelope string
}

// NewParser builds a parser for one entity and definition. The
// definition is resolved here so misconfiguration fails at setup.
func NewParser(e *entity.Entity, def *fieldset.Definition) (*Parser, error) {
	fields, err := def.Resolve(e, fieldset.Parse)
	if err != nil {
		return nil, err
	}
	return &Parser{entity: e, fields: fields}, nil
}

// WithTransforms declares per-field value transforms.
func (p *Parser) WithTransforms(transforms ...Transform) *Parser {
	p.transforms = append(p.transforms, transforms...)
	return p
}

// WithProcessors declares whole-mapping processors.
func (p *Parser) WithProcessors(processors ...Processor) *Parser {
	p.processors = append(p.processors, processors...)
	return p
}

// Fields returns the resolved writable field names.
func (p *Parser) Fields() []string {
	return p.fields
}

// Parse produces the attribute mapping for a write. Absent fields stay
// absent; a present null only survives coercion on nullable fields. All
// coercion and transform failures are aggregated into one
// ValidationError rather than applied partially.
func (p *Parser) Parse(input map[string]any) (map[string]any, error) {
	if p.Envelope != "" {
		wrapped, ok := input[p.Envelope].(map[string]any)
		if !ok {
			return nil, &ValidationError{Fields: map[string]string{
				p.Envelope: "expected an object under the envelope key",
			}}
		}
		input = wrapped
	}

	parsed := make(map[string]any)
	problems := make(map[string]string)

	for _, name := range p.Fields() {
		raw, present := input[name]
		if !present {
			continue
		}
		f, _ := p.entity.Field(name)
		value, err := f.Coerce(raw)
		if err != nil {
			if ce, ok := err.(*entity.CoercionError); ok {
				problems[name] = ce.Message
			} else {
				problems[name] = err.Error()
			}
			continue
		}
		parsed[name] = value
	}

	for _, t := range p.transforms {
		value, present := parsed[t.Field]
		if !present {
			continue
		}
		replaced, err := t.Fn(value)
		if err != nil {
			problems[t.Field] = err.Error()
			continue
		}
		parsed[t.Field] = replaced
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}

	for _, proc := range p.processors {
		if err := proc(parsed, input); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				return nil, ve
			}
			return nil, err
		}
	}

	return parsed, nil
}
