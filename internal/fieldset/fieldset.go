// Package fieldset resolves the effective readable/writable field set for
// a serializer or parser definition.
package fieldset

import (
	"sync/atomic"

	"tidb-rest/internal/entity"
)

// Direction selects which permission flag drives base-set derivation.
type Direction int

const (
	// Serialize derives the base set from readable fields.
	Serialize Direction = iota
	// Parse derives the base set from writable fields.
	Parse
)

// Definition describes the field selection for one serializer or parser.
// When Attributes is non-empty it is used verbatim as the base set;
// otherwise the base set is derived from the entity's effective
// permissions for the definition's direction. Include is then appended
// and Exclude removed.
//
// The resolved set is frozen after first resolution, cached per
// direction so one definition may serve both a serializer and a parser.
// Resolution is idempotent and side-effect-free, so concurrent first use
// is safe: both racers compute value-equal results and either may win
// the cache.
type Definition struct {
	Attributes []string
	Include    []string
	Exclude    []string

	resolved [2]atomic.Pointer[[]string]
}

// Validate checks every referenced name against the entity declaration.
// It is intended to run at setup so misconfiguration never surfaces
// per-request.
func (d *Definition) Validate(e *entity.Entity) error {
	for _, group := range [][]string{d.Attributes, d.Include, d.Exclude} {
		for _, name := range group {
			if !e.Has(name) {
				return &entity.ConfigError{
					Entity:  e.Name,
					Field:   name,
					Message: "definition references unknown field",
				}
			}
		}
	}
	return nil
}

// Resolve computes the ordered effective field set, caching the result on
// the definition instance.
func (d *Definition) Resolve(e *entity.Entity, dir Direction) ([]string, error) {
	if cached := d.resolved[dir].Load(); cached != nil {
		return *cached, nil
	}

	if err := d.Validate(e); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	appendName := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	if len(d.Attributes) > 0 {
		for _, name := range d.Attributes {
			appendName(name)
		}
	} else {
		for _, name := range e.FieldNames() {
			rw, _ := e.EffectiveRW(name)
			enabled := rw.Readable
			if dir == Parse {
				enabled = rw.Writable
			}
			if enabled {
				appendName(name)
			}
		}
	}

	for _, name := range d.Include {
		appendName(name)
	}

	if len(d.Exclude) > 0 {
		excluded := make(map[string]struct{}, len(d.Exclude))
		for _, name := range d.Exclude {
			excluded[name] = struct{}{}
		}
		filtered := out[:0]
		for _, name := range out {
			if _, drop := excluded[name]; !drop {
				filtered = append(filtered, name)
			}
		}
		out = filtered
	}

	if out == nil {
		out = []string{}
	}
	d.resolved[dir].Store(&out)
	return out, nil
}
