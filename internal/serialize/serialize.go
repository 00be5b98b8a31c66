// Package serialize turns storage records into wire objects and wire
// bodies into validated attribute mappings, honoring the resolved
// per-entity field permissions.
package serialize

import (
	"tidb-rest/internal/entity"
	"tidb-rest/internal/fieldset"
	"tidb-rest/internal/store"
)

// ComputedField injects a derived attribute during serialization. The
// function must treat the record as read-only.
type ComputedField struct {
	Name string
	Fn   func(record store.Record) any
}

// Serializer renders records through the resolved readable field set.
type Serializer struct {
	entity   *entity.Entity
	fields   []string
	computed []ComputedField
}

// NewSerializer builds a serializer for one entity and definition. The
// definition is resolved here so misconfiguration fails at setup.
func NewSerializer(e *entity.Entity, def *fieldset.Definition, computed ...ComputedField) (*Serializer, error) {
	fields, err := def.Resolve(e, fieldset.Serialize)
	if err != nil {
		return nil, err
	}
	return &Serializer{entity: e, fields: fields, computed: computed}, nil
}

// Fields returns the resolved readable field names.
func (s *Serializer) Fields() []string {
	return s.fields
}

// One renders a single record: readable attributes first, then computed
// fields in declaration order, same-named computed values winning.
func (s *Serializer) One(record store.Record) map[string]any {
	out := make(map[string]any, len(record)+len(s.computed))
	for _, name := range s.Fields() {
		if value, ok := record[name]; ok {
			out[name] = value
		}
	}
	for _, c := range s.computed {
		out[c.Name] = c.Fn(record)
	}
	return out
}

// Many renders a record sequence in order.
func (s *Serializer) Many(records []store.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = s.One(r)
	}
	return out
}
