// Package entity declares the REST-exposed record types and their
// per-field read/write permissions.
package entity

import (
	"fmt"
	"strings"
)

// FieldType enumerates the storage types a field can carry.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeDate
	TypeJSON
	TypeGeometry
)

var fieldTypeNames = map[FieldType]string{
	TypeString:   "string",
	TypeInt:      "int",
	TypeFloat:    "float",
	TypeBool:     "bool",
	TypeTime:     "time",
	TypeDate:     "date",
	TypeJSON:     "json",
	TypeGeometry: "geometry",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType resolves a configuration type name to a FieldType.
func ParseFieldType(name string) (FieldType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for t, n := range fieldTypeNames {
		if n == normalized {
			return t, nil
		}
	}
	switch normalized {
	case "integer", "bigint":
		return TypeInt, nil
	case "double", "decimal", "number":
		return TypeFloat, nil
	case "boolean":
		return TypeBool, nil
	case "datetime", "timestamp":
		return TypeTime, nil
	case "text", "varchar":
		return TypeString, nil
	}
	return TypeString, fmt.Errorf("unknown field type: %s", name)
}

// Field describes a single entity attribute and its base permissions.
type Field struct {
	Name     string
	Column   string // storage column; defaults to Name
	Type     FieldType
	Readable bool
	Writable bool
	Nullable bool
}

// RW is a readable/writable permission pair. Entries in an entity's
// Overrides map take precedence over the field-declared flags.
type RW struct {
	Readable bool
	Writable bool
}

// Entity is the process-wide, read-only declaration of an exposed record
// type. It is configured once at setup and never mutated afterwards.
type Entity struct {
	Name       string
	Table      string
	PrimaryKey string // defaults to "id"

	Fields []Field

	// Overrides is the extension-declared permission source. Its entries
	// win field-by-field over the flags declared on Fields.
	Overrides map[string]RW

	byName map[string]int
}

// ConfigError reports an invalid entity or definition configuration.
// It is fatal at setup and never surfaced per-request.
type ConfigError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("entity %s: field %s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("entity %s: %s", e.Entity, e.Message)
}

// New builds a validated Entity. Unknown override names, duplicate fields,
// and a missing primary key field are configuration errors.
func New(name, table string, fields []Field, overrides map[string]RW) (*Entity, error) {
	if name == "" {
		return nil, &ConfigError{Entity: name, Message: "entity name is required"}
	}
	if table == "" {
		table = name
	}

	e := &Entity{
		Name:       name,
		Table:      table,
		PrimaryKey: "id",
		Fields:     make([]Field, len(fields)),
		Overrides:  overrides,
		byName:     make(map[string]int, len(fields)),
	}

	for i, f := range fields {
		if f.Name == "" {
			return nil, &ConfigError{Entity: name, Message: "field with empty name"}
		}
		if _, dup := e.byName[f.Name]; dup {
			return nil, &ConfigError{Entity: name, Field: f.Name, Message: "duplicate field"}
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		e.Fields[i] = f
		e.byName[f.Name] = i
	}

	for fieldName := range overrides {
		if _, ok := e.byName[fieldName]; !ok {
			return nil, &ConfigError{Entity: name, Field: fieldName, Message: "permission override references unknown field"}
		}
	}

	return e, nil
}

// WithPrimaryKey sets the primary key field name. The field must exist.
func (e *Entity) WithPrimaryKey(name string) (*Entity, error) {
	if _, ok := e.byName[name]; !ok {
		return nil, &ConfigError{Entity: e.Name, Field: name, Message: "primary key references unknown field"}
	}
	e.PrimaryKey = name
	return e, nil
}

// Field returns the declared field by name.
func (e *Entity) Field(name string) (Field, bool) {
	i, ok := e.byName[name]
	if !ok {
		return Field{}, false
	}
	return e.Fields[i], true
}

// Has reports whether the entity declares the named field.
func (e *Entity) Has(name string) bool {
	_, ok := e.byName[name]
	return ok
}

// Column maps a field name to its storage column. Unknown names map to
// themselves; callers are expected to validate names first.
func (e *Entity) Column(name string) string {
	if f, ok := e.Field(name); ok {
		return f.Column
	}
	return name
}

// FieldNames returns field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// EffectiveRW merges the base field flags with the override map,
// override entries winning field-by-field.
func (e *Entity) EffectiveRW(name string) (RW, bool) {
	f, ok := e.Field(name)
	if !ok {
		return RW{}, false
	}
	rw := RW{Readable: f.Readable, Writable: f.Writable}
	if e.Overrides != nil {
		if o, present := e.Overrides[name]; present {
			rw = o
		}
	}
	return rw, true
}

// PrimaryKeyColumn returns the storage column of the primary key field.
func (e *Entity) PrimaryKeyColumn() string {
	return e.Column(e.PrimaryKey)
}
