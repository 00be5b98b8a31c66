package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// comparisonOps maps every accepted operator key to its canonical tag.
// $lte/$gte and the regex aliases collapse onto canonical operators so
// the planner only ever sees one spelling.
var comparisonOps = map[string]Operator{
	"$eq":        OpEq,
	"$ne":        OpNe,
	"$in":        OpIn,
	"$nin":       OpNin,
	"$lt":        OpLt,
	"$gt":        OpGt,
	"$le":        OpLe,
	"$lte":       OpLe,
	"$ge":        OpGe,
	"$gte":       OpGe,
	"$exists":    OpExists,
	"$like":      OpLike,
	"$ilike":     OpILike,
	"$contains":  OpContains,
	"$icontains": OpIContains,
	"$regex":     OpContains,
	"$iregex":    OpIContains,
}

var spatialOps = map[string]Operator{
	"$geo.contains":   OpGeoContains,
	"$geo.equals":     OpGeoEquals,
	"$geo.intersects": OpGeoIntersects,
	"$geo.overlaps":   OpGeoOverlaps,
	"$geo.touches":    OpGeoTouches,
	"$geo.within":     OpGeoWithin,
	"$geo.dwithin":    OpGeoDWithin,
}

// Compile parses a raw JSON filter document and compiles it against the
// allow-list. A nil node with nil error means an empty document.
func Compile(raw []byte, allowed AllowList) (Node, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, &ValidationError{Problems: []string{"malformed filter document"}}
	}
	return CompileDoc(doc, allowed)
}

// CompileDoc compiles a decoded filter document. Every field name at any
// nesting depth must be allow-listed; all problems are aggregated into a
// single ValidationError and no partial predicate is returned.
func CompileDoc(doc map[string]any, allowed AllowList) (Node, error) {
	if len(doc) == 0 {
		return nil, nil
	}

	c := &compiler{allowed: allowed}
	node := c.compileObject(doc)
	if len(c.problems) > 0 {
		return nil, &ValidationError{Problems: c.problems}
	}
	return node, nil
}

type compiler struct {
	allowed  AllowList
	problems []string
}

func (c *compiler) fail(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

// compileObject compiles one mapping level. Sibling keys combine with an
// implicit AND. Keys are visited in sorted order so compilation is
// deterministic.
func (c *compiler) compileObject(doc map[string]any) Node {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var nodes []Node
	for _, key := range keys {
		value := doc[key]
		switch {
		case key == string(LogicalAnd) || key == string(LogicalOr):
			if node := c.compileGlue(LogicalOp(key), value); node != nil {
				nodes = append(nodes, node)
			}
		case key == string(LogicalNot):
			inner, ok := value.(map[string]any)
			if !ok {
				c.fail("%s requires an object", key)
				continue
			}
			if len(inner) == 0 {
				c.fail("%s condition is empty", key)
				continue
			}
			child := c.compileObject(inner)
			if child != nil {
				nodes = append(nodes, Logical{Op: LogicalNot, Children: []Node{child}})
			}
		case strings.HasPrefix(key, "$"):
			c.fail("unknown operator: %s", key)
		default:
			nodes = append(nodes, c.compileField(key, value)...)
		}
	}

	if len(nodes) == 0 {
		return nil
	}
	if len(nodes) == 1 {
		return nodes[0]
	}
	return Logical{Op: LogicalAnd, Children: nodes}
}

func (c *compiler) compileGlue(op LogicalOp, value any) Node {
	items, ok := value.([]any)
	if !ok {
		c.fail("%s requires an array of objects", op)
		return nil
	}
	if len(items) == 0 {
		c.fail("%s requires at least one condition", op)
		return nil
	}

	var children []Node
	for _, item := range items {
		inner, ok := item.(map[string]any)
		if !ok {
			c.fail("%s array items must be objects", op)
			continue
		}
		if len(inner) == 0 {
			c.fail("%s array items must not be empty", op)
			continue
		}
		if child := c.compileObject(inner); child != nil {
			children = append(children, child)
		}
	}
	if len(children) == 0 {
		return nil
	}
	if len(children) == 1 {
		return children[0]
	}
	return Logical{Op: op, Children: children}
}

// compileField compiles the value under a field key. A bare scalar or
// list is implicit $eq; a mapping is one leaf per operator, combined by
// the caller's implicit AND.
func (c *compiler) compileField(field string, value any) []Node {
	if !c.allowed.Contains(field) {
		c.fail("field is not allowed: %s", field)
		return nil
	}

	opDoc, ok := value.(map[string]any)
	if !ok {
		// Bare values compile to $eq, lists included: a raw list matches
		// a list-typed field as a whole and never implies $in.
		return []Node{Comparison{Field: field, Op: OpEq, Operand: value}}
	}
	if len(opDoc) == 0 {
		c.fail("field %s: empty condition", field)
		return nil
	}

	opKeys := make([]string, 0, len(opDoc))
	for key := range opDoc {
		opKeys = append(opKeys, key)
	}
	sort.Strings(opKeys)

	var nodes []Node
	for _, opKey := range opKeys {
		operand := opDoc[opKey]
		if op, ok := comparisonOps[opKey]; ok {
			if c.validateOperand(field, opKey, op, operand) {
				nodes = append(nodes, Comparison{Field: field, Op: op, Operand: operand})
			}
			continue
		}
		if op, ok := spatialOps[opKey]; ok {
			if node, ok := c.compileSpatial(field, op, operand); ok {
				nodes = append(nodes, node)
			}
			continue
		}
		c.fail("field %s: unknown operator: %s", field, opKey)
	}
	return nodes
}

// validateOperand checks operand shape per operator. Type agreement with
// the field's storage type is the planner's concern; the compiler is
// purely structural.
func (c *compiler) validateOperand(field, opKey string, op Operator, operand any) bool {
	switch op {
	case OpIn, OpNin:
		if _, ok := operand.([]any); !ok {
			c.fail("field %s: %s requires an array", field, opKey)
			return false
		}
	case OpLt, OpGt, OpLe, OpGe:
		switch operand.(type) {
		case float64, json.Number, string:
		default:
			c.fail("field %s: %s requires a comparable operand", field, opKey)
			return false
		}
	case OpExists:
		if _, ok := operand.(bool); !ok {
			c.fail("field %s: %s requires a boolean", field, opKey)
			return false
		}
	case OpLike, OpILike, OpContains, OpIContains:
		if _, ok := operand.(string); !ok {
			c.fail("field %s: %s requires a string", field, opKey)
			return false
		}
	}
	return true
}

func (c *compiler) compileSpatial(field string, op Operator, operand any) (Node, bool) {
	doc, ok := operand.(map[string]any)
	if !ok {
		c.fail("field %s: %s requires an object", field, op)
		return nil, false
	}

	if op == OpGeoDWithin {
		rawGeom, hasGeom := doc["geometry"]
		rawDist, hasDist := doc["distance"]
		if !hasGeom || !hasDist {
			c.fail("field %s: %s requires geometry and distance", field, op)
			return nil, false
		}
		distance, ok := rawDist.(float64)
		if !ok {
			c.fail("field %s: %s distance must be a number", field, op)
			return nil, false
		}
		geomDoc, ok := rawGeom.(map[string]any)
		if !ok {
			c.fail("field %s: %s geometry must be an object", field, op)
			return nil, false
		}
		geom, ok := c.parseGeometry(field, op, geomDoc)
		if !ok {
			return nil, false
		}
		return Spatial{Field: field, Op: op, Geometry: geom, Distance: distance}, true
	}

	geom, ok := c.parseGeometry(field, op, doc)
	if !ok {
		return nil, false
	}
	return Spatial{Field: field, Op: op, Geometry: geom}, true
}

func (c *compiler) parseGeometry(field string, op Operator, doc map[string]any) (Geometry, bool) {
	typ, ok := doc["type"].(string)
	if !ok || typ == "" {
		c.fail("field %s: %s geometry requires a type", field, op)
		return Geometry{}, false
	}
	coords, ok := doc["coordinates"]
	if !ok {
		c.fail("field %s: %s geometry requires coordinates", field, op)
		return Geometry{}, false
	}
	if _, ok := coords.([]any); !ok {
		c.fail("field %s: %s geometry coordinates must be an array", field, op)
		return Geometry{}, false
	}
	return Geometry{Type: typ, Coordinates: coords}, true
}
