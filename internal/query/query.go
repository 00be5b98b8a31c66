// Package query compiles the JSON filter language into a validated
// predicate tree. The compiler never touches storage: it produces a
// structural AST that the planner lowers into engine-native SQL.
package query

import (
	"sort"
	"strings"
)

// Operator tags a comparison or spatial predicate.
type Operator string

const (
	OpEq        Operator = "$eq"
	OpNe        Operator = "$ne"
	OpIn        Operator = "$in"
	OpNin       Operator = "$nin"
	OpLt        Operator = "$lt"
	OpGt        Operator = "$gt"
	OpLe        Operator = "$le"
	OpGe        Operator = "$ge"
	OpExists    Operator = "$exists"
	OpLike      Operator = "$like"
	OpILike     Operator = "$ilike"
	OpContains  Operator = "$contains"
	OpIContains Operator = "$icontains"

	OpGeoContains   Operator = "$geo.contains"
	OpGeoEquals     Operator = "$geo.equals"
	OpGeoIntersects Operator = "$geo.intersects"
	OpGeoOverlaps   Operator = "$geo.overlaps"
	OpGeoTouches    Operator = "$geo.touches"
	OpGeoWithin     Operator = "$geo.within"
	OpGeoDWithin    Operator = "$geo.dwithin"
)

// LogicalOp tags a combinator node.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "$and"
	LogicalOr  LogicalOp = "$or"
	LogicalNot LogicalOp = "$not"
)

// Node is a compiled predicate tree node.
type Node interface {
	isNode()
}

// Comparison is a single field/operator/operand leaf.
type Comparison struct {
	Field   string
	Op      Operator
	Operand any
}

// Logical combines child predicates with AND, OR or NOT.
type Logical struct {
	Op       LogicalOp
	Children []Node
}

// Geometry is a GeoJSON-style geometry descriptor.
type Geometry struct {
	Type        string
	Coordinates any
}

// Spatial is a geometric predicate leaf. Distance is only meaningful for
// $geo.dwithin.
type Spatial struct {
	Field    string
	Op       Operator
	Geometry Geometry
	Distance float64
}

func (Comparison) isNode() {}
func (Logical) isNode()    {}
func (Spatial) isNode()    {}

// AllowList is the set of field names a client request may reference for
// one operation class. It is configured at setup and read-only afterwards.
type AllowList map[string]struct{}

// NewAllowList builds an AllowList from field names.
func NewAllowList(fields ...string) AllowList {
	s := make(AllowList, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Contains reports membership. A nil AllowList allows nothing.
func (a AllowList) Contains(field string) bool {
	_, ok := a[field]
	return ok
}

// Fields returns the allow-listed names, sorted.
func (a AllowList) Fields() []string {
	out := make([]string, 0, len(a))
	for f := range a {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ValidationError aggregates every problem found in one filter document.
// A document that fails validation produces no predicate at all; partial
// application would silently narrow client intent.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid filter: " + strings.Join(e.Problems, "; ")
}
