package planner

import (
	"encoding/json"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"tidb-rest/internal/entity"
	"tidb-rest/internal/query"
	"tidb-rest/internal/sqlutil"
)

// LowerPredicate converts a compiled predicate tree into a squirrel
// condition against the entity's storage columns. A nil node lowers to a
// nil condition (no WHERE clause).
func LowerPredicate(e *entity.Entity, node query.Node) (sq.Sqlizer, error) {
	if node == nil {
		return nil, nil
	}

	switch n := node.(type) {
	case query.Comparison:
		return lowerComparison(e, n)
	case query.Logical:
		return lowerLogical(e, n)
	case query.Spatial:
		return lowerSpatial(e, n)
	default:
		return nil, fmt.Errorf("unsupported predicate node %T", node)
	}
}

func lowerLogical(e *entity.Entity, n query.Logical) (sq.Sqlizer, error) {
	children := make([]sq.Sqlizer, 0, len(n.Children))
	for _, child := range n.Children {
		cond, err := LowerPredicate(e, child)
		if err != nil {
			return nil, err
		}
		if cond != nil {
			children = append(children, cond)
		}
	}
	if len(children) == 0 {
		return nil, nil
	}

	switch n.Op {
	case query.LogicalAnd:
		if len(children) == 1 {
			return children[0], nil
		}
		return sq.And(children), nil
	case query.LogicalOr:
		if len(children) == 1 {
			return children[0], nil
		}
		return sq.Or(children), nil
	case query.LogicalNot:
		inner, args, err := children[0].ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr(fmt.Sprintf("NOT (%s)", inner), args...), nil
	default:
		return nil, fmt.Errorf("unsupported logical operator %s", n.Op)
	}
}

func lowerComparison(e *entity.Entity, n query.Comparison) (sq.Sqlizer, error) {
	col := sqlutil.QuoteIdentifier(e.Column(n.Field))

	switch n.Op {
	case query.OpEq:
		return sq.Eq{col: n.Operand}, nil
	case query.OpNe:
		return sq.NotEq{col: n.Operand}, nil
	case query.OpIn:
		arr, ok := n.Operand.([]any)
		if !ok {
			return nil, fmt.Errorf("operator %s requires an array", n.Op)
		}
		return sq.Eq{col: arr}, nil
	case query.OpNin:
		arr, ok := n.Operand.([]any)
		if !ok {
			return nil, fmt.Errorf("operator %s requires an array", n.Op)
		}
		return sq.NotEq{col: arr}, nil
	case query.OpLt:
		return sq.Lt{col: n.Operand}, nil
	case query.OpGt:
		return sq.Gt{col: n.Operand}, nil
	case query.OpLe:
		return sq.LtOrEq{col: n.Operand}, nil
	case query.OpGe:
		return sq.GtOrEq{col: n.Operand}, nil
	case query.OpExists:
		exists, ok := n.Operand.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %s requires a boolean", n.Op)
		}
		if exists {
			return sq.NotEq{col: nil}, nil
		}
		return sq.Eq{col: nil}, nil
	case query.OpLike:
		return sq.Expr(fmt.Sprintf("%s LIKE BINARY ?", col), n.Operand), nil
	case query.OpILike:
		return sq.Expr(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", col), n.Operand), nil
	case query.OpContains:
		pattern, err := containsPattern(n.Operand)
		if err != nil {
			return nil, err
		}
		return sq.Expr(fmt.Sprintf("%s LIKE BINARY ?", col), pattern), nil
	case query.OpIContains:
		pattern, err := containsPattern(n.Operand)
		if err != nil {
			return nil, err
		}
		return sq.Expr(fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", col), pattern), nil
	default:
		return nil, fmt.Errorf("unsupported comparison operator %s", n.Op)
	}
}

func containsPattern(operand any) (string, error) {
	s, ok := operand.(string)
	if !ok {
		return "", fmt.Errorf("contains operators require a string")
	}
	return "%" + sqlutil.EscapeLikePattern(s) + "%", nil
}

var spatialFunctions = map[query.Operator]string{
	query.OpGeoContains:   "ST_Contains",
	query.OpGeoEquals:     "ST_Equals",
	query.OpGeoIntersects: "ST_Intersects",
	query.OpGeoOverlaps:   "ST_Overlaps",
	query.OpGeoTouches:    "ST_Touches",
	query.OpGeoWithin:     "ST_Within",
}

func lowerSpatial(e *entity.Entity, n query.Spatial) (sq.Sqlizer, error) {
	col := sqlutil.QuoteIdentifier(e.Column(n.Field))
	geojson, err := geometryJSON(n.Geometry)
	if err != nil {
		return nil, err
	}

	if n.Op == query.OpGeoDWithin {
		expr := fmt.Sprintf("ST_Distance(%s, ST_GeomFromGeoJSON(?)) <= ?", col)
		return sq.Expr(expr, geojson, n.Distance), nil
	}

	fn, ok := spatialFunctions[n.Op]
	if !ok {
		return nil, fmt.Errorf("unsupported spatial operator %s", n.Op)
	}
	return sq.Expr(fmt.Sprintf("%s(%s, ST_GeomFromGeoJSON(?))", fn, col), geojson), nil
}

func geometryJSON(g query.Geometry) (string, error) {
	raw, err := json.Marshal(map[string]any{
		"type":        g.Type,
		"coordinates": g.Coordinates,
	})
	if err != nil {
		return "", fmt.Errorf("invalid geometry operand: %w", err)
	}
	return string(raw), nil
}

// PredicateFields returns the set of field names referenced anywhere in a
// predicate tree, sorted. Useful for logging and guardrails.
func PredicateFields(node query.Node) []string {
	seen := make(map[string]struct{})
	var walk func(query.Node)
	walk = func(n query.Node) {
		switch v := n.(type) {
		case query.Comparison:
			seen[v.Field] = struct{}{}
		case query.Spatial:
			seen[v.Field] = struct{}{}
		case query.Logical:
			for _, child := range v.Children {
				walk(child)
			}
		}
	}
	if node != nil {
		walk(node)
	}

	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
