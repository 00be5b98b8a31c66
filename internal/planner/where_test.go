package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-rest/internal/query"
)

func lowerToSQL(t *testing.T, node query.Node) (string, []interface{}) {
	t.Helper()
	e := todoEntity(t)
	cond, err := LowerPredicate(e, node)
	require.NoError(t, err)
	require.NotNil(t, cond)
	sql, args, err := cond.ToSql()
	require.NoError(t, err)
	return sql, args
}

func TestLowerComparison(t *testing.T) {
	tests := []struct {
		name     string
		node     query.Node
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "eq",
			node:     query.Comparison{Field: "title", Op: query.OpEq, Operand: "a"},
			wantSQL:  "`title` = ?",
			wantArgs: []interface{}{"a"},
		},
		{
			name:     "eq null",
			node:     query.Comparison{Field: "title", Op: query.OpEq, Operand: nil},
			wantSQL:  "`title` IS NULL",
			wantArgs: nil,
		},
		{
			name:     "ne",
			node:     query.Comparison{Field: "priority", Op: query.OpNe, Operand: float64(3)},
			wantSQL:  "`priority` <> ?",
			wantArgs: []interface{}{float64(3)},
		},
		{
			name:     "in",
			node:     query.Comparison{Field: "priority", Op: query.OpIn, Operand: []any{float64(1), float64(2)}},
			wantSQL:  "`priority` IN (?,?)",
			wantArgs: []interface{}{float64(1), float64(2)},
		},
		{
			name:     "nin",
			node:     query.Comparison{Field: "priority", Op: query.OpNin, Operand: []any{float64(1)}},
			wantSQL:  "`priority` NOT IN (?)",
			wantArgs: []interface{}{float64(1)},
		},
		{
			name:     "lt",
			node:     query.Comparison{Field: "priority", Op: query.OpLt, Operand: float64(5)},
			wantSQL:  "`priority` < ?",
			wantArgs: []interface{}{float64(5)},
		},
		{
			name:     "ge",
			node:     query.Comparison{Field: "priority", Op: query.OpGe, Operand: float64(5)},
			wantSQL:  "`priority` >= ?",
			wantArgs: []interface{}{float64(5)},
		},
		{
			name:     "exists true",
			node:     query.Comparison{Field: "title", Op: query.OpExists, Operand: true},
			wantSQL:  "`title` IS NOT NULL",
			wantArgs: nil,
		},
		{
			name:     "exists false",
			node:     query.Comparison{Field: "title", Op: query.OpExists, Operand: false},
			wantSQL:  "`title` IS NULL",
			wantArgs: nil,
		},
		{
			name:     "like is case sensitive",
			node:     query.Comparison{Field: "title", Op: query.OpLike, Operand: "Re%"},
			wantSQL:  "`title` LIKE BINARY ?",
			wantArgs: []interface{}{"Re%"},
		},
		{
			name:     "ilike folds case",
			node:     query.Comparison{Field: "title", Op: query.OpILike, Operand: "re%"},
			wantSQL:  "LOWER(`title`) LIKE LOWER(?)",
			wantArgs: []interface{}{"re%"},
		},
		{
			name:     "contains escapes wildcards",
			node:     query.Comparison{Field: "title", Op: query.OpContains, Operand: "50%"},
			wantSQL:  "`title` LIKE BINARY ?",
			wantArgs: []interface{}{"%50\\%%"},
		},
		{
			name:     "icontains",
			node:     query.Comparison{Field: "title", Op: query.OpIContains, Operand: "re"},
			wantSQL:  "LOWER(`title`) LIKE LOWER(?)",
			wantArgs: []interface{}{"%re%"},
		},
		{
			name:     "column mapping applies",
			node:     query.Comparison{Field: "is_completed", Op: query.OpEq, Operand: true},
			wantSQL:  "`completed` = ?",
			wantArgs: []interface{}{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := lowerToSQL(t, tt.node)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestLowerComparisonErrors(t *testing.T) {
	e := todoEntity(t)

	_, err := LowerPredicate(e, query.Comparison{Field: "priority", Op: query.OpIn, Operand: "not a list"})
	require.Error(t, err)

	_, err = LowerPredicate(e, query.Comparison{Field: "title", Op: query.OpExists, Operand: "yes"})
	require.Error(t, err)

	_, err = LowerPredicate(e, query.Comparison{Field: "title", Op: query.OpContains, Operand: 7})
	require.Error(t, err)
}

func TestLowerLogical(t *testing.T) {
	eqTitle := query.Comparison{Field: "title", Op: query.OpEq, Operand: "a"}
	gtPriority := query.Comparison{Field: "priority", Op: query.OpGt, Operand: float64(1)}

	t.Run("and", func(t *testing.T) {
		sql, args := lowerToSQL(t, query.Logical{
			Op:       query.LogicalAnd,
			Children: []query.Node{eqTitle, gtPriority},
		})
		assert.Equal(t, "(`title` = ? AND `priority` > ?)", sql)
		assert.Equal(t, []interface{}{"a", float64(1)}, args)
	})

	t.Run("or", func(t *testing.T) {
		sql, _ := lowerToSQL(t, query.Logical{
			Op:       query.LogicalOr,
			Children: []query.Node{eqTitle, gtPriority},
		})
		assert.Equal(t, "(`title` = ? OR `priority` > ?)", sql)
	})

	t.Run("single child collapses", func(t *testing.T) {
		sql, _ := lowerToSQL(t, query.Logical{
			Op:       query.LogicalAnd,
			Children: []query.Node{eqTitle},
		})
		assert.Equal(t, "`title` = ?", sql)
	})

	t.Run("not wraps inner", func(t *testing.T) {
		sql, args := lowerToSQL(t, query.Logical{
			Op:       query.LogicalNot,
			Children: []query.Node{eqTitle},
		})
		assert.Equal(t, "NOT (`title` = ?)", sql)
		assert.Equal(t, []interface{}{"a"}, args)
	})
}

func TestLowerSpatial(t *testing.T) {
	point := query.Geometry{Type: "Point", Coordinates: []any{float64(1), float64(2)}}

	t.Run("within", func(t *testing.T) {
		sql, args := lowerToSQL(t, query.Spatial{Field: "title", Op: query.OpGeoWithin, Geometry: point})
		assert.Equal(t, "ST_Within(`title`, ST_GeomFromGeoJSON(?))", sql)
		require.Len(t, args, 1)
		assert.JSONEq(t, `{"type":"Point","coordinates":[1,2]}`, args[0].(string))
	})

	t.Run("dwithin carries distance", func(t *testing.T) {
		sql, args := lowerToSQL(t, query.Spatial{Field: "title", Op: query.OpGeoDWithin, Geometry: point, Distance: 5.5})
		assert.Equal(t, "ST_Distance(`title`, ST_GeomFromGeoJSON(?)) <= ?", sql)
		require.Len(t, args, 2)
		assert.Equal(t, 5.5, args[1])
	})
}

func TestPredicateFields(t *testing.T) {
	node := query.Logical{
		Op: query.LogicalOr,
		Children: []query.Node{
			query.Comparison{Field: "title", Op: query.OpEq, Operand: "a"},
			query.Logical{
				Op: query.LogicalAnd,
				Children: []query.Node{
					query.Comparison{Field: "priority", Op: query.OpGt, Operand: float64(1)},
					query.Comparison{Field: "title", Op: query.OpNe, Operand: "b"},
				},
			},
		},
	}
	assert.Equal(t, []string{"priority", "title"}, PredicateFields(node))
	assert.Empty(t, PredicateFields(nil))
}
