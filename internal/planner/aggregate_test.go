package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-rest/internal/query"
)

func TestPlanGroup(t *testing.T) {
	e := todoEntity(t)

	t.Run("no filter", func(t *testing.T) {
		planned, err := PlanGroup(e, "is_completed", nil, false)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT `completed` AS `value`, COUNT(*) AS `count` FROM `todos` GROUP BY `completed` ORDER BY `count` DESC",
			planned.SQL)
		assert.Empty(t, planned.Args)
	})

	t.Run("ascending count", func(t *testing.T) {
		planned, err := PlanGroup(e, "is_completed", nil, true)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT `completed` AS `value`, COUNT(*) AS `count` FROM `todos` GROUP BY `completed` ORDER BY `count` ASC",
			planned.SQL)
	})

	t.Run("filter applies before grouping", func(t *testing.T) {
		planned, err := PlanGroup(e, "priority",
			query.Comparison{Field: "is_completed", Op: query.OpEq, Operand: false}, false)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT `priority` AS `value`, COUNT(*) AS `count` FROM `todos` WHERE `completed` = ? GROUP BY `priority` ORDER BY `count` DESC",
			planned.SQL)
		assert.Equal(t, []interface{}{false}, planned.Args)
	})
}

func TestStatsColumns(t *testing.T) {
	e := todoEntity(t)

	cols := StatsColumns(e, []string{"priority"})
	require.Len(t, cols, 3)
	assert.Equal(t, "MIN(`priority`) AS `__min_priority`", cols[0].SQLClause)
	assert.Equal(t, "min", cols[0].ResultKey)
	assert.Equal(t, StatsAny, cols[0].ValueType)
	assert.Equal(t, "MAX(`priority`) AS `__max_priority`", cols[1].SQLClause)
	assert.Equal(t, "AVG(`priority`) AS `__avg_priority`", cols[2].SQLClause)
	assert.Equal(t, StatsFloat, cols[2].ValueType)
	for _, c := range cols {
		assert.Equal(t, "priority", c.FieldName)
	}
}

func TestPlanStats(t *testing.T) {
	e := todoEntity(t)

	t.Run("one pass over requested fields", func(t *testing.T) {
		planned, err := PlanStats(e, StatsColumns(e, []string{"priority"}), nil)
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT MIN(`priority`) AS `__min_priority`, MAX(`priority`) AS `__max_priority`, AVG(`priority`) AS `__avg_priority` FROM `todos`",
			planned.SQL)
	})

	t.Run("filter applies", func(t *testing.T) {
		planned, err := PlanStats(e, StatsColumns(e, []string{"priority"}),
			query.Comparison{Field: "is_completed", Op: query.OpEq, Operand: true})
		require.NoError(t, err)
		assert.Contains(t, planned.SQL, "WHERE `completed` = ?")
		assert.Equal(t, []interface{}{true}, planned.Args)
	})

	t.Run("empty column set rejected", func(t *testing.T) {
		_, err := PlanStats(e, nil, nil)
		require.Error(t, err)
	})
}

func TestPlanSample(t *testing.T) {
	e := todoEntity(t)

	planned, err := PlanSample(e, []string{"id", "title"}, nil, 20)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id`, `title` FROM `todos` ORDER BY RAND() LIMIT 20", planned.SQL)

	planned, err = PlanSample(e, []string{"id"},
		query.Comparison{Field: "priority", Op: query.OpLt, Operand: float64(3)}, 5)
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id` FROM `todos` WHERE `priority` < ? ORDER BY RAND() LIMIT 5", planned.SQL)
	assert.Equal(t, []interface{}{float64(3)}, planned.Args)
}
