package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tidb-rest/internal/entity"
	"tidb-rest/internal/query"
	"tidb-rest/internal/sqlutil"
)

// GroupValueAlias and GroupCountAlias are the scan aliases emitted by group plans.
const (
	GroupValueAlias = "value"
	GroupCountAlias = "count"
)

// StatsValueType indicates how to scan a stats result value.
type StatsValueType int

const (
	// StatsFloat is for AVG - returns float (nullable).
	StatsFloat StatsValueType = iota
	// StatsAny is for MIN, MAX - can return any comparable type.
	StatsAny
)

// StatsColumn represents a single stats computation with the metadata needed
// for both SQL generation and result scanning. The slice returned by
// StatsColumns is the single source of truth for column ordering, keeping
// SELECT clauses and scan destinations in sync.
type StatsColumn struct {
	SQLClause string         // SQL fragment, e.g., "AVG(`priority`) AS `__avg_priority`"
	ResultKey string         // Result key within the field's stats object: "min", "max", "avg"
	FieldName string         // Exposed field the stat was computed over
	ValueType StatsValueType // Determines how to scan the value
}

// StatsColumns builds the MIN/MAX/AVG column set for the requested fields,
// in request order.
func StatsColumns(e *entity.Entity, fields []string) []StatsColumn {
	cols := make([]StatsColumn, 0, len(fields)*3)
	for _, f := range fields {
		quoted := sqlutil.QuoteIdentifier(e.Column(f))
		cols = append(cols,
			StatsColumn{
				SQLClause: fmt.Sprintf("MIN(%s) AS %s", quoted, sqlutil.QuoteIdentifier("__min_"+f)),
				ResultKey: "min",
				FieldName: f,
				ValueType: StatsAny,
			},
			StatsColumn{
				SQLClause: fmt.Sprintf("MAX(%s) AS %s", quoted, sqlutil.QuoteIdentifier("__max_"+f)),
				ResultKey: "max",
				FieldName: f,
				ValueType: StatsAny,
			},
			StatsColumn{
				SQLClause: fmt.Sprintf("AVG(%s) AS %s", quoted, sqlutil.QuoteIdentifier("__avg_"+f)),
				ResultKey: "avg",
				FieldName: f,
				ValueType: StatsFloat,
			},
		)
	}
	return cols
}

// PlanGroup builds SQL counting rows per distinct value of one field.
// Buckets are ordered by count, descending unless ascending is set, so
// the largest groups lead by default.
func PlanGroup(e *entity.Entity, field string, where query.Node, ascending bool) (SQLQuery, error) {
	dir := "DESC"
	if ascending {
		dir = "ASC"
	}
	quoted := sqlutil.QuoteIdentifier(e.Column(field))
	builder := sq.Select(
		fmt.Sprintf("%s AS %s", quoted, sqlutil.QuoteIdentifier(GroupValueAlias)),
		fmt.Sprintf("COUNT(*) AS %s", sqlutil.QuoteIdentifier(GroupCountAlias)),
	).
		From(sqlutil.QuoteIdentifier(e.Table)).
		GroupBy(quoted).
		OrderBy(sqlutil.QuoteIdentifier(GroupCountAlias) + " " + dir)

	if where != nil {
		pred, err := LowerPredicate(e, where)
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.Where(pred)
	}

	sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanStats builds SQL computing the provided stats columns in one pass.
func PlanStats(e *entity.Entity, cols []StatsColumn, where query.Node) (SQLQuery, error) {
	if len(cols) == 0 {
		return SQLQuery{}, fmt.Errorf("stats column set cannot be empty")
	}

	clauses := make([]string, len(cols))
	for i, c := range cols {
		clauses[i] = c.SQLClause
	}

	builder := sq.Select(clauses...).From(sqlutil.QuoteIdentifier(e.Table))
	if where != nil {
		pred, err := LowerPredicate(e, where)
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.Where(pred)
	}

	sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanSample builds SQL selecting rows in random order.
func PlanSample(e *entity.Entity, fields []string, where query.Node, limit uint64) (SQLQuery, error) {
	builder := sq.Select(fieldColumns(e, fields)...).
		From(sqlutil.QuoteIdentifier(e.Table)).
		OrderBy("RAND()").
		Limit(limit)

	if where != nil {
		pred, err := LowerPredicate(e, where)
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.Where(pred)
	}

	sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}
