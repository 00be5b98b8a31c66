package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tidb-rest/internal/entity"
	"tidb-rest/internal/query"
	"tidb-rest/internal/sqlutil"
)

// ListFilters defines the list-style filters applied to collection plans.
type ListFilters struct {
	Where   query.Node
	OrderBy []OrderClause
	Limit   *uint64
	Offset  *uint64
}

// PlanList builds SQL for a filtered, sorted, paginated collection read.
func PlanList(e *entity.Entity, fields []string, filters *ListFilters) (SQLQuery, error) {
	builder := sq.Select(fieldColumns(e, fields)...).
		From(sqlutil.QuoteIdentifier(e.Table))

	if filters != nil {
		if filters.Where != nil {
			pred, err := LowerPredicate(e, filters.Where)
			if err != nil {
				return SQLQuery{}, err
			}
			builder = builder.Where(pred)
		}
		if len(filters.OrderBy) > 0 {
			builder = builder.OrderBy(orderBySQL(e, filters.OrderBy)...)
		}
		if filters.Limit != nil {
			builder = builder.Limit(*filters.Limit)
		}
		if filters.Offset != nil {
			builder = builder.Offset(*filters.Offset)
		}
	}

	sql, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanCount builds SQL counting the rows a filter matches.
func PlanCount(e *entity.Entity, where query.Node) (SQLQuery, error) {
	builder := sq.Select("COUNT(*)").
		From(sqlutil.QuoteIdentifier(e.Table))

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

// PlanByPK builds SQL for a primary key lookup.
func PlanByPK(e *entity.Entity, fields []string, pkValue interface{}) (SQLQuery, error) {
	sql, args, err := sq.Select(fieldColumns(e, fields)...).
		From(sqlutil.QuoteIdentifier(e.Table)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(e.PrimaryKeyColumn()): pkValue}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanInsert builds SQL inserting one row from storage-column values.
func PlanInsert(e *entity.Entity, values map[string]interface{}) (SQLQuery, error) {
	if len(values) == 0 {
		sql := fmt.Sprintf("INSERT INTO %s () VALUES ()", sqlutil.QuoteIdentifier(e.Table))
		return SQLQuery{SQL: sql, Args: nil}, nil
	}

	cols := make([]string, 0, len(values))
	for _, f := range e.FieldNames() {
		if _, ok := values[f]; ok {
			cols = append(cols, f)
		}
	}
	if len(cols) != len(values) {
		return SQLQuery{}, fmt.Errorf("insert values reference unknown fields")
	}

	quoted := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, f := range cols {
		quoted[i] = sqlutil.QuoteIdentifier(e.Column(f))
		args[i] = values[f]
	}

	sql, args, err := sq.Insert(sqlutil.QuoteIdentifier(e.Table)).
		Columns(quoted...).
		Values(args...).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanUpdate builds SQL updating one row by primary key.
func PlanUpdate(e *entity.Entity, pkValue interface{}, values map[string]interface{}) (SQLQuery, error) {
	if len(values) == 0 {
		return SQLQuery{}, fmt.Errorf("update set cannot be empty")
	}

	setMap := make(map[string]interface{}, len(values))
	for f, v := range values {
		if !e.Has(f) {
			return SQLQuery{}, fmt.Errorf("update references unknown field %q", f)
		}
		setMap[sqlutil.QuoteIdentifier(e.Column(f))] = v
	}

	sql, args, err := sq.Update(sqlutil.QuoteIdentifier(e.Table)).
		SetMap(setMap).
		Where(sq.Eq{sqlutil.QuoteIdentifier(e.PrimaryKeyColumn()): pkValue}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanDelete builds SQL deleting one row by primary key.
func PlanDelete(e *entity.Entity, pkValue interface{}) (SQLQuery, error) {
	sql, args, err := sq.Delete(sqlutil.QuoteIdentifier(e.Table)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(e.PrimaryKeyColumn()): pkValue}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}
