// Package store executes planned SQL against the database and maps rows
// back into field-keyed records.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"tidb-rest/internal/dbexec"
	"tidb-rest/internal/entity"
	"tidb-rest/internal/planner"
	"tidb-rest/internal/query"
)

// ErrNotFound indicates a primary key lookup matched no row.
var ErrNotFound = errors.New("record not found")

// Record is one row keyed by exposed field name.
type Record map[string]any

// GroupBucket is one distinct value and its row count.
type GroupBucket struct {
	Value any   `json:"value"`
	Count int64 `json:"count"`
}

// FieldStats carries the min/max/avg aggregates for one field.
type FieldStats struct {
	Min any `json:"min"`
	Max any `json:"max"`
	Avg any `json:"avg"`
}

// Store runs planned statements through an executor.
type Store struct {
	exec dbexec.QueryExecutor
}

// New creates a Store over the given executor.
func New(exec dbexec.QueryExecutor) *Store {
	return &Store{exec: exec}
}

// Select runs a collection read and returns the matching records.
func (s *Store) Select(ctx context.Context, e *entity.Entity, fields []string, filters *planner.ListFilters) ([]Record, error) {
	planned, err := planner.PlanList(e, fields, filters)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, e, fields)
}

// Count returns the number of rows a filter matches.
func (s *Store) Count(ctx context.Context, e *entity.Entity, where query.Node) (int64, error) {
	planned, err := planner.PlanCount(e, where)
	if err != nil {
		return 0, err
	}
	rows, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, rows.Err()
}

// GetByPK returns the record with the given primary key, or ErrNotFound.
func (s *Store) GetByPK(ctx context.Context, e *entity.Entity, fields []string, pk any) (Record, error) {
	planned, err := planner.PlanByPK(e, fields, pk)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows, e, fields)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Insert writes one row and returns the engine-assigned row id.
func (s *Store) Insert(ctx context.Context, e *entity.Entity, values map[string]any) (int64, error) {
	planned, err := planner.PlanInsert(e, values)
	if err != nil {
		return 0, err
	}
	result, err := s.exec.ExecContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Update rewrites the given fields of one row. ErrNotFound is returned
// when no row carries the primary key.
func (s *Store) Update(ctx context.Context, e *entity.Entity, pk any, values map[string]any) error {
	planned, err := planner.PlanUpdate(e, pk, values)
	if err != nil {
		return err
	}
	result, err := s.exec.ExecContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return err
	}
	return s.requireExisting(ctx, e, pk, result)
}

// Delete removes one row by primary key, or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, e *entity.Entity, pk any) error {
	planned, err := planner.PlanDelete(e, pk)
	if err != nil {
		return err
	}
	result, err := s.exec.ExecContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// requireExisting distinguishes "no such row" from "update changed
// nothing": an UPDATE that writes the values already present reports
// zero affected rows on MySQL, so a follow-up lookup settles it.
func (s *Store) requireExisting(ctx context.Context, e *entity.Entity, pk any, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	_, err = s.GetByPK(ctx, e, []string{e.PrimaryKey}, pk)
	return err
}

// Group counts rows per distinct value of one field, ordered by count.
func (s *Store) Group(ctx context.Context, e *entity.Entity, field string, where query.Node, ascending bool) ([]GroupBucket, error) {
	planned, err := planner.PlanGroup(e, field, where, ascending)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	f, _ := e.Field(field)
	buckets := []GroupBucket{}
	for rows.Next() {
		var value any
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, err
		}
		buckets = append(buckets, GroupBucket{Value: f.Render(value), Count: count})
	}
	return buckets, rows.Err()
}

// Stats computes min/max/avg for each requested field in one statement.
func (s *Store) Stats(ctx context.Context, e *entity.Entity, fields []string, where query.Node) (map[string]FieldStats, error) {
	cols := planner.StatsColumns(e, fields)
	planned, err := planner.PlanStats(e, cols, where)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]FieldStats, len(fields))
	if !rows.Next() {
		return stats, rows.Err()
	}

	values := make([]any, len(cols))
	valuePtrs := make([]any, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	for i, col := range cols {
		entry := stats[col.FieldName]
		value, err := statValue(e, col, values[i])
		if err != nil {
			return nil, err
		}
		switch col.ResultKey {
		case "min":
			entry.Min = value
		case "max":
			entry.Max = value
		case "avg":
			entry.Avg = value
		}
		stats[col.FieldName] = entry
	}
	return stats, rows.Err()
}

// Sample returns up to limit records in random order.
func (s *Store) Sample(ctx context.Context, e *entity.Entity, fields []string, where query.Node, limit uint64) ([]Record, error) {
	planned, err := planner.PlanSample(e, fields, where, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, e, fields)
}

func scanRecords(rows dbexec.Rows, e *entity.Entity, fields []string) ([]Record, error) {
	var records []Record

	for rows.Next() {
		values := make([]any, len(fields))
		valuePtrs := make([]any, len(fields))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(fields))
		for i, name := range fields {
			f, _ := e.Field(name)
			record[name] = f.Render(values[i])
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// statValue scans an aggregate cell: AVG always comes back numeric,
// MIN/MAX keep the field's own rendering.
func statValue(e *entity.Entity, col planner.StatsColumn, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if col.ValueType == planner.StatsFloat {
		switch v := raw.(type) {
		case float64:
			return v, nil
		case []byte:
			parsed, err := strconv.ParseFloat(string(v), 64)
			if err != nil {
				return nil, fmt.Errorf("stats value for %s: %w", col.FieldName, err)
			}
			return parsed, nil
		case int64:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("stats value for %s: unexpected type %T", col.FieldName, raw)
		}
	}
	f, _ := e.Field(col.FieldName)
	return f.Render(raw), nil
}
