// Package planner lowers compiled predicate trees and request parameters
// into engine-native SQL statements. It is the only layer that knows how
// the REST surface maps onto tables and columns; execution lives in the
// store.
package planner

import (
	"tidb-rest/internal/entity"
	"tidb-rest/internal/sqlutil"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// fieldColumns maps field names to quoted storage columns in order.
func fieldColumns(e *entity.Entity, fields []string) []string {
	cols := make([]string, len(fields))
	for i, name := range fields {
		cols[i] = sqlutil.QuoteIdentifier(e.Column(name))
	}
	return cols
}
