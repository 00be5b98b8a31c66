package planner

import (
	"strings"

	"tidb-rest/internal/entity"
	"tidb-rest/internal/query"
	"tidb-rest/internal/sqlutil"
)

// OrderClause is one resolved sort term.
type OrderClause struct {
	Field      string
	Descending bool
}

// ParseSort resolves a sort_by parameter into order clauses. Terms are
// comma separated and optionally prefixed with '-' for descending.
// Names outside the allow-list are skipped; when nothing survives the
// default sort applies.
func ParseSort(param string, allowed query.AllowList, defaultSort string) []OrderClause {
	var out []OrderClause
	for _, term := range strings.Split(param, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(term, "-") {
			term = term[1:]
			desc = true
		}
		if !allowed.Contains(term) {
			continue
		}
		out = append(out, OrderClause{Field: term, Descending: desc})
	}

	if len(out) == 0 && defaultSort != "" {
		field := defaultSort
		desc := false
		if strings.HasPrefix(field, "-") {
			field = field[1:]
			desc = true
		}
		out = append(out, OrderClause{Field: field, Descending: desc})
	}
	return out
}

// orderBySQL renders order clauses against storage columns.
func orderBySQL(e *entity.Entity, clauses []OrderClause) []string {
	out := make([]string, 0, len(clauses))
	for _, c := range clauses {
		dir := "ASC"
		if c.Descending {
			dir = "DESC"
		}
		out = append(out, sqlutil.QuoteIdentifier(e.Column(c.Field))+" "+dir)
	}
	return out
}
