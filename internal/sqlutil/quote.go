// Package sqlutil provides SQL utility functions.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QualifyColumn quotes a column, prefixing it with a quoted table or
// alias when one is given.
func QualifyColumn(qualifier, column string) string {
	if qualifier == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(qualifier) + "." + QuoteIdentifier(column)
}

// EscapeLikePattern escapes the LIKE wildcards and the escape character
// itself so user input matches literally inside a pattern.
func EscapeLikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
