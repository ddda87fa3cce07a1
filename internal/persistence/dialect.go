package persistence

import (
	"fmt"
	"strings"
)

// Dialect names the SQL flavour of the database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect accepts the names used in configuration.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported dialect '%s'", name)
	}
}

// Quote quotes an identifier. Both supported dialects use double quotes.
func (d Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteColumn quotes alias.column.
func (d Dialect) QuoteColumn(alias, column string) string {
	if alias == "" {
		return d.Quote(column)
	}
	return d.Quote(alias) + "." + d.Quote(column)
}

// JSONPath returns an expression extracting the member at path from the JSON
// text column col, together with its arguments.
func (d Dialect) JSONPath(col string, path []string) (string, []any) {
	if d == DialectPostgres {
		args := make([]any, len(path))
		marks := make([]string, len(path))
		for i, p := range path {
			args[i] = p
			marks[i] = "?"
		}
		return "jsonb_extract_path_text(" + col + "::jsonb, " + strings.Join(marks, ", ") + ")", args
	}
	var sb strings.Builder
	sb.WriteByte('$')
	for _, p := range path {
		sb.WriteString(`."` + strings.ReplaceAll(p, `"`, `\"`) + `"`)
	}
	return "json_extract(" + col + ", ?)", []any{sb.String()}
}
