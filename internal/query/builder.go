package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pbaumard/FROST-Server/internal/persistence"
)

// Queryer is the part of *sql.DB and *sql.Tx used to run compiled queries.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queryBuilder accumulates the SQL clauses of one SELECT statement.
type queryBuilder struct {
	dialect  persistence.Dialect
	table    string
	alias    string
	wheres   []clause
	joins    []string
	selects  []string
	orderBys []clause
	limit    *int
	offset   int
	logger   *slog.Logger
}

// clause is a SQL fragment with parameterized arguments
type clause struct {
	sql  string
	args []any
}

func newQueryBuilder(dialect persistence.Dialect) *queryBuilder {
	return &queryBuilder{
		dialect: dialect,
		logger:  slog.Default(),
	}
}

// WithTable sets the table and the alias it is referenced by
func (qb *queryBuilder) WithTable(table, alias string) *queryBuilder {
	qb.table = table
	qb.alias = alias
	return qb
}

// Where adds a WHERE condition to the query
func (qb *queryBuilder) Where(sql string, args ...any) *queryBuilder {
	qb.wheres = append(qb.wheres, clause{sql: sql, args: args})
	return qb
}

// Join adds a JOIN clause to the query
func (qb *queryBuilder) Join(sql ...string) *queryBuilder {
	qb.joins = append(qb.joins, sql...)
	return qb
}

// Select sets the SELECT columns for the query
func (qb *queryBuilder) Select(cols ...string) *queryBuilder {
	qb.selects = append(qb.selects, cols...)
	return qb
}

// OrderBy adds an ORDER BY term to the query
func (qb *queryBuilder) OrderBy(order string, args ...any) *queryBuilder {
	qb.orderBys = append(qb.orderBys, clause{sql: order, args: args})
	return qb
}

// Limit sets the LIMIT for the query
func (qb *queryBuilder) Limit(n int) *queryBuilder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET for the query
func (qb *queryBuilder) Offset(n int) *queryBuilder {
	qb.offset = n
	return qb
}

// WithLogger sets the logger for the query builder
func (qb *queryBuilder) WithLogger(logger *slog.Logger) *queryBuilder {
	if logger != nil {
		qb.logger = logger
	}
	return qb
}

// Clone creates a shallow copy of the query builder
func (qb *queryBuilder) Clone() *queryBuilder {
	clone := &queryBuilder{
		dialect:  qb.dialect,
		table:    qb.table,
		alias:    qb.alias,
		wheres:   append([]clause{}, qb.wheres...),
		joins:    append([]string{}, qb.joins...),
		selects:  append([]string{}, qb.selects...),
		orderBys: append([]clause{}, qb.orderBys...),
		offset:   qb.offset,
		logger:   qb.logger,
	}
	if qb.limit != nil {
		limitCopy := *qb.limit
		clone.limit = &limitCopy
	}
	return clone
}

func (qb *queryBuilder) writeFrom(sql *strings.Builder, args *[]any) {
	if qb.table != "" {
		sql.WriteString(" FROM ")
		sql.WriteString(qb.dialect.Quote(qb.table))
		if qb.alias != "" {
			sql.WriteString(" AS ")
			sql.WriteString(qb.dialect.Quote(qb.alias))
		}
	}

	for _, join := range qb.joins {
		sql.WriteString(" ")
		sql.WriteString(join)
	}

	if len(qb.wheres) > 0 {
		sql.WriteString(" WHERE ")
		whereClauses := make([]string, 0, len(qb.wheres))
		for _, w := range qb.wheres {
			whereClauses = append(whereClauses, w.sql)
			*args = append(*args, w.args...)
		}
		sql.WriteString(strings.Join(whereClauses, " AND "))
	}
}

// ToSQL builds the final SELECT SQL statement with parameterized arguments
func (qb *queryBuilder) ToSQL() (string, []any) {
	query, args := qb.toSQL()
	return qb.placeholders(query), args
}

// toSQL builds the statement with ? placeholders, for embedding as a subquery
func (qb *queryBuilder) toSQL() (string, []any) {
	var sql strings.Builder
	var args []any

	sql.WriteString("SELECT ")
	if len(qb.selects) > 0 {
		sql.WriteString(strings.Join(qb.selects, ", "))
	} else {
		sql.WriteString("*")
	}

	qb.writeFrom(&sql, &args)

	if len(qb.orderBys) > 0 {
		sql.WriteString(" ORDER BY ")
		orders := make([]string, 0, len(qb.orderBys))
		for _, o := range qb.orderBys {
			orders = append(orders, o.sql)
			args = append(args, o.args...)
		}
		sql.WriteString(strings.Join(orders, ", "))
	}

	if qb.limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT %d", *qb.limit))
	} else if qb.offset > 0 && qb.dialect == persistence.DialectSQLite {
		// SQLite only accepts OFFSET after a LIMIT
		sql.WriteString(" LIMIT -1")
	}

	if qb.offset > 0 {
		sql.WriteString(fmt.Sprintf(" OFFSET %d", qb.offset))
	}

	return sql.String(), args
}

// ToCountSQL builds a COUNT(*) query based on the current query builder state
func (qb *queryBuilder) ToCountSQL() (string, []any) {
	var sql strings.Builder
	var args []any

	sql.WriteString("SELECT COUNT(*)")
	qb.writeFrom(&sql, &args)

	return qb.placeholders(sql.String()), args
}

func (qb *queryBuilder) placeholders(query string) string {
	if qb.dialect == persistence.DialectPostgres {
		return convertToPostgresPlaceholders(query)
	}
	return query
}

// QueryContext executes the query and returns the result rows
func (qb *queryBuilder) QueryContext(ctx context.Context, db Queryer) (*sql.Rows, error) {
	query, args := qb.ToSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing query", "sql", query, "args", args)
	}

	return db.QueryContext(ctx, query, args...)
}

// CountContext executes the count query and returns the count
func (qb *queryBuilder) CountContext(ctx context.Context, db Queryer) (int64, error) {
	query, args := qb.ToCountSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing count query", "sql", query, "args", args)
	}

	var count int64
	err := db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// convertToPostgresPlaceholders converts ? placeholders to $1, $2, ... for PostgreSQL
func convertToPostgresPlaceholders(query string) string {
	var result strings.Builder
	placeholderNum := 1
	inString := false

	for i := 0; i < len(query); i++ {
		switch {
		case query[i] == '\'':
			inString = !inString
			result.WriteByte(query[i])
		case query[i] == '?' && !inString:
			result.WriteString(fmt.Sprintf("$%d", placeholderNum))
			placeholderNum++
		default:
			result.WriteByte(query[i])
		}
	}

	return result.String()
}
