package query

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/observability"
	"github.com/pbaumard/FROST-Server/internal/persistence"
)

// CompiledQuery is a query ready to run against the database.
type CompiledQuery struct {
	EntityType *model.EntityType
	Table      *persistence.Table
	// Properties are decoded into every returned entity
	Properties []*model.Property
	Top        int
	Skip       int
	Count      bool

	query   Query
	fields  []int
	builder *queryBuilder
	counter *queryBuilder
	obs     *observability.Config
	logger  *slog.Logger
}

// SQL returns the SELECT statement. It requests one row more than Top to
// detect whether a next page exists.
func (q *CompiledQuery) SQL() (string, []any) {
	return q.builder.ToSQL()
}

// CountSQL returns the statement counting all matching rows.
func (q *CompiledQuery) CountSQL() (string, []any) {
	return q.counter.ToCountSQL()
}

// Execute runs the query and decodes the rows into an entity set. Decoding
// stops early when ds exceeds its limit; the set then links to the rest.
func (q *CompiledQuery) Execute(ctx context.Context, db Queryer, ds *persistence.DataSize) (*model.EntitySet, error) {
	ctx, op := q.obs.StartQuery(ctx, q.EntityType.Name())
	set, err := q.execute(ctx, db, ds)
	rows := 0
	if set != nil {
		rows = set.Len()
	}
	op.End(ctx, rows, err)
	return set, err
}

func (q *CompiledQuery) execute(ctx context.Context, db Queryer, ds *persistence.DataSize) (*model.EntitySet, error) {
	set := model.NewEntitySet(q.EntityType)
	more, err := q.read(ctx, db, ds, set)
	if err != nil {
		return nil, err
	}
	if more {
		set.SetNextLink(q.nextLink(set.Len()))
	}
	if q.Count {
		count, err := q.counter.CountContext(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", q.EntityType.PluralName(), err)
		}
		set.SetCount(count)
	}
	return set, nil
}

// read decodes rows into set and reports whether more rows are available.
func (q *CompiledQuery) read(ctx context.Context, db Queryer, ds *persistence.DataSize, set *model.EntitySet) (bool, error) {
	rows, err := q.builder.QueryContext(ctx, db)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", q.EntityType.PluralName(), err)
	}
	defer rows.Close()

	reg := q.Table.PropertyFieldRegistry()
	values := make([]any, len(q.fields))
	dest := make([]any, len(q.fields))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if set.Len() >= q.Top {
			return true, nil
		}
		if err := rows.Scan(dest...); err != nil {
			return false, fmt.Errorf("failed to scan %s: %w", q.EntityType.Name(), err)
		}
		rec := q.Table.NewRecord()
		for i, idx := range q.fields {
			rec[idx] = values[i]
		}
		e := model.NewEntity(q.EntityType)
		if err := reg.Decode(rec, e, q.Properties, ds); err != nil {
			return false, err
		}
		if err := set.Add(e); err != nil {
			return false, err
		}
		if ds.HasExceeded() {
			q.logger.Debug("Response size limit reached", "entityType", q.EntityType.Name(), "size", ds.Total(), "entities", set.Len())
			return true, rows.Err()
		}
	}
	return false, rows.Err()
}

// nextLink builds the relative URL of the page after the read entities.
func (q *CompiledQuery) nextLink(read int) string {
	params := []string{
		"$top=" + strconv.Itoa(q.Top),
		"$skip=" + strconv.Itoa(q.Skip+read),
	}
	if q.query.Filter != nil {
		params = append(params, "$filter="+url.QueryEscape(q.query.Filter.URL()))
	}
	if len(q.query.OrderBy) > 0 {
		terms := make([]string, len(q.query.OrderBy))
		for i, ob := range q.query.OrderBy {
			terms[i] = ob.Expr.URL()
			if ob.Descending {
				terms[i] += " desc"
			}
		}
		params = append(params, "$orderby="+url.QueryEscape(strings.Join(terms, ",")))
	}
	if len(q.query.Select) > 0 {
		params = append(params, "$select="+url.QueryEscape(strings.Join(q.query.Select, ",")))
	}
	if q.Count {
		params = append(params, "$count=true")
	}
	return q.EntityType.PluralName() + "?" + strings.Join(params, "&")
}
