// Package query compiles filter, orderby and select options over the
// registered entity types into SQL and runs the result.
package query

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/pbaumard/FROST-Server/internal/observability"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/scope"
)

const (
	// DefaultTop is the page size when a query sets none
	DefaultTop = 100
	// DefaultMaxTop caps the page size a query may request
	DefaultMaxTop = 1000
	// DefaultMaxPathLength caps the number of segments of a path
	DefaultMaxPathLength = 8

	rootAlias = "e0"
)

// OrderBy is one $orderby term.
type OrderBy struct {
	Expr       expression.Expression
	Descending bool
}

// Query holds the parsed query options of a collection request.
type Query struct {
	Filter  expression.Expression
	OrderBy []OrderBy
	// Select lists property names; empty selects every stored property
	Select []string
	Top    int
	Skip   int
	Count  bool
}

// Filter is a compiled $filter: a predicate over the root alias and the
// joins it needs.
type Filter struct {
	Where  scope.QueryScope
	Joins  []string
	ToMany bool
}

// Compiler translates expressions over registered entity types to SQL. It
// only reads the table collection and the catalog, so one compiler serves
// concurrent requests once initialization is complete.
type Compiler struct {
	tables        *persistence.TableCollection
	catalog       *expression.Catalog
	renderers     map[string]Renderer
	maxPathLength int
	defaultTop    int
	maxTop        int
	obs           *observability.Config
	logger        *slog.Logger
}

// NewCompiler creates a compiler with default limits.
func NewCompiler(tables *persistence.TableCollection, catalog *expression.Catalog) *Compiler {
	return &Compiler{
		tables:        tables,
		catalog:       catalog,
		renderers:     make(map[string]Renderer),
		maxPathLength: DefaultMaxPathLength,
		defaultTop:    DefaultTop,
		maxTop:        DefaultMaxTop,
		logger:        slog.Default(),
	}
}

// SetLogger sets the logger. A nil logger selects slog.Default().
func (c *Compiler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

// SetObservability enables tracing and metrics of compilation and execution.
func (c *Compiler) SetObservability(cfg *observability.Config) {
	c.obs = cfg
}

// SetLimits sets the maximum path length, the default page size and the
// maximum page size. Values <= 0 select the defaults.
func (c *Compiler) SetLimits(maxPathLength, defaultTop, maxTop int) {
	if maxPathLength <= 0 {
		maxPathLength = DefaultMaxPathLength
	}
	if defaultTop <= 0 {
		defaultTop = DefaultTop
	}
	if maxTop <= 0 {
		maxTop = DefaultMaxTop
	}
	if defaultTop > maxTop {
		defaultTop = maxTop
	}
	c.maxPathLength, c.defaultTop, c.maxTop = maxPathLength, defaultTop, maxTop
}

// RegisterRenderer sets the SQL translation of a function added to the
// catalog.
func (c *Compiler) RegisterRenderer(name string, r Renderer) {
	c.renderers[name] = r
}

// Catalog returns the function catalog.
func (c *Compiler) Catalog() *expression.Catalog {
	return c.catalog
}

func (c *Compiler) tableFor(et *model.EntityType) (*persistence.Table, error) {
	table, ok := c.tables.TableFor(et)
	if !ok {
		return nil, fmt.Errorf("no table registered for entity type %s", et.Name())
	}
	return table, nil
}

// CompileFilter compiles a boolean expression over et.
func (c *Compiler) CompileFilter(ctx context.Context, et *model.EntityType, filter expression.Expression) (*Filter, error) {
	_, op := c.obs.StartCompile(ctx, et.Name())
	f, err := c.compileFilter(et, filter)
	op.End(ctx, 0, err)
	return f, err
}

func (c *Compiler) compileFilter(et *model.EntityType, filter expression.Expression) (*Filter, error) {
	table, err := c.tableFor(et)
	if err != nil {
		return nil, err
	}
	pc := newPathContext(c, table)
	where, err := pc.predicate(filter)
	if err != nil {
		return nil, err
	}
	return &Filter{Where: where, Joins: pc.joins, ToMany: pc.toMany}, nil
}

// predicate compiles a filter expression, which must be boolean.
func (pc *pathContext) predicate(filter expression.Expression) (scope.QueryScope, error) {
	o, err := pc.operand(filter)
	if err != nil {
		return scope.QueryScope{}, err
	}
	if !o.typ.AssignableTo(expression.TypeBoolean) {
		return scope.QueryScope{}, newCompileError(filter.URL(), "filter must be a boolean expression, not %s", o.typ)
	}
	v, err := pc.render(o, expression.TypeBoolean, false)
	if err != nil {
		return scope.QueryScope{}, err
	}
	return scope.New(v.start.sql, v.start.args...), nil
}

// Compile translates q on et into a SELECT statement. Compilation errors
// caused by the query wrap ErrBadRequest.
func (c *Compiler) Compile(ctx context.Context, et *model.EntityType, q Query) (*CompiledQuery, error) {
	_, op := c.obs.StartCompile(ctx, et.Name())
	cq, err := c.compile(et, q)
	if err == nil {
		sql, args := cq.SQL()
		op.SetAttributes(attribute.Int("sql.length", len(sql)))
		c.logger.Debug("Compiled filter", "entityType", et.Name(), "sql", sql, "args", args)
	}
	op.End(ctx, 0, err)
	return cq, err
}

func (c *Compiler) compile(et *model.EntityType, q Query) (*CompiledQuery, error) {
	table, err := c.tableFor(et)
	if err != nil {
		return nil, err
	}
	d := c.tables.Dialect()
	idField, ok := table.IDField()
	if !ok {
		return nil, fmt.Errorf("table %s has no id field", table.Name())
	}
	idColumn := d.QuoteColumn(rootAlias, idField.Name)

	top := q.Top
	if top <= 0 {
		top = c.defaultTop
	}
	if top > c.maxTop {
		top = c.maxTop
	}
	if q.Skip < 0 {
		return nil, newCompileError("", "$skip must not be negative")
	}

	props, fields, err := c.projection(table, q.Select)
	if err != nil {
		return nil, err
	}

	qb := newQueryBuilder(d).WithTable(table.Name(), rootAlias).WithLogger(c.logger)
	pc := newPathContext(c, table)
	var filterJoins []string
	if q.Filter != nil {
		where, err := pc.predicate(q.Filter)
		if err != nil {
			return nil, err
		}
		if pc.toMany {
			// Joins along to-many relations would repeat root rows, so the
			// filter moves into a subquery on the id.
			sub := newQueryBuilder(d).WithTable(table.Name(), rootAlias).
				Select(idColumn).
				Join(pc.joins...).
				Where(where.Condition, where.Args...)
			subSQL, subArgs := sub.toSQL()
			qb.Where(idColumn+" IN ("+subSQL+")", subArgs...)
			pc = newPathContext(c, table)
		} else {
			qb.Where(where.Condition, where.Args...)
			filterJoins = pc.joins
		}
	}
	counter := qb.Clone().Join(filterJoins...)
	for _, idx := range fields {
		qb.Select(d.QuoteColumn(rootAlias, table.Field(idx).Name))
	}

	orderedByID := false
	for _, ob := range q.OrderBy {
		frags, err := pc.orderFragments(ob.Expr)
		if err != nil {
			return nil, err
		}
		if pc.toMany {
			return nil, newCompileError(ob.Expr.URL(), "can not order by a path through a to-many navigation property")
		}
		for _, f := range frags {
			if f.sql == idColumn {
				orderedByID = true
			}
			if ob.Descending {
				qb.OrderBy(f.sql+" DESC", f.args...)
			} else {
				qb.OrderBy(f.sql, f.args...)
			}
		}
	}
	if !orderedByID {
		qb.OrderBy(idColumn)
	}
	qb.Join(pc.joins...)
	qb.Limit(top + 1)
	qb.Offset(q.Skip)

	return &CompiledQuery{
		EntityType: et,
		Table:      table,
		Properties: props,
		Top:        top,
		Skip:       q.Skip,
		Count:      q.Count,
		query:      q,
		fields:     fields,
		builder:    qb,
		counter:    counter,
		obs:        c.obs,
		logger:     c.logger,
	}, nil
}

// orderFragments compiles an $orderby expression to the SQL it sorts by.
func (pc *pathContext) orderFragments(e expression.Expression) ([]fragment, error) {
	o, err := pc.operand(e)
	if err != nil {
		return nil, err
	}
	if o.ref != nil {
		return pc.orderValues(o.ref)
	}
	if o.val.interval {
		return []fragment{o.val.start, o.val.end}, nil
	}
	return []fragment{o.val.start}, nil
}

// projection resolves $select to properties and the fields that hold them.
// The id is always selected.
func (c *Compiler) projection(table *persistence.Table, names []string) ([]*model.Property, []int, error) {
	reg := table.PropertyFieldRegistry()
	if len(names) == 0 {
		props := reg.Properties()
		fields, err := reg.SelectFields(props)
		return props, fields, err
	}

	et := table.EntityType()
	props := []*model.Property{model.EPID}
	seen := map[*model.Property]bool{model.EPID: true}
	for _, name := range names {
		p, ok := et.Property(name)
		if !ok {
			return nil, nil, &PropertyNotFoundError{Segment: name, EntityType: et.Name(), Path: name}
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, mapped := reg.Entry(p); !mapped {
			if p.IsNavigation() {
				// to-many navigation properties are expanded, not selected
				continue
			}
			return nil, nil, newCompileError(name, "property %s of %s is not stored", name, et.Name())
		}
		props = append(props, p)
	}
	fields, err := reg.SelectFields(props)
	return props, fields, err
}
