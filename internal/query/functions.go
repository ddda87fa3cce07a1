package query

import (
	"github.com/pbaumard/FROST-Server/internal/expression"
	"github.com/pbaumard/FROST-Server/internal/persistence"
	"github.com/pbaumard/FROST-Server/internal/scope"
)

// Renderer translates a function call with rendered arguments to SQL.
// Plugins that add functions to the catalog register one per function.
type Renderer func(d persistence.Dialect, args []scope.QueryScope) scope.QueryScope

// operand is a compiled argument. Paths stay unrendered until the binding
// of the enclosing function decides which field projection to use.
type operand struct {
	typ  expression.Type
	expr expression.Expression
	ref  *pathRef
	val  value
	null bool
}

func (pc *pathContext) operand(e expression.Expression) (*operand, error) {
	switch v := e.(type) {
	case expression.Path:
		ref, err := pc.resolve(v)
		if err != nil {
			return nil, err
		}
		return &operand{typ: ref.typ, expr: e, ref: ref}, nil
	case expression.Function:
		return pc.function(v)
	case expression.NullConstant:
		return &operand{typ: expression.TypeNull, expr: e, val: single(frag("NULL")), null: true}, nil
	case expression.IntervalConstant:
		return &operand{typ: expression.TypeInterval, expr: e, val: value{
			start:    frag("?", v.V.Start().UTC()),
			end:      frag("?", v.V.End().UTC()),
			interval: true,
		}}, nil
	case expression.GeometryConstant:
		return &operand{typ: expression.TypeGeometry, expr: e, val: single(frag("ST_GeomFromText(?, 4326)", v.WKT))}, nil
	case expression.Constant:
		return &operand{typ: v.Type(), expr: e, val: single(frag("?", v.Value()))}, nil
	case nil:
		return nil, newCompileError("", "missing expression")
	}
	return nil, newCompileError(e.URL(), "unsupported expression %T", e)
}

// render returns the SQL of o passed as a parameter of type param.
func (pc *pathContext) render(o *operand, param expression.Type, isNull bool) (value, error) {
	if o.ref != nil {
		return pc.pathValue(o.ref, param, isNull)
	}
	return o.val, nil
}

func (pc *pathContext) function(f expression.Function) (*operand, error) {
	def, ok := pc.compiler.catalog.Lookup(f.Name)
	if !ok {
		return nil, newCompileError(f.URL(), "unknown function %s", f.Name)
	}
	if expression.IsSpatial(f.Name) && !pc.compiler.tables.Geospatial() {
		return nil, newCompileError(f.URL(), "geospatial functions are not enabled")
	}

	ops := make([]*operand, len(f.Args))
	types := make([]expression.Type, len(f.Args))
	for i, arg := range f.Args {
		o, err := pc.operand(arg)
		if err != nil {
			return nil, err
		}
		ops[i], types[i] = o, o.typ
	}
	binding, ok := def.Resolve(types)
	if !ok {
		return nil, &NoBindingError{Function: f.Name, Args: types}
	}

	nullCompare := isComparison(f.Name) && len(ops) == 2 && (ops[0].null || ops[1].null)
	args := make([]value, len(ops))
	for i, o := range ops {
		v, err := pc.render(o, binding.Params[i], nullCompare)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	sql, err := pc.call(f, binding, ops, args)
	if err != nil {
		return nil, err
	}
	return &operand{typ: binding.Result, expr: f, val: single(sql)}, nil
}

var comparisonOperators = map[string]string{
	expression.FuncEq: "=",
	expression.FuncNe: "<>",
	expression.FuncGt: ">",
	expression.FuncGe: ">=",
	expression.FuncLt: "<",
	expression.FuncLe: "<=",
}

func isComparison(name string) bool {
	_, ok := comparisonOperators[name]
	return ok
}

var arithmeticOperators = map[string]string{
	expression.FuncAdd: "+",
	expression.FuncSub: "-",
	expression.FuncMul: "*",
	expression.FuncDiv: "/",
}

var spatialFunctions = map[string]string{
	expression.FuncGeoDistance:   "ST_Distance",
	expression.FuncGeoLength:     "ST_Length",
	expression.FuncGeoIntersects: "ST_Intersects",
	expression.FuncSTEquals:      "ST_Equals",
	expression.FuncSTDisjoint:    "ST_Disjoint",
	expression.FuncSTTouches:     "ST_Touches",
	expression.FuncSTWithin:      "ST_Within",
	expression.FuncSTOverlaps:    "ST_Overlaps",
	expression.FuncSTCrosses:     "ST_Crosses",
	expression.FuncSTIntersects:  "ST_Intersects",
	expression.FuncSTContains:    "ST_Contains",
}

var datePartsSQLite = map[string]string{
	expression.FuncYear:   "%Y",
	expression.FuncMonth:  "%m",
	expression.FuncDay:    "%d",
	expression.FuncHour:   "%H",
	expression.FuncMinute: "%M",
	expression.FuncSecond: "%S",
}

var datePartsPostgres = map[string]string{
	expression.FuncYear:   "YEAR",
	expression.FuncMonth:  "MONTH",
	expression.FuncDay:    "DAY",
	expression.FuncHour:   "HOUR",
	expression.FuncMinute: "MINUTE",
	expression.FuncSecond: "SECOND",
}

func (pc *pathContext) call(f expression.Function, b expression.Binding, ops []*operand, args []value) (fragment, error) {
	d := pc.dialect
	postgres := d == persistence.DialectPostgres
	a := func(i int) fragment { return args[i].start }

	if op, ok := comparisonOperators[f.Name]; ok {
		return pc.comparison(f, op, ops, args)
	}
	if name, ok := spatialFunctions[f.Name]; ok {
		parts := []any{name, "("}
		for i := range args {
			if i > 0 {
				parts = append(parts, ", ")
			}
			parts = append(parts, a(i))
		}
		return cat(append(parts, ")")...), nil
	}
	if part, ok := datePartsSQLite[f.Name]; ok {
		if postgres {
			return cat("CAST(EXTRACT(", datePartsPostgres[f.Name], " FROM ", a(0), ") AS INTEGER)"), nil
		}
		return cat("CAST(strftime('", part, "', ", a(0), ") AS INTEGER)"), nil
	}

	switch f.Name {
	case expression.FuncAnd:
		return fromScope(scope.And(toScope(a(0)), toScope(a(1))).Wrap()), nil
	case expression.FuncOr:
		return fromScope(scope.Or(toScope(a(0)), toScope(a(1))).Wrap()), nil
	case expression.FuncNot:
		return fromScope(scope.Not(toScope(a(0)))), nil

	case expression.FuncAdd, expression.FuncSub:
		if b.Params[0] == expression.TypeDateTime && b.Params[1] == expression.TypeDuration {
			sign := arithmeticOperators[f.Name]
			if postgres {
				return cat("(", a(0), " "+sign+" ", a(1), " * INTERVAL '1 second')"), nil
			}
			return cat("(strftime('%Y-%m-%d %H:%M:%f', ", a(0), ", '"+sign+"' || ", a(1), " || ' seconds') || '+00:00')"), nil
		}
		if b.Params[0] == expression.TypeDateTime && b.Params[1] == expression.TypeDateTime {
			if postgres {
				return cat("EXTRACT(EPOCH FROM (", a(0), " - ", a(1), "))"), nil
			}
			return cat("((julianday(", a(0), ") - julianday(", a(1), ")) * 86400.0)"), nil
		}
		return cat("(", a(0), " "+arithmeticOperators[f.Name]+" ", a(1), ")"), nil
	case expression.FuncMul, expression.FuncDiv:
		return cat("(", a(0), " "+arithmeticOperators[f.Name]+" ", a(1), ")"), nil
	case expression.FuncMod:
		if postgres {
			return cat("MOD(", a(0), ", ", a(1), ")"), nil
		}
		return cat("(", a(0), " % ", a(1), ")"), nil

	case expression.FuncConcat:
		return cat("(", a(0), " || ", a(1), ")"), nil
	case expression.FuncContains:
		return pc.position(a(0), a(1), " > 0"), nil
	case expression.FuncSubstringOf:
		return pc.position(a(1), a(0), " > 0"), nil
	case expression.FuncIndexOf:
		return pc.position(a(0), a(1), " - 1"), nil
	case expression.FuncStartsWith:
		return cat("(substr(", a(0), ", 1, length(", a(1), ")) = ", a(1), ")"), nil
	case expression.FuncEndsWith:
		if postgres {
			return cat("(right(", a(0), ", length(", a(1), ")) = ", a(1), ")"), nil
		}
		return cat("(substr(", a(0), ", -length(", a(1), ")) = ", a(1), ")"), nil
	case expression.FuncLength:
		return cat("length(", a(0), ")"), nil
	case expression.FuncSubstring:
		if len(args) == 3 {
			return cat("substr(", a(0), ", ", a(1), " + 1, ", a(2), ")"), nil
		}
		return cat("substr(", a(0), ", ", a(1), " + 1)"), nil
	case expression.FuncToLower:
		return cat("lower(", a(0), ")"), nil
	case expression.FuncToUpper:
		return cat("upper(", a(0), ")"), nil
	case expression.FuncTrim:
		return cat("trim(", a(0), ")"), nil

	case expression.FuncNow:
		if postgres {
			return frag("now()"), nil
		}
		return frag("CURRENT_TIMESTAMP"), nil
	case expression.FuncRound:
		return cat("round(", a(0), ")"), nil
	case expression.FuncFloor:
		if postgres {
			return cat("floor(", a(0), ")"), nil
		}
		return cat("(CAST(", a(0), " AS INTEGER) - (", a(0), " < CAST(", a(0), " AS INTEGER)))"), nil
	case expression.FuncCeiling:
		if postgres {
			return cat("ceil(", a(0), ")"), nil
		}
		return cat("(CAST(", a(0), " AS INTEGER) + (", a(0), " > CAST(", a(0), " AS INTEGER)))"), nil
	}

	if r, ok := pc.compiler.renderers[f.Name]; ok {
		rendered := make([]scope.QueryScope, len(args))
		for i := range args {
			rendered[i] = toScope(a(i))
		}
		return fromScope(r(d, rendered)), nil
	}
	return fragment{}, newCompileError(f.URL(), "function %s can not be translated to SQL", f.Name)
}

func toScope(f fragment) scope.QueryScope { return scope.New(f.sql, f.args...) }

func fromScope(s scope.QueryScope) fragment { return frag(s.Condition, s.Args...) }

// position renders the 1-based position of needle in haystack followed by
// suffix.
func (pc *pathContext) position(haystack, needle fragment, suffix string) fragment {
	if pc.dialect == persistence.DialectPostgres {
		return cat("(strpos(", haystack, ", ", needle, ")"+suffix+")")
	}
	return cat("(instr(", haystack, ", ", needle, ")"+suffix+")")
}

// comparison renders a comparison operator. Null constants become IS NULL
// tests. When either side is an interval, a op b compares the intervals
// [as, ae] and [bs, be]: eq requires equal bounds, gt means a starts after b
// ends, lt means a ends before b starts.
func (pc *pathContext) comparison(f expression.Function, op string, ops []*operand, args []value) (fragment, error) {
	if ops[0].null || ops[1].null {
		subject := args[0]
		if ops[0].null {
			subject = args[1]
		}
		switch f.Name {
		case expression.FuncEq:
			return cat("(", subject.start, " IS NULL)"), nil
		case expression.FuncNe:
			return cat("(", subject.start, " IS NOT NULL)"), nil
		}
		return fragment{}, newCompileError(f.URL(), "null can only be compared with eq and ne")
	}

	a, b := args[0], args[1]
	if pc.dialect != persistence.DialectPostgres && (dateArithmetic(ops[0]) || dateArithmetic(ops[1])) {
		a, b = julian(a), julian(b)
	}
	if !a.interval && !b.interval {
		return cat("(", a.start, " "+op+" ", b.start, ")"), nil
	}
	switch f.Name {
	case expression.FuncEq:
		return cat("(", a.start, " = ", b.start, " AND ", a.end, " = ", b.end, ")"), nil
	case expression.FuncNe:
		return cat("NOT (", a.start, " = ", b.start, " AND ", a.end, " = ", b.end, ")"), nil
	case expression.FuncGt:
		return cat("(", a.start, " > ", b.end, ")"), nil
	case expression.FuncGe:
		return cat("(", a.start, " >= ", b.end, ")"), nil
	case expression.FuncLt:
		return cat("(", a.end, " < ", b.start, ")"), nil
	default:
		return cat("(", a.end, " <= ", b.start, ")"), nil
	}
}

// dateArithmetic reports whether o is a computed instant. SQLite renders
// those with a fractional second part, so they only compare correctly
// against stored timestamps as julian day numbers.
func dateArithmetic(o *operand) bool {
	f, ok := o.expr.(expression.Function)
	return ok && o.typ == expression.TypeDateTime && (f.Name == expression.FuncAdd || f.Name == expression.FuncSub)
}

func julian(v value) value {
	return value{start: cat("julianday(", v.start, ")"), end: cat("julianday(", v.end, ")"), interval: v.interval}
}
