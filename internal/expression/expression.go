package expression

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pbaumard/FROST-Server/internal/model"
	"github.com/shopspring/decimal"
)

// Expression is a node of a $filter or $orderby expression tree. The set of
// node kinds is closed: constants, Path and Function.
type Expression interface {
	// URL renders the expression in query option syntax
	URL() string
	isExpression()
}

// Constant is a literal value with a static type.
type Constant interface {
	Expression
	Type() Type
	// Value returns the Go value bound as SQL parameter
	Value() any
}

type (
	// BooleanConstant is true or false
	BooleanConstant struct{ V bool }
	// IntegerConstant is a whole number literal
	IntegerConstant struct{ V int64 }
	// DoubleConstant is a floating point literal
	DoubleConstant struct{ V float64 }
	// DecimalConstant is an exact decimal literal
	DecimalConstant struct{ V decimal.Decimal }
	// StringConstant is a quoted string literal
	StringConstant struct{ V string }
	// DateTimeConstant is an instant literal
	DateTimeConstant struct{ V time.Time }
	// DurationConstant is a duration literal
	DurationConstant struct{ V time.Duration }
	// IntervalConstant is a start/end literal
	IntervalConstant struct{ V model.TimeInterval }
	// GeometryConstant is a geography literal in WKT
	GeometryConstant struct{ WKT string }
	// NullConstant is the null literal
	NullConstant struct{}
)

func (BooleanConstant) isExpression()  {}
func (IntegerConstant) isExpression()  {}
func (DoubleConstant) isExpression()   {}
func (DecimalConstant) isExpression()  {}
func (StringConstant) isExpression()   {}
func (DateTimeConstant) isExpression() {}
func (DurationConstant) isExpression() {}
func (IntervalConstant) isExpression() {}
func (GeometryConstant) isExpression() {}
func (NullConstant) isExpression()     {}

func (BooleanConstant) Type() Type  { return TypeBoolean }
func (IntegerConstant) Type() Type  { return TypeInteger }
func (DoubleConstant) Type() Type   { return TypeDouble }
func (DecimalConstant) Type() Type  { return TypeDecimal }
func (StringConstant) Type() Type   { return TypeString }
func (DateTimeConstant) Type() Type { return TypeDateTime }
func (DurationConstant) Type() Type { return TypeDuration }
func (IntervalConstant) Type() Type { return TypeInterval }
func (GeometryConstant) Type() Type { return TypeGeometry }
func (NullConstant) Type() Type     { return TypeNull }

func (c BooleanConstant) Value() any  { return c.V }
func (c IntegerConstant) Value() any  { return c.V }
func (c DoubleConstant) Value() any   { return c.V }
func (c DecimalConstant) Value() any  { return c.V.String() }
func (c StringConstant) Value() any   { return c.V }
func (c DateTimeConstant) Value() any { return c.V.UTC() }
func (c DurationConstant) Value() any { return c.V.Seconds() }
func (c IntervalConstant) Value() any { return c.V }
func (c GeometryConstant) Value() any { return c.WKT }
func (NullConstant) Value() any       { return nil }

func (c BooleanConstant) URL() string { return strconv.FormatBool(c.V) }
func (c IntegerConstant) URL() string { return strconv.FormatInt(c.V, 10) }
func (c DecimalConstant) URL() string { return c.V.String() }
func (c StringConstant) URL() string  { return "'" + strings.ReplaceAll(c.V, "'", "''") + "'" }
func (c IntervalConstant) URL() string {
	return c.V.String()
}
func (c GeometryConstant) URL() string { return "geography'" + c.WKT + "'" }
func (NullConstant) URL() string       { return "null" }

func (c DoubleConstant) URL() string {
	s := strconv.FormatFloat(c.V, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (c DateTimeConstant) URL() string {
	return c.V.UTC().Format(time.RFC3339Nano)
}

func (c DurationConstant) URL() string {
	return "duration'" + isoDuration(c.V) + "'"
}

// isoDuration formats d as an ISO 8601 duration with day and time parts.
func isoDuration(d time.Duration) string {
	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}
	sb.WriteByte('P')
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		fmt.Fprintf(&sb, "%dD", days)
	}
	if d == 0 {
		if days == 0 {
			sb.WriteString("T0S")
		}
		return sb.String()
	}
	sb.WriteByte('T')
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&sb, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&sb, "%dM", m)
		d -= m * time.Minute
	}
	if d > 0 {
		sb.WriteString(strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "S")
	}
	return sb.String()
}

// Path references a property of the entity under evaluation, possibly
// through navigation properties, e.g. Datastream/Thing/name. Segments after
// an object valued property address members inside it.
type Path struct {
	Segments []string
}

// NewPath splits a slash separated path.
func NewPath(path string) Path {
	return Path{Segments: strings.Split(path, "/")}
}

func (Path) isExpression() {}

func (p Path) URL() string {
	return strings.Join(p.Segments, "/")
}

// Function applies a named function of the catalog to its arguments. The
// binding is selected when the expression is compiled.
type Function struct {
	Name string
	Args []Expression
}

// Call creates a function node.
func Call(name string, args ...Expression) Function {
	return Function{Name: name, Args: args}
}

func (Function) isExpression() {}

var infix = map[string]bool{
	FuncEq: true, FuncNe: true, FuncGt: true, FuncGe: true, FuncLt: true, FuncLe: true,
	FuncAnd: true, FuncOr: true,
	FuncAdd: true, FuncSub: true, FuncMul: true, FuncDiv: true, FuncMod: true,
}

func (f Function) URL() string {
	switch {
	case f.Name == FuncNot && len(f.Args) == 1:
		return "( not (" + f.Args[0].URL() + "))"
	case infix[f.Name] && len(f.Args) == 2:
		return "(" + f.Args[0].URL() + " " + f.Name + " " + f.Args[1].URL() + ")"
	}
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.URL()
	}
	return f.Name + "(" + strings.Join(args, ",") + ")"
}

// Convenience constructors for the built-in operators.

func Eq(a, b Expression) Function  { return Call(FuncEq, a, b) }
func Ne(a, b Expression) Function  { return Call(FuncNe, a, b) }
func Gt(a, b Expression) Function  { return Call(FuncGt, a, b) }
func Ge(a, b Expression) Function  { return Call(FuncGe, a, b) }
func Lt(a, b Expression) Function  { return Call(FuncLt, a, b) }
func Le(a, b Expression) Function  { return Call(FuncLe, a, b) }
func Not(a Expression) Function    { return Call(FuncNot, a) }
func And(a, b Expression) Function { return Call(FuncAnd, a, b) }
func Or(a, b Expression) Function  { return Call(FuncOr, a, b) }

// ConstantOf wraps a Go value in the matching constant node.
func ConstantOf(v any) (Constant, error) {
	switch tv := v.(type) {
	case nil:
		return NullConstant{}, nil
	case bool:
		return BooleanConstant{tv}, nil
	case int:
		return IntegerConstant{int64(tv)}, nil
	case int32:
		return IntegerConstant{int64(tv)}, nil
	case int64:
		return IntegerConstant{tv}, nil
	case float32:
		return DoubleConstant{float64(tv)}, nil
	case float64:
		return DoubleConstant{tv}, nil
	case decimal.Decimal:
		return DecimalConstant{tv}, nil
	case string:
		return StringConstant{tv}, nil
	case time.Time:
		return DateTimeConstant{tv}, nil
	case model.TimeInstant:
		return DateTimeConstant{tv.Time()}, nil
	case model.TimeInterval:
		return IntervalConstant{tv}, nil
	case time.Duration:
		return DurationConstant{tv}, nil
	}
	return nil, fmt.Errorf("no constant type for %T", v)
}
