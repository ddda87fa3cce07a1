package expression

// Type is the static type of an expression. Number and TimeValue are abstract:
// they only appear in function bindings and accept their concrete members.
type Type int

const (
	TypeAny Type = iota
	TypeNull
	TypeBoolean
	TypeInteger
	TypeDouble
	TypeDecimal
	TypeNumber
	TypeString
	TypeDateTime
	TypeDuration
	TypeInterval
	TypeTimeValue
	TypeGeometry
)

var typeNames = map[Type]string{
	TypeAny:       "Any",
	TypeNull:      "Null",
	TypeBoolean:   "Boolean",
	TypeInteger:   "Integer",
	TypeDouble:    "Double",
	TypeDecimal:   "Decimal",
	TypeNumber:    "Number",
	TypeString:    "String",
	TypeDateTime:  "DateTime",
	TypeDuration:  "Duration",
	TypeInterval:  "Interval",
	TypeTimeValue: "TimeValue",
	TypeGeometry:  "Geometry",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// IsNumeric reports whether t is one of the number types.
func (t Type) IsNumeric() bool {
	switch t {
	case TypeInteger, TypeDouble, TypeDecimal, TypeNumber:
		return true
	}
	return false
}

// AssignableTo reports whether a value of type t may be passed where target
// is expected. Integers widen to Double and Decimal, every number is a
// Number, instants and intervals are TimeValues. Any and Null match
// everything in both directions since their concrete type is only known at
// run time.
func (t Type) AssignableTo(target Type) bool {
	if t == target || target == TypeAny || t == TypeAny || t == TypeNull {
		return true
	}
	switch target {
	case TypeNumber:
		return t == TypeInteger || t == TypeDouble || t == TypeDecimal
	case TypeDouble, TypeDecimal:
		return t == TypeInteger
	case TypeTimeValue:
		return t == TypeDateTime || t == TypeInterval
	}
	return false
}
