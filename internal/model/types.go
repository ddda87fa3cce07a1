package model

// TypeKind classifies property value types.
type TypeKind int

const (
	TypeKindPrimitive TypeKind = iota
	TypeKindComplex
	TypeKindCollection
)

// PropertyType describes the value type of an entity property.
type PropertyType struct {
	name        string
	description string
	kind        TypeKind
	element     *PropertyType
	fields      []string
}

func newPrimitive(name, description string) *PropertyType {
	return &PropertyType{name: name, description: description, kind: TypeKindPrimitive}
}

func newComplex(name, description string, fields ...string) *PropertyType {
	return &PropertyType{name: name, description: description, kind: TypeKindComplex, fields: fields}
}

// Built-in property types.
var (
	TypeString       = newPrimitive("Edm.String", "A string")
	TypeBoolean      = newPrimitive("Edm.Boolean", "A boolean")
	TypeInt64        = newPrimitive("Edm.Int64", "A 64 bit integer")
	TypeDouble       = newPrimitive("Edm.Double", "A double precision floating point number")
	TypeDecimal      = newPrimitive("Edm.Decimal", "A decimal number")
	TypeDateTime     = newPrimitive("Edm.DateTimeOffset", "A point in time with time zone")
	TypeGeometry     = newPrimitive("Edm.Geometry", "A GeoJSON geometry")
	TypeAny          = newPrimitive("ANY", "Any value: number, boolean, string, object or array")
	TypeID           = newPrimitive("Id", "The identifier of an entity")
	TypeTimeInstant  = newPrimitive("TimeInstant", "An instant in time")
	TypeTimeInterval = newPrimitive("TimeInterval", "A time interval with a start and an end")
	TypeTimeValue    = newPrimitive("TimeValue", "Either an instant or an interval in time")
	TypeObject       = newComplex("Object", "A free JSON object")
)

// TypeUnitOfMeasurement is the complex type of Datastream units.
var TypeUnitOfMeasurement = newComplex("UnitOfMeasurement",
	"The unit of measurement of a Datastream", "name", "symbol", "definition")

// NewCollectionType returns the type of a collection holding values of element.
func NewCollectionType(element *PropertyType) *PropertyType {
	return &PropertyType{
		name:        "Collection(" + element.name + ")",
		description: "Collection of " + element.name,
		kind:        TypeKindCollection,
		element:     element,
	}
}

// Name returns the type name.
func (t *PropertyType) Name() string { return t.name }

// Description returns a human readable description.
func (t *PropertyType) Description() string { return t.description }

// Kind returns the kind of the type.
func (t *PropertyType) Kind() TypeKind { return t.kind }

// Element returns the element type of a collection type, or nil.
func (t *PropertyType) Element() *PropertyType { return t.element }

// Fields returns the well known field names of a complex type.
func (t *PropertyType) Fields() []string { return t.fields }

func (t *PropertyType) String() string { return t.name }

// sameType reports whether two types describe the same values.
func sameType(a, b *PropertyType) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.kind != b.kind || a.name != b.name {
		return false
	}
	if a.kind == TypeKindCollection {
		return sameType(a.element, b.element)
	}
	return true
}

// accepts reports whether v is a legal value for the type. Nil is always legal.
func (t *PropertyType) accepts(v any) bool {
	if v == nil || t == nil {
		return true
	}
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInt64:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	case TypeDouble:
		return isNumber(v)
	case TypeID:
		_, ok := v.(ID)
		return ok
	case TypeTimeInstant:
		_, ok := v.(TimeInstant)
		return ok
	case TypeTimeInterval:
		_, ok := v.(TimeInterval)
		return ok
	case TypeTimeValue:
		switch v.(type) {
		case TimeInstant, TimeInterval, TimeValue:
			return true
		}
		return false
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}
