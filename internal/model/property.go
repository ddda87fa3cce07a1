package model

import (
	"fmt"
	"reflect"
)

// PropertyKind is the closed set of property variants.
type PropertyKind int

const (
	// KindEntityProperty is a simple property stored directly on the entity
	KindEntityProperty PropertyKind = iota
	// KindCollection is a property holding a list of values of one type
	KindCollection
	// KindComplex is a named member nested inside a complex or object property
	KindComplex
	// KindNavigationEntity points to a single related entity
	KindNavigationEntity
	// KindNavigationEntitySet points to a set of related entities
	KindNavigationEntitySet
)

func (k PropertyKind) String() string {
	switch k {
	case KindEntityProperty:
		return "EntityProperty"
	case KindCollection:
		return "CollectionProperty"
	case KindComplex:
		return "ComplexProperty"
	case KindNavigationEntity:
		return "NavigationPropertyEntity"
	case KindNavigationEntitySet:
		return "NavigationPropertyEntitySet"
	default:
		return "Unknown"
	}
}

// Property describes one property of an entity type. The zero value is not
// usable; create properties with the New* constructors.
type Property struct {
	name     string
	jsonName string
	kind     PropertyKind
	typ      *PropertyType
	isID     bool

	// parent is set for KindComplex members
	parent *Property

	// targetName and target are set for navigation properties. target is
	// resolved by Registry.LinkEntityTypes.
	targetName string
	target     *EntityType
}

// NewEntityProperty creates a simple property.
func NewEntityProperty(name string, typ *PropertyType) *Property {
	return &Property{name: name, jsonName: name, kind: KindEntityProperty, typ: typ}
}

// NewCollectionProperty creates a property holding a list of element values.
func NewCollectionProperty(name string, element *PropertyType) *Property {
	return &Property{name: name, jsonName: name, kind: KindCollection, typ: NewCollectionType(element)}
}

// NewComplexProperty creates the member name of the object valued property parent.
func NewComplexProperty(parent *Property, name string, typ *PropertyType) *Property {
	if typ == nil {
		typ = TypeAny
	}
	return &Property{name: name, jsonName: name, kind: KindComplex, typ: typ, parent: parent}
}

// NewNavigationEntity creates a to-one navigation property. The target type is
// looked up by name, or plural name, when the registry is linked.
func NewNavigationEntity(name string) *Property {
	return &Property{name: name, jsonName: name, kind: KindNavigationEntity, targetName: name}
}

// NewNavigationEntitySet creates a to-many navigation property.
func NewNavigationEntitySet(name string) *Property {
	return &Property{name: name, jsonName: name, kind: KindNavigationEntitySet, targetName: name}
}

func newIDProperty() *Property {
	p := NewEntityProperty("id", TypeID)
	p.jsonName = "@iot.id"
	p.isID = true
	return p
}

// WithJSONName overrides the name used in JSON documents.
func (p *Property) WithJSONName(name string) *Property {
	p.jsonName = name
	return p
}

// WithTarget sets the name of the target entity type of a navigation property
// when it differs from the property name.
func (p *Property) WithTarget(entityTypeName string) *Property {
	p.targetName = entityTypeName
	return p
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// JSONName returns the name used in JSON documents.
func (p *Property) JSONName() string { return p.jsonName }

// Kind returns the property variant.
func (p *Property) Kind() PropertyKind { return p.kind }

// Type returns the value type. Navigation properties have no value type.
func (p *Property) Type() *PropertyType { return p.typ }

// IsID reports whether this is the identifier property.
func (p *Property) IsID() bool { return p.isID }

// IsNavigation reports whether the property is a navigation property.
func (p *Property) IsNavigation() bool {
	return p.kind == KindNavigationEntity || p.kind == KindNavigationEntitySet
}

// Parent returns the containing property of a complex member.
func (p *Property) Parent() *Property { return p.parent }

// Root returns the outermost property of a complex member chain.
func (p *Property) Root() *Property {
	root := p
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// TargetName returns the configured target entity type name of a navigation property.
func (p *Property) TargetName() string { return p.targetName }

// Target returns the linked target entity type of a navigation property.
func (p *Property) Target() *EntityType { return p.target }

func (p *Property) String() string {
	if p.parent != nil {
		return p.parent.String() + "/" + p.name
	}
	return p.name
}

// compatible reports whether q can stand in for p in the registry.
func (p *Property) compatible(q *Property) bool {
	if p == q {
		return true
	}
	if p.kind != q.kind || p.isID != q.isID || p.name != q.name {
		return false
	}
	if p.IsNavigation() {
		return p.targetName == q.targetName
	}
	return sameType(p.typ, q.typ)
}

// GetFrom returns the value of the property on e. The property must be
// declared by the entity type of e; anything else is a programming error.
func (p *Property) GetFrom(e *Entity) any {
	e.mustDeclare(p)
	switch p.kind {
	case KindComplex:
		container, ok := p.parent.GetFrom(e).(map[string]any)
		if !ok {
			return nil
		}
		return container[p.name]
	default:
		if p.isID {
			if e.id == nil {
				return nil
			}
			return e.id
		}
		return e.values[p]
	}
}

// SetOn assigns v to the property on e and marks it set. Nil is a legal value
// and is distinguishable from an unset property.
func (p *Property) SetOn(e *Entity, v any) error {
	e.mustDeclare(p)
	switch p.kind {
	case KindEntityProperty:
		if !p.typ.accepts(v) {
			return &ValueTypeError{Property: p, Value: v}
		}
		if p.isID {
			id, _ := v.(ID)
			e.SetID(id)
			return nil
		}
	case KindCollection:
		if v != nil {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return &ValueTypeError{Property: p, Value: v}
			}
		}
	case KindComplex:
		if !p.typ.accepts(v) {
			return &ValueTypeError{Property: p, Value: v}
		}
		container, _ := p.parent.GetFrom(e).(map[string]any)
		if container == nil {
			container = map[string]any{}
			if err := p.parent.SetOn(e, container); err != nil {
				return err
			}
		}
		container[p.name] = v
		return nil
	case KindNavigationEntity:
		if v != nil {
			target, ok := v.(*Entity)
			if !ok {
				return &ValueTypeError{Property: p, Value: v}
			}
			if p.target != nil && target.entityType != p.target {
				return &ValueTypeError{Property: p, Value: v}
			}
		}
	case KindNavigationEntitySet:
		if v != nil {
			set, ok := v.(*EntitySet)
			if !ok {
				return &ValueTypeError{Property: p, Value: v}
			}
			if p.target != nil && set.entityType != p.target {
				return &ValueTypeError{Property: p, Value: v}
			}
		}
	}
	e.values[p] = v
	return nil
}

// IsSetOn reports whether a value, possibly nil, was assigned to the property on e.
func (p *Property) IsSetOn(e *Entity) bool {
	e.mustDeclare(p)
	if p.kind == KindComplex {
		container, ok := p.parent.GetFrom(e).(map[string]any)
		if !ok {
			return false
		}
		_, ok = container[p.name]
		return ok
	}
	if p.isID {
		return e.idSet
	}
	_, ok := e.values[p]
	return ok
}

// unsetOn removes the property from e.
func (p *Property) unsetOn(e *Entity) {
	e.mustDeclare(p)
	switch {
	case p.kind == KindComplex:
		if container, ok := p.parent.GetFrom(e).(map[string]any); ok {
			delete(container, p.name)
		}
	case p.isID:
		e.id = nil
		e.idSet = false
	default:
		delete(e.values, p)
	}
}

// ValueTypeError is returned when a value does not fit the property type.
type ValueTypeError struct {
	Property *Property
	Value    any
}

func (e *ValueTypeError) Error() string {
	if e.Property.typ != nil {
		return fmt.Sprintf("value of type %T is not valid for property %s of type %s", e.Value, e.Property, e.Property.typ)
	}
	return fmt.Sprintf("value of type %T is not valid for %s %s", e.Value, e.Property.kind, e.Property)
}
