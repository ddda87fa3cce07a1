package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Entity is one resource instance: an entity type, an optional id and the
// values of the properties that were explicitly set. Entities are owned by a
// single request and are not safe for concurrent mutation.
type Entity struct {
	entityType *EntityType
	id         ID
	idSet      bool
	values     map[*Property]any
}

// NewEntity creates an empty entity of type t.
func NewEntity(t *EntityType) *Entity {
	return &Entity{entityType: t, values: make(map[*Property]any)}
}

// NewEntityWithID creates an entity reference holding only an id.
func NewEntityWithID(t *EntityType, id ID) *Entity {
	e := NewEntity(t)
	e.id = id
	e.idSet = id != nil
	return e
}

// EntityType returns the type of the entity.
func (e *Entity) EntityType() *EntityType { return e.entityType }

// ID returns the identifier, or nil before the entity is persisted.
func (e *Entity) ID() ID { return e.id }

// SetID sets the identifier and marks it set.
func (e *Entity) SetID(id ID) *Entity {
	e.id = id
	e.idSet = true
	return e
}

// GetProperty returns the value of p.
func (e *Entity) GetProperty(p *Property) any {
	return p.GetFrom(e)
}

// SetProperty assigns v to p and marks p as set.
func (e *Entity) SetProperty(p *Property, v any) error {
	return p.SetOn(e, v)
}

// IsSetProperty reports whether p was explicitly assigned, including to nil.
func (e *Entity) IsSetProperty(p *Property) bool {
	return p.IsSetOn(e)
}

// UnsetProperty clears p so that it no longer counts as set.
func (e *Entity) UnsetProperty(p *Property) {
	p.unsetOn(e)
}

// SetProperties returns the properties that are set, in declaration order.
func (e *Entity) SetProperties() []*Property {
	var out []*Property
	for _, p := range e.entityType.properties {
		if p.IsSetOn(e) {
			out = append(out, p)
		}
	}
	return out
}

func (e *Entity) mustDeclare(p *Property) {
	if !e.entityType.HasProperty(p) {
		panic(fmt.Sprintf("entity type %s does not declare property %s", e.entityType.entityName, p))
	}
}

// Equal reports whether both entities have the same type, the same id when
// both have one, and equal values for every property set on either side.
func (e *Entity) Equal(o *Entity) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil {
		return false
	}
	if e.entityType.entityName != o.entityType.entityName {
		return false
	}
	if e.id != nil && o.id != nil && !ValuesEqual(e.id, o.id) {
		return false
	}
	for _, p := range e.entityType.properties {
		if p.isID {
			continue
		}
		_, inE := e.values[p]
		_, inO := o.values[p]
		if inE != inO {
			return false
		}
		if inE && !ValuesEqual(e.values[p], o.values[p]) {
			return false
		}
	}
	return true
}

// HashCode returns a hash consistent with Equal. The id is not hashed since
// an entity without id may equal one with an id.
func (e *Entity) HashCode() uint64 {
	h := xxhash.New()
	e.writeHash(h)
	return h.Sum64()
}

func (e *Entity) writeHash(h *xxhash.Digest) {
	_, _ = h.WriteString(e.entityType.entityName)
	for _, p := range e.entityType.properties {
		v, ok := e.values[p]
		if !ok || p.isID {
			continue
		}
		_, _ = h.WriteString("|" + p.name + "=")
		writeValueHash(h, v)
	}
}

func (e *Entity) String() string {
	var sb strings.Builder
	sb.WriteString(e.entityType.entityName)
	if e.id != nil {
		sb.WriteString("(" + e.id.URL() + ")")
	}
	names := make([]string, 0, len(e.values))
	for p := range e.values {
		names = append(names, p.name)
	}
	sort.Strings(names)
	sb.WriteString("{" + strings.Join(names, ",") + "}")
	return sb.String()
}
