package model

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// EntitySet is an ordered, homogeneous list of entities with optional paging
// information.
type EntitySet struct {
	entityType *EntityType
	entities   []*Entity
	count      int64
	nextLink   string
}

// NewEntitySet creates an empty set for entities of type t.
func NewEntitySet(t *EntityType) *EntitySet {
	return &EntitySet{entityType: t, count: -1}
}

// EntityType returns the type of the entities in the set.
func (s *EntitySet) EntityType() *EntityType { return s.entityType }

// Add appends e. Entities of another type are rejected.
func (s *EntitySet) Add(e *Entity) error {
	if e.entityType.entityName != s.entityType.entityName {
		return fmt.Errorf("cannot add %s to a set of %s", e.entityType.entityName, s.entityType.pluralName)
	}
	s.entities = append(s.entities, e)
	return nil
}

// Len returns the number of entities in the set.
func (s *EntitySet) Len() int { return len(s.entities) }

// Get returns the entity at index i.
func (s *EntitySet) Get(i int) *Entity { return s.entities[i] }

// Entities returns the entities in order.
func (s *EntitySet) Entities() []*Entity {
	return append([]*Entity(nil), s.entities...)
}

// Count returns the total count, if one was set.
func (s *EntitySet) Count() (int64, bool) {
	return s.count, s.count >= 0
}

// SetCount sets the total number of matching entities.
func (s *EntitySet) SetCount(count int64) { s.count = count }

// NextLink returns the link to the next page, or "".
func (s *EntitySet) NextLink() string { return s.nextLink }

// SetNextLink sets the link to the next page.
func (s *EntitySet) SetNextLink(link string) { s.nextLink = link }

// Equal compares type and entities in order. Paging information is ignored.
func (s *EntitySet) Equal(o *EntitySet) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil {
		return false
	}
	if s.entityType.entityName != o.entityType.entityName || len(s.entities) != len(o.entities) {
		return false
	}
	for i := range s.entities {
		if !s.entities[i].Equal(o.entities[i]) {
			return false
		}
	}
	return true
}

// HashCode returns a hash consistent with Equal.
func (s *EntitySet) HashCode() uint64 {
	h := xxhash.New()
	s.writeHash(h)
	return h.Sum64()
}

func (s *EntitySet) writeHash(h *xxhash.Digest) {
	_, _ = h.WriteString("set:" + s.entityType.entityName)
	for _, e := range s.entities {
		_, _ = h.WriteString("[")
		e.writeHash(h)
		_, _ = h.WriteString("]")
	}
}
