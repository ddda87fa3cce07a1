package model

import (
	"fmt"
	"strings"
)

// EntityType holds the metadata of one resource kind, e.g. Observation
type EntityType struct {
	entityName string
	pluralName string
	// properties keeps declaration order, which is also the order of the JSON output
	properties []*Property
	byName     map[string]*Property
	required   map[*Property]bool
	primaryKey *Property
	frozen     bool
}

// NewEntityType creates an entity type. An empty plural is derived from the name.
func NewEntityType(name, plural string) *EntityType {
	if plural == "" {
		plural = pluralize(name)
	}
	return &EntityType{
		entityName: name,
		pluralName: plural,
		byName:     make(map[string]*Property),
		required:   make(map[*Property]bool),
	}
}

// Name returns the singular entity type name
func (t *EntityType) Name() string { return t.entityName }

// PluralName returns the entity set name
func (t *EntityType) PluralName() string { return t.pluralName }

// RegisterProperty declares p on the entity type. Registering the same property
// twice is a no-op; a different property under a taken name is an error.
func (t *EntityType) RegisterProperty(p *Property, required bool) error {
	if t.frozen {
		return frozenError("register property on "+t.entityName, p.name)
	}
	if existing, ok := t.byName[p.name]; ok {
		if existing == p {
			t.required[p] = t.required[p] || required
			return nil
		}
		return NewConfigError("register property on "+t.entityName, p.name, "a different property with this name is already declared")
	}
	if p.kind == KindComplex {
		return NewConfigError("register property on "+t.entityName, p.name, "complex members are reached through their parent property")
	}
	t.properties = append(t.properties, p)
	t.byName[p.name] = p
	if p.jsonName != p.name {
		t.byName[p.jsonName] = p
	}
	t.required[p] = required
	if p.isID {
		t.primaryKey = p
	}
	return nil
}

// Property finds a declared property by name or JSON name
func (t *EntityType) Property(name string) (*Property, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// FindEntityProperty finds a declared non-navigation property by name
func (t *EntityType) FindEntityProperty(name string) *Property {
	if p, ok := t.byName[name]; ok && !p.IsNavigation() {
		return p
	}
	return nil
}

// FindNavigationProperty finds a declared navigation property by name
func (t *EntityType) FindNavigationProperty(name string) *Property {
	if p, ok := t.byName[name]; ok && p.IsNavigation() {
		return p
	}
	return nil
}

// Properties returns all declared properties in declaration order
func (t *EntityType) Properties() []*Property {
	return append([]*Property(nil), t.properties...)
}

// EntityProperties returns the declared non-navigation properties
func (t *EntityType) EntityProperties() []*Property {
	var out []*Property
	for _, p := range t.properties {
		if !p.IsNavigation() {
			out = append(out, p)
		}
	}
	return out
}

// NavigationProperties returns the declared navigation properties
func (t *EntityType) NavigationProperties() []*Property {
	var out []*Property
	for _, p := range t.properties {
		if p.IsNavigation() {
			out = append(out, p)
		}
	}
	return out
}

// HasProperty reports whether p, or the root of a complex member p, is declared
func (t *EntityType) HasProperty(p *Property) bool {
	root := p.Root()
	declared, ok := t.byName[root.name]
	return ok && declared == root
}

// IsRequired reports whether p must be present when creating an entity
func (t *EntityType) IsRequired(p *Property) bool {
	return t.required[p]
}

// PrimaryKey returns the identifier property, or nil if none is declared
func (t *EntityType) PrimaryKey() *Property {
	return t.primaryKey
}

// IsFrozen reports whether the type was linked and is read-only
func (t *EntityType) IsFrozen() bool {
	return t.frozen
}

func (t *EntityType) String() string {
	return t.entityName
}

// ResolvePropertyPath resolves a slash separated chain of non-navigation
// properties, descending into complex members of object valued properties.
func (t *EntityType) ResolvePropertyPath(path string) (*Property, error) {
	segments := strings.Split(path, "/")
	p := t.FindEntityProperty(segments[0])
	if p == nil {
		return nil, fmt.Errorf("property '%s' not found in path '%s'", segments[0], path)
	}
	for _, segment := range segments[1:] {
		if p.typ != nil && p.typ.kind == TypeKindPrimitive && p.typ != TypeAny {
			return nil, fmt.Errorf("property '%s' of type %s has no member '%s'", p, p.typ, segment)
		}
		p = NewComplexProperty(p, segment, TypeAny)
	}
	return p, nil
}

// pluralize returns the plural form of an entity name
func pluralize(word string) string {
	if word == "" {
		return word
	}

	switch {
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(rune(word[len(word)-2])):
		// Property -> Properties, but Key -> Keys
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "s") || strings.HasSuffix(word, "x") || strings.HasSuffix(word, "z") ||
		strings.HasSuffix(word, "ch") || strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// isVowel checks if a rune is a vowel
func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	default:
		return false
	}
}
