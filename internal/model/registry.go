package model

import (
	"log/slog"
)

// Well known properties shared by most entity types.
var (
	EPID           = newIDProperty()
	EPSelfLink     = NewEntityProperty("selfLink", TypeString).WithJSONName("@iot.selfLink")
	EPName         = NewEntityProperty("name", TypeString)
	EPDescription  = NewEntityProperty("description", TypeString)
	EPDefinition   = NewEntityProperty("definition", TypeString)
	EPEncodingType = NewEntityProperty("encodingType", TypeString)
	EPMetadata     = NewEntityProperty("metadata", TypeAny)
	EPProperties   = NewEntityProperty("properties", TypeObject)
)

// Registry is the catalog of entity types, entity properties and navigation
// properties. Plugins populate it during a single threaded initialization
// phase. LinkEntityTypes freezes it, after which it is safe for concurrent reads.
type Registry struct {
	entityTypes          map[string]*EntityType
	typeOrder            []*EntityType
	entityProperties     map[string]*Property
	navigationProperties map[string]*Property
	frozen               bool
	logger               *slog.Logger
}

// NewRegistry creates a registry holding the well known properties.
func NewRegistry() *Registry {
	r := &Registry{
		entityTypes:          make(map[string]*EntityType),
		entityProperties:     make(map[string]*Property),
		navigationProperties: make(map[string]*Property),
		logger:               slog.Default(),
	}
	for _, p := range []*Property{EPID, EPSelfLink, EPName, EPDescription, EPDefinition, EPEncodingType, EPMetadata, EPProperties} {
		r.entityProperties[p.name] = p
	}
	return r
}

// SetLogger sets the logger. A nil logger selects slog.Default().
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// RegisterEntityType adds an entity type. Registering the same instance again
// returns it; a different type under a taken name or plural name is an error.
func (r *Registry) RegisterEntityType(t *EntityType) (*EntityType, error) {
	if r.frozen {
		return nil, frozenError("register entity type", t.entityName)
	}
	for _, key := range []string{t.entityName, t.pluralName} {
		if existing, ok := r.entityTypes[key]; ok {
			if existing == t {
				return existing, nil
			}
			return nil, NewConfigError("register entity type", t.entityName,
				"name '"+key+"' is already used by entity type "+existing.entityName)
		}
	}
	r.entityTypes[t.entityName] = t
	r.entityTypes[t.pluralName] = t
	r.typeOrder = append(r.typeOrder, t)
	r.logger.Debug("Registered entity type", "entityType", t.entityName, "plural", t.pluralName)
	return t, nil
}

// RegisterEntityProperty adds an entity property. When a compatible property
// with the same name exists, the existing instance is returned.
func (r *Registry) RegisterEntityProperty(p *Property) (*Property, error) {
	if p.IsNavigation() {
		return nil, NewConfigError("register entity property", p.name, "navigation properties must use RegisterNavigationProperty")
	}
	return r.register("register entity property", r.entityProperties, p)
}

// RegisterNavigationProperty adds a navigation property. Whether the property
// points to one entity or to a set is fixed by its kind.
func (r *Registry) RegisterNavigationProperty(p *Property) (*Property, error) {
	if !p.IsNavigation() {
		return nil, NewConfigError("register navigation property", p.name, "entity properties must use RegisterEntityProperty")
	}
	return r.register("register navigation property", r.navigationProperties, p)
}

func (r *Registry) register(op string, into map[string]*Property, p *Property) (*Property, error) {
	if r.frozen {
		return nil, frozenError(op, p.name)
	}
	if existing, ok := into[p.name]; ok {
		if existing.compatible(p) {
			return existing, nil
		}
		return nil, NewConfigError(op, p.name, "already registered as "+describe(existing)+", cannot register "+describe(p))
	}
	into[p.name] = p
	return p, nil
}

func describe(p *Property) string {
	if p.IsNavigation() {
		return p.kind.String() + " to " + p.targetName
	}
	return p.kind.String() + " of type " + p.typ.Name()
}

// EntityTypeForName finds an entity type by its name or plural name.
func (r *Registry) EntityTypeForName(name string) (*EntityType, bool) {
	t, ok := r.entityTypes[name]
	return t, ok
}

// EntityTypes returns the registered entity types in registration order.
func (r *Registry) EntityTypes() []*EntityType {
	return append([]*EntityType(nil), r.typeOrder...)
}

// EntityProperty finds a registered entity property by name.
func (r *Registry) EntityProperty(name string) (*Property, bool) {
	p, ok := r.entityProperties[name]
	return p, ok
}

// NavigationProperty finds a registered navigation property by name.
func (r *Registry) NavigationProperty(name string) (*Property, bool) {
	p, ok := r.navigationProperties[name]
	return p, ok
}

// IsFrozen reports whether LinkEntityTypes has completed.
func (r *Registry) IsFrozen() bool {
	return r.frozen
}

// LinkEntityTypes resolves navigation targets, verifies that every declared
// property is registered and freezes the registry and all entity types.
func (r *Registry) LinkEntityTypes() error {
	if r.frozen {
		return frozenError("link entity types", "registry")
	}
	for _, t := range r.typeOrder {
		for _, p := range t.properties {
			if p.IsNavigation() {
				if registered, ok := r.navigationProperties[p.name]; !ok || registered != p {
					return NewConfigError("link entity type "+t.entityName, p.name, "navigation property is not registered")
				}
				target, ok := r.entityTypes[p.targetName]
				if !ok {
					return NewConfigError("link entity type "+t.entityName, p.name, "target entity type '"+p.targetName+"' is not registered")
				}
				if p.target != nil && p.target != target {
					return NewConfigError("link entity type "+t.entityName, p.name, "navigation property is already linked to "+p.target.entityName)
				}
				p.target = target
				continue
			}
			if registered, ok := r.entityProperties[p.name]; !ok || registered != p {
				return NewConfigError("link entity type "+t.entityName, p.name, "entity property is not registered")
			}
		}
		if t.primaryKey == nil {
			return NewConfigError("link entity type", t.entityName, "no primary key declared")
		}
	}
	for _, t := range r.typeOrder {
		t.frozen = true
	}
	r.frozen = true
	r.logger.Info("Linked entity types", "count", len(r.typeOrder))
	return nil
}
