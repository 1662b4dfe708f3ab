package manifest

import "sync"

// Registry holds the loaded manifest, keyed by entity slug. It is populated
// once at boot and treated as immutable, read-only shared state thereafter.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityManifest
	order    []string // slugs in manifest declaration order
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*EntityManifest)}
}

// GetEntity returns the entity with the given slug, or nil.
func (r *Registry) GetEntity(slug string) *EntityManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[slug]
}

// AllEntities returns all registered entities in declaration order.
func (r *Registry) AllEntities() []*EntityManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*EntityManifest, 0, len(r.order))
	for _, slug := range r.order {
		entities = append(entities, r.entities[slug])
	}
	return entities
}

// OwningManyToMany resolves the owning side of a many-to-many pair. Given a
// non-owning relationship it returns the target entity's matching owning
// relationship and the entity that declares it. Given an owning relationship
// it returns the inputs unchanged.
func (r *Registry) OwningManyToMany(entity *EntityManifest, rel *RelationshipManifest) (*EntityManifest, *RelationshipManifest) {
	if !rel.IsManyToMany() {
		return nil, nil
	}
	if rel.OwningSide {
		return entity, rel
	}
	target := r.GetEntity(rel.TargetEntitySlug)
	if target == nil {
		return nil, nil
	}
	for _, other := range target.Relationships {
		if other.IsManyToMany() && other.OwningSide && other.TargetEntitySlug == entity.Slug {
			return target, other
		}
	}
	return nil, nil
}

// InverseManyToOne finds the many-to-one relationship on the target entity
// that backs a one-to-many declaration, i.e. the relation whose foreign key
// column realizes the pair.
func (r *Registry) InverseManyToOne(entity *EntityManifest, rel *RelationshipManifest) (*EntityManifest, *RelationshipManifest) {
	if !rel.IsOneToMany() {
		return nil, nil
	}
	target := r.GetEntity(rel.TargetEntitySlug)
	if target == nil {
		return nil, nil
	}
	for _, other := range target.Relationships {
		if other.IsManyToOne() && other.TargetEntitySlug == entity.Slug {
			return target, other
		}
	}
	return nil, nil
}

// Load replaces the registry contents. Called once during startup.
func (r *Registry) Load(entities []*EntityManifest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*EntityManifest, len(entities))
	r.order = r.order[:0]
	for _, e := range entities {
		r.entities[e.Slug] = e
		r.order = append(r.order, e.Slug)
	}
}
