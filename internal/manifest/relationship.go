package manifest

// Relationship types. One-to-many/many-to-one pairs are declared from both
// sides but persisted once: the foreign key lives on the many side.
const (
	OneToMany  = "one_to_many"
	ManyToOne  = "many_to_one"
	ManyToMany = "many_to_many"
)

// RelationshipManifest describes one relationship declared on an entity.
type RelationshipManifest struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	TargetEntitySlug string `json:"entity"`
	Eager            bool   `json:"eager,omitempty"`
	OwningSide       bool   `json:"owningSide,omitempty"`
}

func (r *RelationshipManifest) IsOneToMany() bool  { return r.Type == OneToMany }
func (r *RelationshipManifest) IsManyToOne() bool  { return r.Type == ManyToOne }
func (r *RelationshipManifest) IsManyToMany() bool { return r.Type == ManyToMany }

// Writable reports whether a write dto may attach this relation by id.
// One-to-many relations and the non-owning side of many-to-many are
// read-only virtual relations.
func (r *RelationshipManifest) Writable() bool {
	if r.IsOneToMany() {
		return false
	}
	if r.IsManyToMany() && !r.OwningSide {
		return false
	}
	return true
}
