package schema

import (
	"fmt"

	"mantle/internal/manifest"
)

// RelationWiring is the persisted shape behind one declared relationship.
// Many-to-one owns a foreign key column on the declaring entity's table.
// One-to-many is virtual: it resolves to the matching many-to-one on the
// target. Many-to-many persists a join table only on the owning side; the
// non-owning side reuses it with source and target columns swapped.
type RelationWiring struct {
	Rel        *manifest.RelationshipManifest
	SourceSlug string
	TargetSlug string

	// Many-to-one: FK column on the source table.
	// One-to-many: FK column on the target table.
	FKColumn string

	// Many-to-many join table wiring. SourceJoinColumn references the
	// declaring entity's id from this wiring's point of view.
	JoinTable        string
	SourceJoinColumn string
	TargetJoinColumn string

	// Virtual relations have no storage of their own on the declaring side.
	Virtual bool
}

// ResolveRelations computes the wiring for every relationship an entity
// declares. Unresolvable declarations are boot-time errors.
func ResolveRelations(reg *manifest.Registry, entity *manifest.EntityManifest) ([]RelationWiring, error) {
	var wirings []RelationWiring
	for _, rel := range entity.Relationships {
		w, err := resolveRelation(reg, entity, rel)
		if err != nil {
			return nil, err
		}
		wirings = append(wirings, w)
	}
	return wirings, nil
}

func resolveRelation(reg *manifest.Registry, entity *manifest.EntityManifest, rel *manifest.RelationshipManifest) (RelationWiring, error) {
	w := RelationWiring{
		Rel:        rel,
		SourceSlug: entity.Slug,
		TargetSlug: rel.TargetEntitySlug,
	}

	switch {
	case rel.IsManyToOne():
		w.FKColumn = rel.Name + "_id"

	case rel.IsOneToMany():
		_, inverse := reg.InverseManyToOne(entity, rel)
		if inverse == nil {
			return w, fmt.Errorf("entity %q one-to-many %q: target %q declares no many-to-one back to %q",
				entity.Slug, rel.Name, rel.TargetEntitySlug, entity.Slug)
		}
		w.FKColumn = inverse.Name + "_id"
		w.Virtual = true

	case rel.IsManyToMany():
		owner, owning := reg.OwningManyToMany(entity, rel)
		if owning == nil {
			return w, fmt.Errorf("entity %q many-to-many %q: no owning side found for pair with %q",
				entity.Slug, rel.Name, rel.TargetEntitySlug)
		}
		w.JoinTable = JoinTableName(owner.Slug, owning.Name)
		sourceCol, targetCol := joinColumns(owner.Slug, owning.TargetEntitySlug, owning.Name)
		if rel.OwningSide {
			w.SourceJoinColumn, w.TargetJoinColumn = sourceCol, targetCol
		} else {
			// Non-owning side reads the same table from the other end.
			w.SourceJoinColumn, w.TargetJoinColumn = targetCol, sourceCol
			w.Virtual = true
		}

	default:
		return w, fmt.Errorf("entity %q relationship %q: unknown type %q", entity.Slug, rel.Name, rel.Type)
	}

	return w, nil
}

// JoinTableName derives the join table for an owning many-to-many relation.
func JoinTableName(ownerSlug, relName string) string {
	return TableName(ownerSlug) + "_" + TableName(relName)
}

func joinColumns(sourceSlug, targetSlug, relName string) (string, string) {
	sourceCol := TableName(sourceSlug) + "_id"
	targetCol := TableName(targetSlug) + "_id"
	if sourceCol == targetCol {
		// Self-referencing pair: disambiguate the target end.
		targetCol = TableName(relName) + "_id"
	}
	return sourceCol, targetCol
}
