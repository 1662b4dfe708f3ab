package manifest

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// LoadFile reads a manifest file, validates it and populates the registry.
// Any defect in the manifest is a boot-time fatal, never a per-request error.
func LoadFile(path string, reg *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", path, err)
	}

	var app AppManifest
	if err := json.Unmarshal(data, &app); err != nil {
		return fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if err := Validate(&app); err != nil {
		return fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	reg.Load(app.Entities)
	log.Printf("Loaded %d entities from manifest %s", len(app.Entities), path)
	return nil
}

// Validate checks structural invariants of the manifest.
func Validate(app *AppManifest) error {
	validTypes := make(map[PropType]bool, len(AllPropTypes))
	for _, t := range AllPropTypes {
		validTypes[t] = true
	}

	slugs := make(map[string]bool, len(app.Entities))
	for _, e := range app.Entities {
		if e.Slug == "" {
			return fmt.Errorf("entity %q has no slug", e.ClassName)
		}
		if slugs[e.Slug] {
			return fmt.Errorf("duplicate entity slug %q", e.Slug)
		}
		slugs[e.Slug] = true
	}

	for _, e := range app.Entities {
		for i := range e.Properties {
			p := &e.Properties[i]
			if p.Name == "" {
				return fmt.Errorf("entity %q has a property with no name", e.Slug)
			}
			if !validTypes[p.Type] {
				return fmt.Errorf("entity %q property %q has unknown type %q", e.Slug, p.Name, p.Type)
			}
		}
		for _, rel := range e.Relationships {
			switch rel.Type {
			case OneToMany, ManyToOne, ManyToMany:
			default:
				return fmt.Errorf("entity %q relationship %q has unknown type %q", e.Slug, rel.Name, rel.Type)
			}
			if !slugs[rel.TargetEntitySlug] {
				return fmt.Errorf("entity %q relationship %q targets unknown entity %q",
					e.Slug, rel.Name, rel.TargetEntitySlug)
			}
		}
		if e.Single {
			for _, rel := range e.Relationships {
				if rel.IsOneToMany() {
					return fmt.Errorf("single entity %q cannot declare one-to-many relationship %q", e.Slug, rel.Name)
				}
			}
		}
	}

	// Exactly one owning side per many-to-many pair. The resolver relies on
	// this to register the join table once.
	for _, e := range app.Entities {
		for _, rel := range e.Relationships {
			if !rel.IsManyToMany() || !rel.OwningSide {
				continue
			}
			target := findEntity(app, rel.TargetEntitySlug)
			for _, other := range target.Relationships {
				if other == rel {
					continue
				}
				if other.IsManyToMany() && other.OwningSide && other.TargetEntitySlug == e.Slug {
					return fmt.Errorf("many-to-many between %q and %q declares two owning sides (%q and %q)",
						e.Slug, target.Slug, rel.Name, other.Name)
				}
			}
		}
	}

	return nil
}

func findEntity(app *AppManifest, slug string) *EntityManifest {
	for _, e := range app.Entities {
		if e.Slug == slug {
			return e
		}
	}
	return nil
}
