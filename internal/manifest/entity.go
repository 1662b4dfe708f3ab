package manifest

// AppManifest is the root of the declarative manifest file.
type AppManifest struct {
	Name     string            `json:"name"`
	Entities []*EntityManifest `json:"entities"`
}

// EntityManifest describes one resource type exposed by the backend.
type EntityManifest struct {
	ClassName     string                  `json:"className"`
	Slug          string                  `json:"slug"`
	MainProp      string                  `json:"mainProp"`
	Authenticable bool                    `json:"authenticable,omitempty"`
	Single        bool                    `json:"single,omitempty"`
	Properties    []PropertyManifest      `json:"properties"`
	Relationships []*RelationshipManifest `json:"relationships,omitempty"`
}

// GetProperty returns a pointer to the property with the given name, or nil.
func (e *EntityManifest) GetProperty(name string) *PropertyManifest {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i]
		}
	}
	return nil
}

// HasProperty returns true if the entity declares a property with the given name.
func (e *EntityManifest) HasProperty(name string) bool {
	return e.GetProperty(name) != nil
}

// GetRelationship returns the relationship with the given name, or nil.
func (e *EntityManifest) GetRelationship(name string) *RelationshipManifest {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// VisibleProperties returns the properties selectable in a read query.
// Password properties are never selectable; hidden properties only with
// fullVersion (admin callers).
func (e *EntityManifest) VisibleProperties(fullVersion bool) []PropertyManifest {
	var props []PropertyManifest
	for _, p := range e.Properties {
		if p.IsPassword() {
			continue
		}
		if p.Hidden && !fullVersion {
			continue
		}
		props = append(props, p)
	}
	return props
}

// Label returns the display value property name, falling back to id.
func (e *EntityManifest) Label() string {
	if e.MainProp != "" {
		return e.MainProp
	}
	return "id"
}
