package schema

import (
	"fmt"
	"strings"

	"mantle/internal/manifest"
)

// ColumnType is the storage-neutral column type. Dialects map it to DDL.
type ColumnType string

const (
	ColText      ColumnType = "text"
	ColInteger   ColumnType = "integer"
	ColNumeric   ColumnType = "numeric"
	ColBoolean   ColumnType = "boolean"
	ColDate      ColumnType = "date"
	ColTimestamp ColumnType = "timestamp"
	ColJSON      ColumnType = "json"
)

// propColumnTypes is the fixed lookup table from manifest property types to
// column types. It must be total over manifest.AllPropTypes; Build fails fast
// at boot if a type is missing.
var propColumnTypes = map[manifest.PropType]ColumnType{
	manifest.PropString:    ColText,
	manifest.PropNumber:    ColNumeric,
	manifest.PropLink:      ColText,
	manifest.PropText:      ColText,
	manifest.PropRichText:  ColText,
	manifest.PropMoney:     ColNumeric,
	manifest.PropDate:      ColDate,
	manifest.PropTimestamp: ColTimestamp,
	manifest.PropEmail:     ColText,
	manifest.PropBoolean:   ColBoolean,
	manifest.PropPassword:  ColText,
	manifest.PropChoice:    ColText,
	manifest.PropLocation:  ColJSON,
	manifest.PropFile:      ColText,
	manifest.PropImage:     ColJSON,
}

// ColumnSpec describes one generated column. Every column except the id
// primary key is nullable at the storage layer: requiredness is enforced by
// the validation collaborator on the write path, never by the schema.
type ColumnSpec struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	Auto       string // "create" or "update" for timestamp bookkeeping
}

// EntitySchema is the relational shape derived from one EntityManifest.
type EntitySchema struct {
	Name          string // class name
	Slug          string
	Table         string
	Columns       []ColumnSpec
	Relations     []RelationWiring
	Uniques       [][]string
	Authenticable bool
	Single        bool
}

// Column returns the column with the given name, or nil.
func (s *EntitySchema) Column(name string) *ColumnSpec {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// Relation returns the wiring for the relationship with the given name, or nil.
func (s *EntitySchema) Relation(name string) *RelationWiring {
	for i := range s.Relations {
		if s.Relations[i].Rel.Name == name {
			return &s.Relations[i]
		}
	}
	return nil
}

// BooleanColumns returns the names of boolean columns, used to normalize
// SQLite integer booleans in read results.
func (s *EntitySchema) BooleanColumns() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Type == ColBoolean {
			names = append(names, c.Name)
		}
	}
	return names
}

// TimeColumns returns the names of date and timestamp columns, used to parse
// SQLite TEXT storage back into time values.
func (s *EntitySchema) TimeColumns() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Type == ColDate || c.Type == ColTimestamp {
			names = append(names, c.Name)
		}
	}
	return names
}

// Catalog holds every generated schema, keyed by entity slug.
type Catalog struct {
	bySlug map[string]*EntitySchema
	order  []string
}

// Get returns the schema for the given slug, or nil.
func (c *Catalog) Get(slug string) *EntitySchema {
	return c.bySlug[slug]
}

// All returns the schemas in manifest declaration order.
func (c *Catalog) All() []*EntitySchema {
	schemas := make([]*EntitySchema, 0, len(c.order))
	for _, slug := range c.order {
		schemas = append(schemas, c.bySlug[slug])
	}
	return schemas
}

// Build derives one EntitySchema per registered entity. The base template
// contributes id and timestamp columns; authenticable entities additionally
// get email and password columns and a unique constraint on email.
func Build(reg *manifest.Registry) (*Catalog, error) {
	if err := checkLookupTotal(); err != nil {
		return nil, err
	}

	catalog := &Catalog{bySlug: make(map[string]*EntitySchema)}
	for _, entity := range reg.AllEntities() {
		s, err := buildEntity(reg, entity)
		if err != nil {
			return nil, err
		}
		catalog.bySlug[s.Slug] = s
		catalog.order = append(catalog.order, s.Slug)
	}
	return catalog, nil
}

func buildEntity(reg *manifest.Registry, entity *manifest.EntityManifest) (*EntitySchema, error) {
	s := &EntitySchema{
		Name:          entity.ClassName,
		Slug:          entity.Slug,
		Table:         TableName(entity.Slug),
		Authenticable: entity.Authenticable,
		Single:        entity.Single,
	}

	s.Columns = append(s.Columns,
		ColumnSpec{Name: "id", Type: ColInteger, PrimaryKey: true},
		ColumnSpec{Name: "created_at", Type: ColTimestamp, Auto: "create"},
		ColumnSpec{Name: "updated_at", Type: ColTimestamp, Auto: "update"},
	)

	if entity.Authenticable {
		if entity.GetProperty("email") == nil {
			s.Columns = append(s.Columns, ColumnSpec{Name: "email", Type: ColText})
		}
		if entity.GetProperty("password") == nil {
			s.Columns = append(s.Columns, ColumnSpec{Name: "password", Type: ColText})
		}
		s.Uniques = append(s.Uniques, []string{"email"})
	}

	for i := range entity.Properties {
		p := &entity.Properties[i]
		colType, ok := propColumnTypes[p.Type]
		if !ok {
			return nil, fmt.Errorf("entity %q property %q: no column mapping for type %q", entity.Slug, p.Name, p.Type)
		}
		if s.Column(p.Name) != nil {
			continue // base column already covers it (authenticable email/password)
		}
		s.Columns = append(s.Columns, ColumnSpec{Name: p.Name, Type: colType})
	}

	wirings, err := ResolveRelations(reg, entity)
	if err != nil {
		return nil, err
	}
	s.Relations = wirings
	for _, w := range wirings {
		if w.Rel.IsManyToOne() {
			s.Columns = append(s.Columns, ColumnSpec{Name: w.FKColumn, Type: ColInteger})
		}
	}

	return s, nil
}

func checkLookupTotal() error {
	for _, t := range manifest.AllPropTypes {
		if _, ok := propColumnTypes[t]; !ok {
			return fmt.Errorf("schema: property type %q has no column mapping", t)
		}
	}
	return nil
}

// TableName converts an entity slug into a table name.
func TableName(slug string) string {
	return strings.ReplaceAll(slug, "-", "_")
}
