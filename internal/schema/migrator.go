package schema

import (
	"context"
	"fmt"
	"strings"

	"mantle/internal/store"
)

// Migrator materializes generated entity schemas in the database.
type Migrator struct {
	store *store.Store
}

func NewMigrator(s *store.Store) *Migrator {
	return &Migrator{store: s}
}

// MigrateAll brings every table in the catalog up to date, then the join
// tables for owning many-to-many relations.
func (m *Migrator) MigrateAll(ctx context.Context, catalog *Catalog) error {
	for _, s := range catalog.All() {
		if err := m.Migrate(ctx, s); err != nil {
			return fmt.Errorf("migrate %s: %w", s.Slug, err)
		}
	}
	for _, s := range catalog.All() {
		for i := range s.Relations {
			w := &s.Relations[i]
			if w.Rel.IsManyToMany() && w.Rel.OwningSide {
				if err := m.migrateJoinTable(ctx, w); err != nil {
					return fmt.Errorf("migrate join table %s: %w", w.JoinTable, err)
				}
			}
		}
	}
	return nil
}

// Migrate ensures the table matches the entity schema. Creates the table if
// it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, s *EntitySchema) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, s.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, s)
	}
	return m.alterTable(ctx, s)
}

func (m *Migrator) createTable(ctx context.Context, s *EntitySchema) error {
	var cols []string
	for i := range s.Columns {
		cols = append(cols, m.columnDef(&s.Columns[i]))
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", s.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.Table, err)
	}

	return m.createIndexes(ctx, s)
}

func (m *Migrator) alterTable(ctx context.Context, s *EntitySchema) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, s.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", s.Table, err)
	}

	for _, c := range s.Columns {
		if _, ok := existing[c.Name]; ok {
			continue
		}
		// New columns are always nullable, so existing rows stay valid.
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			s.Table, c.Name, m.store.Dialect.ColumnType(string(c.Type)))
		if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", s.Table, c.Name, err)
		}
	}

	return m.createIndexes(ctx, s)
}

// columnDef renders one column. Only the primary key carries constraints:
// every other column is nullable by design, requiredness is validated at the
// application layer on the write path.
func (m *Migrator) columnDef(c *ColumnSpec) string {
	if c.PrimaryKey {
		return c.Name + " " + m.store.Dialect.PrimaryKeyDDL()
	}
	return c.Name + " " + m.store.Dialect.ColumnType(string(c.Type))
}

func (m *Migrator) createIndexes(ctx context.Context, s *EntitySchema) error {
	for _, unique := range s.Uniques {
		name := fmt.Sprintf("idx_%s_%s", s.Table, strings.Join(unique, "_"))
		ddl := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			name, s.Table, strings.Join(unique, ", "))
		if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create unique index %s: %w", name, err)
		}
	}
	return nil
}

func (m *Migrator) migrateJoinTable(ctx context.Context, w *RelationWiring) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, w.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	intType := m.store.Dialect.ColumnType(string(ColInteger))
	ddl := fmt.Sprintf(
		`CREATE TABLE %s (
  %s %s NOT NULL,
  %s %s NOT NULL,
  PRIMARY KEY (%s, %s)
)`,
		w.JoinTable,
		w.SourceJoinColumn, intType,
		w.TargetJoinColumn, intType,
		w.SourceJoinColumn, w.TargetJoinColumn,
	)

	if _, err := m.store.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create join table %s: %w", w.JoinTable, err)
	}
	return nil
}
