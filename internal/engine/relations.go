package engine

import (
	"context"
	"fmt"
	"strings"

	"mantle/internal/manifest"
	"mantle/internal/schema"
	"mantle/internal/store"
)

// loadRelations hydrates relations onto the given rows, then recurses into
// the hydrated children with the requested-path list pruned: the traversed
// relation is removed and its name stripped as a prefix from deeper dotted
// paths. Each recursion therefore strictly shrinks the path list, which
// terminates on cyclic relation graphs by construction. Eager relations
// hydrate one level; deeper levels load only through explicit paths.
func (e *Engine) loadRelations(ctx context.Context, entity *manifest.EntityManifest, s *schema.EntitySchema, rows []map[string]any, paths []string, fullVersion bool) error {
	if len(rows) == 0 {
		return nil
	}

	for i := range s.Relations {
		w := &s.Relations[i]
		requested, sub := prunePaths(paths, w.Rel.Name)
		if !requested && !w.Rel.Eager {
			continue
		}

		targetEntity := e.reg.GetEntity(w.TargetSlug)
		targetSchema := e.catalog.Get(w.TargetSlug)
		if targetEntity == nil || targetSchema == nil {
			return fmt.Errorf("unknown relation target: %s", w.TargetSlug)
		}

		var children []map[string]any
		var err error
		switch {
		case w.Rel.IsManyToOne():
			children, err = e.attachManyToOne(ctx, w, targetEntity, targetSchema, rows, fullVersion)
		case w.Rel.IsOneToMany():
			children, err = e.attachOneToMany(ctx, w, targetEntity, targetSchema, rows, fullVersion)
		case w.Rel.IsManyToMany():
			children, err = e.attachManyToMany(ctx, w, targetEntity, targetSchema, rows, fullVersion)
		}
		if err != nil {
			return fmt.Errorf("load relation %s: %w", w.Rel.Name, err)
		}

		if len(sub) > 0 {
			if err := e.loadRelations(ctx, targetEntity, targetSchema, children, sub, fullVersion); err != nil {
				return err
			}
		}
	}

	return nil
}

// prunePaths reports whether relName heads any of the requested paths and
// returns the remaining sub-paths with the relName prefix stripped
// (e.g. "owner.company" becomes "company" once "owner" is traversed).
func prunePaths(paths []string, relName string) (bool, []string) {
	requested := false
	var sub []string
	for _, path := range paths {
		if path == relName {
			requested = true
			continue
		}
		if strings.HasPrefix(path, relName+".") {
			requested = true
			sub = append(sub, strings.TrimPrefix(path, relName+"."))
		}
	}
	return requested, sub
}

func (e *Engine) attachManyToOne(ctx context.Context, w *schema.RelationWiring, targetEntity *manifest.EntityManifest, targetSchema *schema.EntitySchema, rows []map[string]any, fullVersion bool) ([]map[string]any, error) {
	fkValues := collectValues(rows, w.FKColumn)
	if len(fkValues) == 0 {
		for _, row := range rows {
			row[w.Rel.Name] = nil
		}
		return nil, nil
	}

	children, err := e.fetchByColumn(ctx, targetEntity, targetSchema, "id", fkValues, fullVersion)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]map[string]any, len(children))
	for _, child := range children {
		byID[fmt.Sprintf("%v", child["id"])] = child
	}
	for _, row := range rows {
		fk := row[w.FKColumn]
		if fk == nil {
			row[w.Rel.Name] = nil
			continue
		}
		if child, ok := byID[fmt.Sprintf("%v", fk)]; ok {
			row[w.Rel.Name] = child
		} else {
			row[w.Rel.Name] = nil
		}
	}
	return children, nil
}

func (e *Engine) attachOneToMany(ctx context.Context, w *schema.RelationWiring, targetEntity *manifest.EntityManifest, targetSchema *schema.EntitySchema, rows []map[string]any, fullVersion bool) ([]map[string]any, error) {
	parentIDs := collectValues(rows, "id")
	if len(parentIDs) == 0 {
		return nil, nil
	}

	children, err := e.fetchByColumn(ctx, targetEntity, targetSchema, w.FKColumn, parentIDs, fullVersion)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]map[string]any)
	for _, child := range children {
		fk := fmt.Sprintf("%v", child[w.FKColumn])
		grouped[fk] = append(grouped[fk], child)
	}
	for _, row := range rows {
		pk := fmt.Sprintf("%v", row["id"])
		if group, ok := grouped[pk]; ok {
			row[w.Rel.Name] = group
		} else {
			row[w.Rel.Name] = []map[string]any{}
		}
	}
	return children, nil
}

func (e *Engine) attachManyToMany(ctx context.Context, w *schema.RelationWiring, targetEntity *manifest.EntityManifest, targetSchema *schema.EntitySchema, rows []map[string]any, fullVersion bool) ([]map[string]any, error) {
	parentIDs := collectValues(rows, "id")
	if len(parentIDs) == 0 {
		return nil, nil
	}

	pb := e.store.Dialect.NewParamBuilder()
	phs := make([]string, len(parentIDs))
	for i, id := range parentIDs {
		phs[i] = pb.Add(id)
	}
	joinSQL := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s)",
		w.SourceJoinColumn, w.TargetJoinColumn, w.JoinTable, w.SourceJoinColumn, strings.Join(phs, ", "))
	joinRows, err := store.QueryRows(ctx, e.store.DB, joinSQL, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load join table %s: %w", w.JoinTable, err)
	}

	if len(joinRows) == 0 {
		for _, row := range rows {
			row[w.Rel.Name] = []map[string]any{}
		}
		return nil, nil
	}

	var targetIDs []any
	seen := make(map[string]bool)
	for _, jr := range joinRows {
		tid := fmt.Sprintf("%v", jr[w.TargetJoinColumn])
		if !seen[tid] {
			seen[tid] = true
			targetIDs = append(targetIDs, jr[w.TargetJoinColumn])
		}
	}

	children, err := e.fetchByColumn(ctx, targetEntity, targetSchema, "id", targetIDs, fullVersion)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]map[string]any, len(children))
	for _, child := range children {
		byID[fmt.Sprintf("%v", child["id"])] = child
	}

	sourceToTargets := make(map[string][]map[string]any)
	for _, jr := range joinRows {
		sid := fmt.Sprintf("%v", jr[w.SourceJoinColumn])
		tid := fmt.Sprintf("%v", jr[w.TargetJoinColumn])
		if child, ok := byID[tid]; ok {
			sourceToTargets[sid] = append(sourceToTargets[sid], child)
		}
	}
	for _, row := range rows {
		pk := fmt.Sprintf("%v", row["id"])
		if targets, ok := sourceToTargets[pk]; ok {
			row[w.Rel.Name] = targets
		} else {
			row[w.Rel.Name] = []map[string]any{}
		}
	}
	return children, nil
}

// fetchByColumn batch-loads a target entity's visible rows by one column.
func (e *Engine) fetchByColumn(ctx context.Context, entity *manifest.EntityManifest, s *schema.EntitySchema, column string, values []any, fullVersion bool) ([]map[string]any, error) {
	pb := e.store.Dialect.NewParamBuilder()
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}

	cols := visibleColumns(s, entity, fullVersion)
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		strings.Join(cols, ", "), s.Table, column, strings.Join(phs, ", "))

	rows, err := store.QueryRows(ctx, e.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	e.normalizeRows(s, rows)
	return rows, nil
}

func collectValues(rows []map[string]any, field string) []any {
	seen := make(map[string]bool)
	var values []any
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if !seen[s] {
			seen[s] = true
			values = append(values, v)
		}
	}
	return values
}
