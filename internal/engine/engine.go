package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"mantle/internal/manifest"
	"mantle/internal/schema"
	"mantle/internal/store"
	"mantle/internal/validation"
)

// SingleRecordID is the fixed row id every single entity lives under.
const SingleRecordID = 1

// Engine executes manifest-driven reads and writes against the generated
// schema. One instance serves every entity; the manifest registry and schema
// catalog are immutable after boot, so Engine is safe for concurrent use.
type Engine struct {
	store          *store.Store
	reg            *manifest.Registry
	catalog        *schema.Catalog
	defaultPerPage int
}

func New(st *store.Store, reg *manifest.Registry, catalog *schema.Catalog, defaultPerPage int) *Engine {
	if defaultPerPage <= 0 {
		defaultPerPage = 20
	}
	return &Engine{store: st, reg: reg, catalog: catalog, defaultPerPage: defaultPerPage}
}

// Registry exposes the manifest registry for the HTTP layer.
func (e *Engine) Registry() *manifest.Registry { return e.reg }

// Store exposes the backing store for collaborators (auth login lookup).
func (e *Engine) Store() *store.Store { return e.store }

// normalizeRows undoes SQLite's TEXT/INTEGER storage of time and boolean
// columns. PostgreSQL returns native types, so both passes are no-ops there.
func (e *Engine) normalizeRows(s *schema.EntitySchema, rows []map[string]any) {
	if e.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, s.BooleanColumns())
	}
	store.NormalizeTimes(rows, s.TimeColumns())
}

func (e *Engine) lookup(slug string) (*manifest.EntityManifest, *schema.EntitySchema, error) {
	entity := e.reg.GetEntity(slug)
	if entity == nil {
		return nil, nil, UnknownEntityError(slug)
	}
	return entity, e.catalog.Get(slug), nil
}

// FindAll lists a collection with filtering, ordering, relation loading and
// pagination applied from the raw query parameters.
func (e *Engine) FindAll(ctx context.Context, slug string, queries map[string]string, fullVersion bool) (*Paginator, error) {
	entity, s, err := e.lookup(slug)
	if err != nil {
		return nil, err
	}

	plan, err := e.parseQuery(entity, queries, fullVersion)
	if err != nil {
		return nil, err
	}

	q := e.buildSelect(plan)
	rows, err := store.QueryRows(ctx, e.store.DB, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", slug, err)
	}
	e.normalizeRows(s, rows)

	var total int64
	if plan.PerPage == UnpaginatedPerPage {
		total = int64(len(rows))
	} else {
		cq := e.buildCount(plan)
		total, err = store.Count(ctx, e.store.DB, cq.SQL, cq.Params...)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", slug, err)
		}
	}

	if err := e.loadRelations(ctx, entity, s, rows, plan.Relations, fullVersion); err != nil {
		return nil, err
	}

	return NewPaginator(rows, total, plan.Page, plan.PerPage), nil
}

// FindOne fetches a single record by id, honoring the relations query
// parameter and eager relations.
func (e *Engine) FindOne(ctx context.Context, slug string, id int64, queries map[string]string, fullVersion bool) (map[string]any, error) {
	entity, s, err := e.lookup(slug)
	if err != nil {
		return nil, err
	}

	var paths []string
	if rels, ok := queries["relations"]; ok && rels != "" {
		for _, path := range strings.Split(rels, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			if err := e.validateRelationPath(entity, path); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}

	row, err := e.fetchByID(ctx, entity, s, id, fullVersion)
	if err != nil {
		return nil, err
	}

	if err := e.loadRelations(ctx, entity, s, []map[string]any{row}, paths, fullVersion); err != nil {
		return nil, err
	}
	return row, nil
}

func (e *Engine) fetchByID(ctx context.Context, entity *manifest.EntityManifest, s *schema.EntitySchema, id int64, fullVersion bool) (map[string]any, error) {
	pb := e.store.Dialect.NewParamBuilder()
	cols := visibleColumns(s, entity, fullVersion)
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s",
		strings.Join(cols, ", "), s.Table, pb.Add(id))

	row, err := store.QueryRow(ctx, e.store.DB, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(entity.Slug, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %d: %w", entity.Slug, id, err)
	}
	e.normalizeRows(s, []map[string]any{row})
	return row, nil
}

// SelectOptions lists matching records as id/label pairs, for dropdown
// population. Filters and ordering apply like any collection read; pagination
// is forced off with the unpaginated sentinel.
func (e *Engine) SelectOptions(ctx context.Context, slug string, queries map[string]string) ([]map[string]any, error) {
	entity, s, err := e.lookup(slug)
	if err != nil {
		return nil, err
	}

	plan, err := e.parseQuery(entity, queries, false)
	if err != nil {
		return nil, err
	}
	plan.PerPage = UnpaginatedPerPage

	q := e.buildSelect(plan)
	rows, err := store.QueryRows(ctx, e.store.DB, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("select options %s: %w", slug, err)
	}

	label := entity.Label()
	if s.Column(label) == nil {
		label = "id"
	}
	options := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		options = append(options, map[string]any{
			"id":    row["id"],
			"label": row[label],
		})
	}
	return options, nil
}

// Create validates and persists a new record, then reads it back with eager
// relations loaded. Validation runs before any write; a failing candidate
// never touches storage.
func (e *Engine) Create(ctx context.Context, slug string, dto map[string]any, fullVersion bool) (map[string]any, error) {
	entity, s, err := e.lookup(slug)
	if err != nil {
		return nil, err
	}

	candidate := e.buildCandidate(entity, dto, false)
	applyDefaults(entity, candidate)

	if errs := validation.Validate(entity, candidate, false); len(errs) > 0 {
		return nil, ValidationFailedError(errs)
	}

	fkValues, err := e.resolveManyToOne(ctx, entity, s, dto)
	if err != nil {
		return nil, err
	}
	m2mLinks, err := e.resolveManyToMany(ctx, entity, s, dto)
	if err != nil {
		return nil, err
	}

	if err := e.hashPasswords(entity, candidate); err != nil {
		return nil, err
	}

	cols, vals := e.columnValues(entity, s, candidate)
	for col, v := range fkValues {
		cols = append(cols, col)
		vals = append(vals, v)
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := e.insertRow(ctx, tx, s, cols, vals)
	if err != nil {
		return nil, e.writeError(slug, err)
	}

	for _, link := range m2mLinks {
		if err := e.replaceJoinRows(ctx, tx, link.wiring, id, link.targetIDs); err != nil {
			return nil, e.writeError(slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return e.FindOne(ctx, slug, id, nil, fullVersion)
}

// Update writes a record by id. With partial set, the stored values merge
// under the dto and only named keys change; otherwise the dto replaces the
// record's properties, nulling whatever it omits. Relations change only when
// the dto names them. The password column is never nulled implicitly.
func (e *Engine) Update(ctx context.Context, slug string, id int64, dto map[string]any, partial, fullVersion bool) (map[string]any, error) {
	entity, s, err := e.lookup(slug)
	if err != nil {
		return nil, err
	}

	existing, err := e.fetchByID(ctx, entity, s, id, true)
	if err != nil {
		return nil, err
	}

	candidate := e.buildCandidate(entity, dto, true)
	if partial {
		for i := range entity.Properties {
			p := &entity.Properties[i]
			if _, ok := candidate[p.Name]; !ok {
				if v, ok := existing[p.Name]; ok {
					candidate[p.Name] = v
				}
			}
		}
	} else {
		// Full replacement: omitted properties null out.
		for i := range entity.Properties {
			p := &entity.Properties[i]
			if p.IsPassword() {
				continue
			}
			if _, ok := candidate[p.Name]; !ok {
				candidate[p.Name] = nil
			}
		}
	}

	if errs := validation.Validate(entity, candidate, true); len(errs) > 0 {
		return nil, ValidationFailedError(errs)
	}

	fkValues, err := e.resolveManyToOne(ctx, entity, s, dto)
	if err != nil {
		return nil, err
	}
	m2mLinks, err := e.resolveManyToMany(ctx, entity, s, dto)
	if err != nil {
		return nil, err
	}

	if err := e.hashPasswords(entity, candidate); err != nil {
		return nil, err
	}

	// Partial updates only touch the columns the dto named.
	writeCandidate := candidate
	if partial {
		writeCandidate = e.buildCandidate(entity, dto, true)
		if err := e.hashPasswords(entity, writeCandidate); err != nil {
			return nil, err
		}
	}

	cols, vals := e.columnValues(entity, s, writeCandidate)
	for col, v := range fkValues {
		cols = append(cols, col)
		vals = append(vals, v)
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := e.updateRow(ctx, tx, s, id, cols, vals); err != nil {
		return nil, e.writeError(slug, err)
	}

	for _, link := range m2mLinks {
		if err := e.replaceJoinRows(ctx, tx, link.wiring, id, link.targetIDs); err != nil {
			return nil, e.writeError(slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return e.FindOne(ctx, slug, id, nil, fullVersion)
}

// Delete removes a record. Populated one-to-many relations block the delete;
// many-to-many join rows are cleaned up with it. Returns the deleted record.
func (e *Engine) Delete(ctx context.Context, slug string, id int64, fullVersion bool) (map[string]any, error) {
	entity, s, err := e.lookup(slug)
	if err != nil {
		return nil, err
	}

	row, err := e.fetchByID(ctx, entity, s, id, fullVersion)
	if err != nil {
		return nil, err
	}

	for i := range s.Relations {
		w := &s.Relations[i]
		if !w.Rel.IsOneToMany() {
			continue
		}
		targetTable := schema.TableName(w.TargetSlug)
		pb := e.store.Dialect.NewParamBuilder()
		n, err := store.Count(ctx, e.store.DB,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s", targetTable, w.FKColumn, pb.Add(id)),
			pb.Params()...)
		if err != nil {
			return nil, fmt.Errorf("check relation %s: %w", w.Rel.Name, err)
		}
		if n > 0 {
			return nil, BadRequestError(fmt.Sprintf(
				"Cannot delete %s %d: relation %s still has %d record(s)", slug, id, w.Rel.Name, n))
		}
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i := range s.Relations {
		w := &s.Relations[i]
		if !w.Rel.IsManyToMany() {
			continue
		}
		pb := e.store.Dialect.NewParamBuilder()
		if _, err := store.Exec(ctx, tx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = %s", w.JoinTable, w.SourceJoinColumn, pb.Add(id)),
			pb.Params()...); err != nil {
			return nil, fmt.Errorf("clean join table %s: %w", w.JoinTable, err)
		}
	}

	pb := e.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, tx,
		fmt.Sprintf("DELETE FROM %s WHERE id = %s", s.Table, pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("delete %s %d: %w", slug, id, err)
	}
	if n == 0 {
		return nil, NotFoundError(slug, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return row, nil
}

// FindSingle reads a single entity's one record, creating an empty one on
// first access so singles always resolve.
func (e *Engine) FindSingle(ctx context.Context, slug string, fullVersion bool) (map[string]any, error) {
	entity, _, err := e.lookup(slug)
	if err != nil {
		return nil, err
	}
	if !entity.Single {
		return nil, BadRequestError(fmt.Sprintf("%s is not a single entity", slug))
	}

	row, err := e.FindOne(ctx, slug, SingleRecordID, nil, fullVersion)
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == "NOT_FOUND" {
		if err := e.StoreEmpty(ctx, slug); err != nil {
			return nil, err
		}
		return e.FindOne(ctx, slug, SingleRecordID, nil, fullVersion)
	}
	return row, err
}

// UpdateSingle writes a single entity's record, lazily creating it first.
func (e *Engine) UpdateSingle(ctx context.Context, slug string, dto map[string]any, partial, fullVersion bool) (map[string]any, error) {
	if _, err := e.FindSingle(ctx, slug, true); err != nil {
		return nil, err
	}
	return e.Update(ctx, slug, SingleRecordID, dto, partial, fullVersion)
}

// StoreEmpty inserts a record carrying only manifest defaults and timestamps.
// Validation is skipped: the empty record exists to be filled in later.
func (e *Engine) StoreEmpty(ctx context.Context, slug string) error {
	entity, s, err := e.lookup(slug)
	if err != nil {
		return err
	}

	candidate := map[string]any{}
	applyDefaults(entity, candidate)
	cols, vals := e.columnValues(entity, s, candidate)

	// Singles live at a fixed id. Pinning it here keeps FindSingle working
	// even after collection writes have advanced the autoincrement counter.
	if entity.Single {
		cols = append(cols, "id")
		vals = append(vals, int64(SingleRecordID))
	}

	if _, err := e.insertRow(ctx, e.store.DB, s, cols, vals); err != nil {
		return e.writeError(slug, err)
	}
	return nil
}

// buildCandidate extracts the writable property values from a dto. Hidden
// properties are writable by anyone; only reads gate them. Authenticable
// entities additionally accept the base email and password fields.
func (e *Engine) buildCandidate(entity *manifest.EntityManifest, dto map[string]any, isUpdate bool) map[string]any {
	candidate := map[string]any{}
	for i := range entity.Properties {
		p := &entity.Properties[i]
		if v, ok := dto[p.Name]; ok {
			candidate[p.Name] = v
		}
	}
	if entity.Authenticable {
		if v, ok := dto["email"]; ok && entity.GetProperty("email") == nil {
			candidate["email"] = v
		}
		if v, ok := dto["password"]; ok && entity.GetProperty("password") == nil {
			candidate["password"] = v
		}
	}
	// An explicit empty password on update means "leave it alone".
	if isUpdate {
		if v, ok := candidate["password"]; ok {
			if s, _ := v.(string); s == "" {
				delete(candidate, "password")
			}
		}
	}
	return candidate
}

func applyDefaults(entity *manifest.EntityManifest, candidate map[string]any) {
	for i := range entity.Properties {
		p := &entity.Properties[i]
		if p.Default == nil {
			continue
		}
		if v, ok := candidate[p.Name]; !ok || v == nil {
			candidate[p.Name] = p.Default
		}
	}
}

// hashPasswords bcrypt-hashes every password-typed value in place. Plaintext
// never reaches storage.
func (e *Engine) hashPasswords(entity *manifest.EntityManifest, candidate map[string]any) error {
	hash := func(key string) error {
		v, ok := candidate[key]
		if !ok || v == nil {
			return nil
		}
		plain, ok := v.(string)
		if !ok || plain == "" {
			delete(candidate, key)
			return nil
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		candidate[key] = string(hashed)
		return nil
	}

	for i := range entity.Properties {
		p := &entity.Properties[i]
		if p.IsPassword() {
			if err := hash(p.Name); err != nil {
				return err
			}
		}
	}
	if entity.Authenticable && entity.GetProperty("password") == nil {
		if err := hash("password"); err != nil {
			return err
		}
	}
	return nil
}

type m2mLink struct {
	wiring    *schema.RelationWiring
	targetIDs []int64
}

// resolveManyToOne maps dto relation keys (relation name to target id) onto
// foreign key column values, verifying each referenced record exists. An
// explicit null clears the link.
func (e *Engine) resolveManyToOne(ctx context.Context, entity *manifest.EntityManifest, s *schema.EntitySchema, dto map[string]any) (map[string]any, error) {
	fkValues := map[string]any{}
	for i := range s.Relations {
		w := &s.Relations[i]
		if w.Rel.IsOneToMany() {
			if _, ok := dto[w.Rel.Name]; ok {
				return nil, BadRequestError(fmt.Sprintf("Relation %s is read-only", w.Rel.Name))
			}
			continue
		}
		if !w.Rel.IsManyToOne() {
			continue
		}
		raw, ok := dto[w.Rel.Name]
		if !ok {
			continue
		}
		if raw == nil {
			fkValues[w.FKColumn] = nil
			continue
		}
		id, ok := toID(raw)
		if !ok {
			return nil, BadRequestError(fmt.Sprintf("Invalid id for relation %s: %v", w.Rel.Name, raw))
		}
		if err := e.checkExists(ctx, w.TargetSlug, id); err != nil {
			return nil, err
		}
		fkValues[w.FKColumn] = id
	}
	return fkValues, nil
}

// resolveManyToMany reads owning-side relation keys (relation name to id list)
// and verifies every referenced record. Non-owning sides are read-only.
func (e *Engine) resolveManyToMany(ctx context.Context, entity *manifest.EntityManifest, s *schema.EntitySchema, dto map[string]any) ([]m2mLink, error) {
	var links []m2mLink
	for i := range s.Relations {
		w := &s.Relations[i]
		if !w.Rel.IsManyToMany() {
			continue
		}
		raw, ok := dto[w.Rel.Name]
		if !ok {
			continue
		}
		if !w.Rel.Writable() {
			return nil, BadRequestError(fmt.Sprintf("Relation %s is read-only", w.Rel.Name))
		}
		ids, err := toIDList(raw)
		if err != nil {
			return nil, BadRequestError(fmt.Sprintf("Invalid id list for relation %s: %v", w.Rel.Name, raw))
		}
		for _, id := range ids {
			if err := e.checkExists(ctx, w.TargetSlug, id); err != nil {
				return nil, err
			}
		}
		links = append(links, m2mLink{wiring: w, targetIDs: ids})
	}
	return links, nil
}

func (e *Engine) checkExists(ctx context.Context, slug string, id int64) error {
	pb := e.store.Dialect.NewParamBuilder()
	n, err := store.Count(ctx, e.store.DB,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = %s", schema.TableName(slug), pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("check %s %d: %w", slug, id, err)
	}
	if n == 0 {
		return NotFoundError(slug, id)
	}
	return nil
}

// replaceJoinRows rewrites the join rows linking one source record to its
// targets. Runs inside the caller's transaction.
func (e *Engine) replaceJoinRows(ctx context.Context, tx *sql.Tx, w *schema.RelationWiring, sourceID int64, targetIDs []int64) error {
	pb := e.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, tx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = %s", w.JoinTable, w.SourceJoinColumn, pb.Add(sourceID)),
		pb.Params()...); err != nil {
		return fmt.Errorf("clear join table %s: %w", w.JoinTable, err)
	}
	for _, tid := range targetIDs {
		pb := e.store.Dialect.NewParamBuilder()
		sp := pb.Add(sourceID)
		tp := pb.Add(tid)
		if _, err := store.Exec(ctx, tx,
			fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
				w.JoinTable, w.SourceJoinColumn, w.TargetJoinColumn, sp, tp),
			pb.Params()...); err != nil {
			return fmt.Errorf("insert join row %s: %w", w.JoinTable, err)
		}
	}
	return nil
}

// columnValues renders candidate values as column/parameter pairs, applying
// storage conversions for booleans and JSON columns.
func (e *Engine) columnValues(entity *manifest.EntityManifest, s *schema.EntitySchema, candidate map[string]any) ([]string, []any) {
	var cols []string
	var vals []any
	for _, c := range s.Columns {
		if c.PrimaryKey || c.Auto != "" {
			continue
		}
		v, ok := candidate[c.Name]
		if !ok {
			continue
		}
		cols = append(cols, c.Name)
		vals = append(vals, e.storageValue(c, v))
	}
	return cols, vals
}

func (e *Engine) storageValue(c schema.ColumnSpec, v any) any {
	if v == nil {
		return nil
	}
	switch c.Type {
	case schema.ColBoolean:
		if b, ok := v.(bool); ok {
			return e.store.Dialect.BoolParam(b)
		}
	case schema.ColJSON:
		switch v.(type) {
		case map[string]any, []any:
			if data, err := json.Marshal(v); err == nil {
				return string(data)
			}
		}
	}
	return v
}

// insertRow persists one row with bookkeeping timestamps and returns its id.
// PostgreSQL yields the id through RETURNING; SQLite through LastInsertId.
func (e *Engine) insertRow(ctx context.Context, q store.Querier, s *schema.EntitySchema, cols []string, vals []any) (int64, error) {
	pb := e.store.Dialect.NewParamBuilder()
	now := e.store.Dialect.NowExpr()

	allCols := append(append([]string{}, cols...), "created_at", "updated_at")
	phs := make([]string, 0, len(allCols))
	for _, v := range vals {
		phs = append(phs, pb.Add(v))
	}
	phs = append(phs, now, now)

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.Table, strings.Join(allCols, ", "), strings.Join(phs, ", "))

	if e.store.Dialect.Name() == "postgres" {
		var id int64
		err := q.QueryRowContext(ctx, sqlStr+" RETURNING id", pb.Params()...).Scan(&id)
		if err != nil {
			return 0, store.MapError(e.store.Dialect, err)
		}
		return id, nil
	}

	result, err := q.ExecContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return 0, store.MapError(e.store.Dialect, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (e *Engine) updateRow(ctx context.Context, q store.Querier, s *schema.EntitySchema, id int64, cols []string, vals []any) error {
	pb := e.store.Dialect.NewParamBuilder()

	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", col, pb.Add(vals[i])))
	}
	sets = append(sets, fmt.Sprintf("updated_at = %s", e.store.Dialect.NowExpr()))

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		s.Table, strings.Join(sets, ", "), pb.Add(id))
	if _, err := store.Exec(ctx, q, sqlStr, pb.Params()...); err != nil {
		return store.MapError(e.store.Dialect, err)
	}
	return nil
}

// writeError translates storage sentinels into the request error taxonomy.
func (e *Engine) writeError(slug string, err error) error {
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError(fmt.Sprintf("%s violates a unique constraint", slug))
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fmt.Errorf("write %s: %w", slug, err)
}

func toID(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

func toIDList(v any) ([]int64, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	ids := make([]int64, 0, len(raw))
	for _, item := range raw {
		id, ok := toID(item)
		if !ok {
			return nil, fmt.Errorf("invalid id: %v", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
