package engine

import (
	"fmt"
	"strconv"
	"strings"

	"mantle/internal/manifest"
	"mantle/internal/schema"
	"mantle/internal/store"
)

// reservedParams are query keys that never carry a filter.
var reservedParams = map[string]bool{
	"page":      true,
	"perPage":   true,
	"orderBy":   true,
	"order":     true,
	"relations": true,
}

// operatorSuffixes maps filter-key suffixes to SQL comparison operators.
// Matching tries entries in order, longest suffix first, so a shorter suffix
// can never shadow a longer one.
var operatorSuffixes = []struct {
	Suffix string
	SQL    string
}{
	{"_like", "LIKE"},
	{"_gte", ">="},
	{"_lte", "<="},
	{"_eq", "="},
	{"_ne", "!="},
	{"_gt", ">"},
	{"_lt", "<"},
	{"_in", "IN"},
}

// Filter is one parsed comparison. Segments holds the relation path when the
// filtered property lives on a related entity.
type Filter struct {
	Segments []string
	Property string
	Op       string
	Value    any
	Values   []any // IN operator
}

// QueryPlan is the parsed form of a collection read request.
type QueryPlan struct {
	Entity      *manifest.EntityManifest
	Schema      *schema.EntitySchema
	FullVersion bool
	Filters     []Filter
	OrderColumn string
	OrderDir    string
	Page        int
	PerPage     int
	Relations   []string // requested dotted relation paths
}

type builtQuery struct {
	SQL    string
	Params []any
}

// parseQuery turns raw query parameters into a QueryPlan. Any unknown key,
// property or relation path rejects the request with a bad-request error.
// Duplicate filter keys overwrite: the transport hands us one value per key,
// so the last occurrence wins (documented limitation).
func (e *Engine) parseQuery(entity *manifest.EntityManifest, queries map[string]string, fullVersion bool) (*QueryPlan, error) {
	s := e.catalog.Get(entity.Slug)
	plan := &QueryPlan{
		Entity:      entity,
		Schema:      s,
		FullVersion: fullVersion,
		Page:        1,
		PerPage:     e.defaultPerPage,
		OrderColumn: "id",
		OrderDir:    "DESC",
	}

	if p, ok := queries["page"]; ok {
		if v, err := strconv.Atoi(p); err == nil && v > 1 {
			plan.Page = v
		}
	}
	if pp, ok := queries["perPage"]; ok {
		if v, err := strconv.Atoi(pp); err == nil {
			if v == UnpaginatedPerPage || v > 0 {
				plan.PerPage = v
			}
		}
	}

	if orderBy, ok := queries["orderBy"]; ok && orderBy != "" {
		if err := e.validateOrderBy(entity, orderBy, fullVersion); err != nil {
			return nil, err
		}
		plan.OrderColumn = orderBy
		plan.OrderDir = "ASC"
		if dir, ok := queries["order"]; ok && strings.EqualFold(dir, "DESC") {
			plan.OrderDir = "DESC"
		}
	}

	if rels, ok := queries["relations"]; ok && rels != "" {
		for _, path := range strings.Split(rels, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			if err := e.validateRelationPath(entity, path); err != nil {
				return nil, err
			}
			plan.Relations = append(plan.Relations, path)
		}
	}

	for key, val := range queries {
		if reservedParams[key] {
			continue
		}
		f, err := e.parseFilter(entity, key, val, fullVersion)
		if err != nil {
			return nil, err
		}
		plan.Filters = append(plan.Filters, f)
	}

	return plan, nil
}

func (e *Engine) parseFilter(entity *manifest.EntityManifest, key, val string, fullVersion bool) (Filter, error) {
	var f Filter

	matched := false
	for _, op := range operatorSuffixes {
		if strings.HasSuffix(key, op.Suffix) && len(key) > len(op.Suffix) {
			f.Op = op.SQL
			key = strings.TrimSuffix(key, op.Suffix)
			matched = true
			break
		}
	}
	if !matched {
		return f, BadRequestError(fmt.Sprintf("Unknown query parameter: %s", key))
	}

	segments := strings.Split(key, ".")
	f.Segments = segments[:len(segments)-1]
	f.Property = segments[len(segments)-1]

	// Walk the relation path to the entity owning the property.
	target := entity
	for _, seg := range f.Segments {
		rel := target.GetRelationship(seg)
		if rel == nil {
			return f, BadRequestError(fmt.Sprintf("Unknown relation in filter: %s", seg))
		}
		target = e.reg.GetEntity(rel.TargetEntitySlug)
		if target == nil {
			return f, BadRequestError(fmt.Sprintf("Unknown relation target in filter: %s", seg))
		}
	}

	prop := target.GetProperty(f.Property)
	if f.Property != "id" {
		if prop == nil {
			return f, BadRequestError(fmt.Sprintf("Unknown filter property: %s", f.Property))
		}
		if prop.IsPassword() {
			return f, BadRequestError(fmt.Sprintf("Cannot filter on property: %s", f.Property))
		}
		if prop.Hidden && !fullVersion {
			return f, BadRequestError(fmt.Sprintf("Unknown filter property: %s", f.Property))
		}
	}

	if f.Op == "IN" {
		values, err := e.parseInList(prop, val)
		if err != nil {
			return f, err
		}
		f.Values = values
		return f, nil
	}

	v, err := e.coerceValue(prop, val)
	if err != nil {
		return f, err
	}
	f.Value = v
	return f, nil
}

// parseInList parses a bracketed literal list, e.g. [1,2,3].
func (e *Engine) parseInList(prop *manifest.PropertyManifest, val string) ([]any, error) {
	if !strings.HasPrefix(val, "[") || !strings.HasSuffix(val, "]") {
		return nil, BadRequestError(fmt.Sprintf("Malformed in-list: %s", val))
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(val, "["), "]")
	if strings.TrimSpace(inner) == "" {
		return nil, BadRequestError(fmt.Sprintf("Malformed in-list: %s", val))
	}
	var values []any
	for _, part := range strings.Split(inner, ",") {
		v, err := e.coerceValue(prop, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// coerceValue converts a literal filter value per the property type.
// Boolean literals true/false normalize to the storage representation.
func (e *Engine) coerceValue(prop *manifest.PropertyManifest, val string) (any, error) {
	if prop == nil { // id
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n, nil
		}
		return val, nil
	}
	switch {
	case prop.Type == manifest.PropBoolean:
		switch val {
		case "true":
			return e.store.Dialect.BoolParam(true), nil
		case "false":
			return e.store.Dialect.BoolParam(false), nil
		default:
			return nil, BadRequestError(fmt.Sprintf("Invalid boolean literal for %s: %s", prop.Name, val))
		}
	case prop.IsNumeric():
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, BadRequestError(fmt.Sprintf("Invalid number for %s: %s", prop.Name, val))
		}
		return n, nil
	default:
		return val, nil
	}
}

func (e *Engine) validateOrderBy(entity *manifest.EntityManifest, orderBy string, fullVersion bool) error {
	switch orderBy {
	case "id", "created_at", "updated_at":
		return nil
	}
	prop := entity.GetProperty(orderBy)
	if prop == nil || prop.IsPassword() || (prop.Hidden && !fullVersion) {
		return BadRequestError(fmt.Sprintf("Unknown order property: %s", orderBy))
	}
	return nil
}

// validateRelationPath checks every segment of a dotted path resolves
// through the relation graph.
func (e *Engine) validateRelationPath(entity *manifest.EntityManifest, path string) error {
	target := entity
	for _, seg := range strings.Split(path, ".") {
		rel := target.GetRelationship(seg)
		if rel == nil {
			return BadRequestError(fmt.Sprintf("Unknown relation: %s", seg))
		}
		target = e.reg.GetEntity(rel.TargetEntitySlug)
		if target == nil {
			return BadRequestError(fmt.Sprintf("Unknown relation target: %s", seg))
		}
	}
	return nil
}

// visibleColumns lists the selectable columns of a schema. The id column is
// always included, password columns never are, hidden properties only with
// fullVersion. Foreign key columns ride along so relation hydration can
// batch-load by id.
func visibleColumns(s *schema.EntitySchema, entity *manifest.EntityManifest, fullVersion bool) []string {
	var cols []string
	for _, c := range s.Columns {
		if c.Name == "password" {
			continue
		}
		if prop := entity.GetProperty(c.Name); prop != nil {
			if prop.IsPassword() {
				continue
			}
			if prop.Hidden && !fullVersion {
				continue
			}
		}
		cols = append(cols, c.Name)
	}
	return cols
}

// buildSelect renders the plan into a single parameterized SELECT. Filters on
// relation paths contribute LEFT JOINs under deterministic aliases; rows are
// deduplicated with DISTINCT when any join fans out.
func (e *Engine) buildSelect(plan *QueryPlan) builtQuery {
	pb := e.store.Dialect.NewParamBuilder()
	table := plan.Schema.Table

	joins, where := e.buildJoinsAndWhere(plan, pb)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(joins) > 0 {
		sb.WriteString("DISTINCT ")
	}
	cols := visibleColumns(plan.Schema, plan.Entity, plan.FullVersion)
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(table + "." + col)
	}
	sb.WriteString(" FROM " + table)
	for _, j := range joins {
		sb.WriteString(" " + j)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s.%s %s", table, plan.OrderColumn, plan.OrderDir))

	if plan.PerPage != UnpaginatedPerPage {
		limit := pb.Add(plan.PerPage)
		offset := pb.Add((plan.Page - 1) * plan.PerPage)
		sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset))
	}

	return builtQuery{SQL: sb.String(), Params: pb.Params()}
}

// buildCount renders the matching COUNT query with the same joins and filters.
func (e *Engine) buildCount(plan *QueryPlan) builtQuery {
	pb := e.store.Dialect.NewParamBuilder()
	table := plan.Schema.Table

	joins, where := e.buildJoinsAndWhere(plan, pb)

	var sb strings.Builder
	if len(joins) > 0 {
		sb.WriteString(fmt.Sprintf("SELECT COUNT(DISTINCT %s.id) FROM %s", table, table))
	} else {
		sb.WriteString("SELECT COUNT(*) FROM " + table)
	}
	for _, j := range joins {
		sb.WriteString(" " + j)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	return builtQuery{SQL: sb.String(), Params: pb.Params()}
}

func (e *Engine) buildJoinsAndWhere(plan *QueryPlan, pb store.ParamBuilder) ([]string, []string) {
	var joins []string
	joined := map[string]bool{}

	var where []string
	for _, f := range plan.Filters {
		alias := plan.Schema.Table
		cur := plan.Schema
		for _, seg := range f.Segments {
			alias = e.appendJoin(cur, alias, seg, &joins, joined)
			cur = e.catalog.Get(cur.Relation(seg).TargetSlug)
		}
		qualified := alias + "." + f.Property

		if f.Op == "IN" {
			phs := make([]string, len(f.Values))
			for i, v := range f.Values {
				phs[i] = pb.Add(v)
			}
			where = append(where, fmt.Sprintf("%s IN (%s)", qualified, strings.Join(phs, ", ")))
			continue
		}
		where = append(where, fmt.Sprintf("%s %s %s", qualified, f.Op, pb.Add(f.Value)))
	}

	return joins, where
}

// appendJoin adds the LEFT JOINs needed to reach one relation off the parent
// alias. The child alias derives from the parent alias and the relation name,
// so same-named relations at different depths never collide.
func (e *Engine) appendJoin(parent *schema.EntitySchema, parentAlias, relName string, joins *[]string, joined map[string]bool) string {
	w := parent.Relation(relName)
	targetTable := schema.TableName(w.TargetSlug)
	alias := parentAlias + "__" + relName
	if joined[alias] {
		return alias
	}
	joined[alias] = true

	switch {
	case w.Rel.IsManyToOne():
		*joins = append(*joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = %s.id",
			targetTable, alias, parentAlias, w.FKColumn, alias))
	case w.Rel.IsOneToMany():
		*joins = append(*joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = %s.id",
			targetTable, alias, alias, w.FKColumn, parentAlias))
	case w.Rel.IsManyToMany():
		jtAlias := alias + "__jt"
		*joins = append(*joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.%s = %s.id",
			w.JoinTable, jtAlias, jtAlias, w.SourceJoinColumn, parentAlias))
		*joins = append(*joins, fmt.Sprintf("LEFT JOIN %s AS %s ON %s.id = %s.%s",
			targetTable, alias, alias, jtAlias, w.TargetJoinColumn))
	}
	return alias
}
