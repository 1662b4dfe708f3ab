package engine

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mantle/internal/manifest"
	"mantle/internal/schema"
	"mantle/internal/store"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	reg := manifest.NewRegistry()
	reg.Load(blogEntities())
	catalog, err := schema.Build(reg)
	require.NoError(t, err)

	st := store.Open(db, "sqlite")
	require.NoError(t, schema.NewMigrator(st).MigrateAll(context.Background(), catalog))

	return New(st, reg, catalog, 20)
}

func mustCreate(t *testing.T, e *Engine, slug string, dto map[string]any) map[string]any {
	t.Helper()
	row, err := e.Create(context.Background(), slug, dto, true)
	require.NoError(t, err)
	return row
}

func rowID(t *testing.T, row map[string]any) int64 {
	t.Helper()
	id, ok := toID(row["id"])
	require.True(t, ok, "row has no id: %v", row)
	return id
}

func TestCreateAndFindOne(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	user := mustCreate(t, e, "users", map[string]any{
		"name": "bob", "email": "bob@example.com", "password": "hunter22",
	})
	assert.NotContains(t, user, "password")
	assert.Equal(t, "bob@example.com", user["email"])

	post := mustCreate(t, e, "posts", map[string]any{
		"title": "hello", "rating": 4.0, "pinned": true, "author": rowID(t, user),
	})
	assert.Equal(t, "hello", post["title"])
	assert.Equal(t, true, post["pinned"])

	// The eager author relation hydrates without being requested.
	author, ok := post["author"].(map[string]any)
	require.True(t, ok, "author not hydrated: %v", post["author"])
	assert.Equal(t, "bob", author["name"])

	got, err := e.FindOne(ctx, "posts", rowID(t, post), nil, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", got["title"])
}

func TestCreateValidationFailsBeforeWrite(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	_, err := e.Create(ctx, "posts", map[string]any{"rating": 3.0}, false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_FAILED", appErr.Code)
	assert.Equal(t, 422, appErr.Status)
	require.NotEmpty(t, appErr.Details)
	assert.Equal(t, "title", appErr.Details[0].Property)

	page, err := e.FindAll(ctx, "posts", nil, false)
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems)
}

func TestCreateRejectsMissingRelationTarget(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Create(context.Background(), "posts", map[string]any{
		"title": "orphan", "author": 999,
	}, false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestCreateRejectsReadOnlyRelationKeys(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Create(context.Background(), "users", map[string]any{
		"name": "bob", "email": "b@b.co", "password": "x",
		"posts": []any{1},
	}, false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestCreateDuplicateEmailConflicts(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	mustCreate(t, e, "users", map[string]any{"name": "a", "email": "dup@x.co", "password": "p1"})
	_, err := e.Create(ctx, "users", map[string]any{"name": "b", "email": "dup@x.co", "password": "p2"}, false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestPasswordIsHashedAtRest(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	mustCreate(t, e, "users", map[string]any{"name": "bob", "email": "b@x.co", "password": "hunter22"})

	row, err := store.QueryRow(ctx, e.store.DB, "SELECT password FROM users WHERE email = ?1", "b@x.co")
	require.NoError(t, err)
	stored, _ := row["password"].(string)
	assert.NotEqual(t, "hunter22", stored)
	assert.True(t, strings.HasPrefix(stored, "$2"), "not a bcrypt hash: %q", stored)
}

func TestHiddenPropertyGatedByFullVersion(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	post := mustCreate(t, e, "posts", map[string]any{"title": "t", "notes": "internal"})
	id := rowID(t, post)

	public, err := e.FindOne(ctx, "posts", id, nil, false)
	require.NoError(t, err)
	assert.NotContains(t, public, "notes")

	admin, err := e.FindOne(ctx, "posts", id, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "internal", admin["notes"])
}

func TestFindAllFiltersAndPaginates(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	for i, title := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		mustCreate(t, e, "posts", map[string]any{"title": title, "rating": float64(i)})
	}

	page, err := e.FindAll(ctx, "posts", map[string]string{"rating_gte": "3"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalItems)

	page, err = e.FindAll(ctx, "posts", map[string]string{"title_like": "%eta%"}, false)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "beta", page.Data[0]["title"])

	page, err = e.FindAll(ctx, "posts", map[string]string{"perPage": "2", "page": "2"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(5), page.TotalItems)
	assert.Len(t, page.Data, 2)

	page, err = e.FindAll(ctx, "posts", map[string]string{"perPage": "-1"}, false)
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Equal(t, 5, page.PerPage)

	// Default order is id DESC: the last insert comes first.
	page, err = e.FindAll(ctx, "posts", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "epsilon", page.Data[0]["title"])

	page, err = e.FindAll(ctx, "posts", map[string]string{"orderBy": "title"}, false)
	require.NoError(t, err)
	assert.Equal(t, "alpha", page.Data[0]["title"])
}

func TestFindAllFilterAcrossRelationPath(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	bob := mustCreate(t, e, "users", map[string]any{"name": "bob", "email": "b@x.co", "password": "p"})
	eve := mustCreate(t, e, "users", map[string]any{"name": "eve", "email": "e@x.co", "password": "p"})
	mustCreate(t, e, "posts", map[string]any{"title": "bobs", "author": rowID(t, bob)})
	mustCreate(t, e, "posts", map[string]any{"title": "eves", "author": rowID(t, eve)})

	page, err := e.FindAll(ctx, "posts", map[string]string{"author.name_eq": "bob"}, false)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "bobs", page.Data[0]["title"])
}

func TestManyToManyRoundTrip(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	golang := mustCreate(t, e, "tags", map[string]any{"label": "go"})
	web := mustCreate(t, e, "tags", map[string]any{"label": "web"})
	post := mustCreate(t, e, "posts", map[string]any{
		"title": "tagged",
		"tags":  []any{rowID(t, golang), rowID(t, web)},
	})
	id := rowID(t, post)

	got, err := e.FindOne(ctx, "posts", id, map[string]string{"relations": "tags"}, false)
	require.NoError(t, err)
	tags, ok := got["tags"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, tags, 2)

	// Non-owning side reads the same join table from the other end.
	tag, err := e.FindOne(ctx, "tags", rowID(t, golang), map[string]string{"relations": "posts"}, false)
	require.NoError(t, err)
	posts, ok := tag["posts"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, posts, 1)
	assert.Equal(t, "tagged", posts[0]["title"])

	// Updating the id list replaces the join rows.
	_, err = e.Update(ctx, "posts", id, map[string]any{"title": "tagged", "tags": []any{rowID(t, web)}}, false, false)
	require.NoError(t, err)
	got, err = e.FindOne(ctx, "posts", id, map[string]string{"relations": "tags"}, false)
	require.NoError(t, err)
	tags, _ = got["tags"].([]map[string]any)
	require.Len(t, tags, 1)
	assert.Equal(t, "web", tags[0]["label"])
}

func TestNestedRelationHydrationTerminates(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	bob := mustCreate(t, e, "users", map[string]any{"name": "bob", "email": "b@x.co", "password": "p"})
	mustCreate(t, e, "posts", map[string]any{"title": "one", "author": rowID(t, bob)})
	mustCreate(t, e, "posts", map[string]any{"title": "two", "author": rowID(t, bob)})

	// posts -> author -> posts walks back into the starting entity.
	got, err := e.FindAll(ctx, "posts", map[string]string{"relations": "author.posts"}, false)
	require.NoError(t, err)
	require.Len(t, got.Data, 2)

	author, ok := got.Data[0]["author"].(map[string]any)
	require.True(t, ok)
	authoredPosts, ok := author["posts"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, authoredPosts, 2)
	// One level past the requested path stays unhydrated.
	_, deeper := authoredPosts[0]["tags"]
	assert.False(t, deeper)
}

func TestUpdateFullReplacementNullsOmitted(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	post := mustCreate(t, e, "posts", map[string]any{"title": "before", "rating": 4.0})
	id := rowID(t, post)

	got, err := e.Update(ctx, "posts", id, map[string]any{"title": "after"}, false, false)
	require.NoError(t, err)
	assert.Equal(t, "after", got["title"])
	assert.Nil(t, got["rating"])

	// Omitting a required property fails the same validation as create.
	_, err = e.Update(ctx, "posts", id, map[string]any{"rating": 2.0}, false, false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_FAILED", appErr.Code)
}

func TestUpdatePartialKeepsOmitted(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	post := mustCreate(t, e, "posts", map[string]any{"title": "keep", "rating": 4.0})
	id := rowID(t, post)

	got, err := e.Update(ctx, "posts", id, map[string]any{"rating": 2.0}, true, false)
	require.NoError(t, err)
	assert.Equal(t, "keep", got["title"])
	assert.EqualValues(t, 2.0, got["rating"])
}

func TestUpdateMissingRecordNotFound(t *testing.T) {
	e := setupEngine(t)

	_, err := e.Update(context.Background(), "posts", 42, map[string]any{"title": "x"}, false, false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestDeleteBlockedByPopulatedOneToMany(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	bob := mustCreate(t, e, "users", map[string]any{"name": "bob", "email": "b@x.co", "password": "p"})
	post := mustCreate(t, e, "posts", map[string]any{"title": "t", "author": rowID(t, bob)})

	_, err := e.Delete(ctx, "users", rowID(t, bob), false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "BAD_REQUEST", appErr.Code)
	assert.Contains(t, appErr.Message, "posts")

	// Clearing the relation unblocks the delete, which removes exactly one row.
	_, err = e.Delete(ctx, "posts", rowID(t, post), false)
	require.NoError(t, err)
	deleted, err := e.Delete(ctx, "users", rowID(t, bob), false)
	require.NoError(t, err)
	assert.Equal(t, "bob", deleted["name"])

	page, err := e.FindAll(ctx, "users", nil, false)
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems)
}

func TestDeleteCleansJoinRows(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	tag := mustCreate(t, e, "tags", map[string]any{"label": "go"})
	post := mustCreate(t, e, "posts", map[string]any{"title": "t", "tags": []any{rowID(t, tag)}})

	_, err := e.Delete(ctx, "posts", rowID(t, post), false)
	require.NoError(t, err)

	n, err := store.Count(ctx, e.store.DB, "SELECT COUNT(*) FROM posts_tags")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSinglesLazilyCreatedAndPatched(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	row, err := e.FindSingle(ctx, "homepage", false)
	require.NoError(t, err)
	assert.EqualValues(t, SingleRecordID, row["id"])

	row, err = e.UpdateSingle(ctx, "homepage", map[string]any{"headline": "hi", "intro": "welcome"}, false, false)
	require.NoError(t, err)
	assert.Equal(t, "hi", row["headline"])

	// Partial replacement touches only the named keys.
	row, err = e.UpdateSingle(ctx, "homepage", map[string]any{"intro": "changed"}, true, false)
	require.NoError(t, err)
	assert.Equal(t, "hi", row["headline"])
	assert.Equal(t, "changed", row["intro"])

	// Full replacement nulls what it omits.
	row, err = e.UpdateSingle(ctx, "homepage", map[string]any{"intro": "only"}, false, false)
	require.NoError(t, err)
	assert.Nil(t, row["headline"])
}

func TestSelectOptionsUsesMainProp(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	mustCreate(t, e, "tags", map[string]any{"label": "go"})
	mustCreate(t, e, "tags", map[string]any{"label": "web"})

	options, err := e.SelectOptions(ctx, "tags", nil)
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "web", options[0]["label"]) // id DESC
	assert.Equal(t, "go", options[1]["label"])
}

func TestSelectOptionsHonorsFilters(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	mustCreate(t, e, "tags", map[string]any{"label": "go"})
	mustCreate(t, e, "tags", map[string]any{"label": "web"})

	options, err := e.SelectOptions(ctx, "tags", map[string]string{"label_eq": "go"})
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, "go", options[0]["label"])

	// Pagination params never shrink the option list.
	options, err = e.SelectOptions(ctx, "tags", map[string]string{"perPage": "1"})
	require.NoError(t, err)
	assert.Len(t, options, 2)

	_, err = e.SelectOptions(ctx, "tags", map[string]string{"bogus_eq": "x"})
	assert.Error(t, err)
}

func TestSingleIDStaysPinnedAfterCollectionWrites(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	// Collection writes advance the autoincrement counter past the fixed id.
	first := mustCreate(t, e, "homepage", map[string]any{"headline": "a"})
	mustCreate(t, e, "homepage", map[string]any{"headline": "b"})
	_, err := e.Delete(ctx, "homepage", rowID(t, first), false)
	require.NoError(t, err)

	row, err := e.FindSingle(ctx, "homepage", false)
	require.NoError(t, err)
	assert.EqualValues(t, SingleRecordID, row["id"])
}

func TestStringPropertyResemblingTimestampStaysString(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	post := mustCreate(t, e, "posts", map[string]any{"title": "2026-08-26 10:30:00"})

	got, err := e.FindOne(ctx, "posts", rowID(t, post), nil, false)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-26 10:30:00", got["title"])

	// Bookkeeping timestamps still come back as time values.
	_, ok := got["created_at"].(time.Time)
	assert.True(t, ok, "created_at not a time: %T", got["created_at"])
}

func TestUnknownEntity(t *testing.T) {
	e := setupEngine(t)

	_, err := e.FindAll(context.Background(), "nope", nil, false)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNKNOWN_ENTITY", appErr.Code)
	assert.Equal(t, 404, appErr.Status)
}
