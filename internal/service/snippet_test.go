package service

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/sakif/codeshare/internal/apperror"
	"github.com/sakif/codeshare/internal/memo"
	"github.com/sakif/codeshare/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*SnippetService, *fakeSnippetRepo, *fakeUserRepo) {
	t.Helper()
	repo := newFakeSnippetRepo()
	users := newFakeUserRepo()
	return NewSnippetService(repo, repo, users, testLogger()), repo, users
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func mustCreate(t *testing.T, svc *SnippetService, authorID string, in CreateInput) *model.Snippet {
	t.Helper()
	s, err := svc.Create(context.Background(), authorID, in)
	require.NoError(t, err)
	return s
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreate_Defaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	s := mustCreate(t, svc, "u1", CreateInput{Title: "hi", Code: "x", Language: "Text"})

	assert.Equal(t, []model.Tag{}, s.Tags)
	assert.Equal(t, "O(1)", s.Complexity)
	assert.True(t, s.IsPublic)
	assert.True(t, strings.HasPrefix(s.Slug, "hi-"), "slug %q", s.Slug)
	assert.Equal(t, "u1", s.AuthorID)
	assert.Nil(t, s.Description)
}

func TestCreate_NormalizesTagsAndComputesComplexity(t *testing.T) {
	svc, _, _ := newTestService(t)

	s := mustCreate(t, svc, "u1", CreateInput{
		Title:    "  Sort things  ",
		Code:     "items.sort()",
		Language: "JavaScript",
		IsPublic: boolPtr(false),
		Tags:     []any{" Go ", "go", "", 5, "Go"},
	})

	assert.Equal(t, "Sort things", s.Title)
	assert.Equal(t, "O(n log n)", s.Complexity)
	assert.False(t, s.IsPublic)
	// "Go" (trimmed) and "go" are distinct names sharing slug "go".
	require.Len(t, s.Tags, 1)
	assert.Equal(t, "go", s.Tags[0].Slug)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"missing title", CreateInput{Code: "x", Language: "Go"}, "title"},
		{"blank title", CreateInput{Title: "   ", Code: "x", Language: "Go"}, "title"},
		{"missing code", CreateInput{Title: "t", Language: "Go"}, "code"},
		{"missing language", CreateInput{Title: "t", Code: "x"}, "language"},
		{"title too long", CreateInput{Title: strings.Repeat("a", 101), Code: "x", Language: "Go"}, "title"},
		{"description too long", CreateInput{Title: "t", Code: "x", Language: "Go", Description: strPtr(strings.Repeat("d", 501))}, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)

			_, err := svc.Create(context.Background(), "u1", tt.in)

			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
			assert.Empty(t, repo.snippets, "nothing may be written on validation failure")
		})
	}
}

func TestCreate_TitleLimitCountsCharacters(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "u1", CreateInput{
		Title: strings.Repeat("é", 100), Code: "x", Language: "Text",
	})
	assert.NoError(t, err)
}

func TestCreate_RequiresAuthor(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "", CreateInput{Title: "t", Code: "x", Language: "Go"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestCreate_RetriesSlugConflict(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.conflictsLeft = 2

	s, err := svc.Create(context.Background(), "u1", CreateInput{Title: "t", Code: "x", Language: "Go"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	repo.conflictsLeft = slugAttempts
	_, err = svc.Create(context.Background(), "u1", CreateInput{Title: "t", Code: "x", Language: "Go"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestGenerateSlug(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9-]+-[0-9a-z]{7}$`)
	tests := []struct {
		title string
		base  string
	}{
		{"Hello, World!", "hello-world"},
		{"  --Quick   Sort--  ", "quick-sort"},
		{"C++ templates", "c-templates"},
		{"!!!", "snippet"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			slug := GenerateSlug(tt.title)
			assert.Regexp(t, pattern, slug)
			assert.Equal(t, tt.base, slug[:len(slug)-8])
		})
	}

	assert.NotEqual(t, GenerateSlug("same"), GenerateSlug("same"))
}

// =========================================================================
// UPDATE / DELETE AUTHORIZATION
// =========================================================================

func TestUpdate_AuthorizationOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := mustCreate(t, svc, "owner", CreateInput{Title: "t", Code: "x", Language: "Go"})
	in := UpdateInput{Title: strPtr("new")}

	tests := []struct {
		name   string
		caller string
		id     string
		want   error
	}{
		{"anonymous on missing id", "", "missing", apperror.ErrUnauthorized},
		{"anonymous on existing id", "", s.ID, apperror.ErrUnauthorized},
		{"signed in on missing id", "someone", "missing", apperror.ErrNotFound},
		{"not the author", "someone", s.ID, apperror.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tt.caller, tt.id, in)
			assert.ErrorIs(t, err, tt.want)

			err = svc.Delete(context.Background(), tt.caller, tt.id)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got, err := svc.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title, "rejected updates must not write")
}

func TestUpdate_PartialSemantics(t *testing.T) {
	svc, repo, _ := newTestService(t)
	s := mustCreate(t, svc, "owner", CreateInput{
		Title: "title", Code: "x", Language: "Go",
		Description: strPtr("desc"), FileName: strPtr("main.go"),
		Tags: []string{"keep"},
	})

	// Omitted fields stay; blank title is ignored; slug stays.
	got, err := svc.Update(context.Background(), "owner", s.ID, UpdateInput{Title: strPtr("   ")})
	require.NoError(t, err)
	assert.Equal(t, "title", got.Title)
	assert.Equal(t, s.Slug, got.Slug)
	assert.Equal(t, "desc", got.DescriptionText())
	assert.Len(t, got.Tags, 1)
	assert.Nil(t, repo.lastUpdate.Tags, "omitted tags must not touch associations")

	// New title keeps the slug.
	got, err = svc.Update(context.Background(), "owner", s.ID, UpdateInput{Title: strPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, s.Slug, got.Slug)

	// Code recomputes complexity.
	got, err = svc.Update(context.Background(), "owner", s.ID, UpdateInput{
		Code: strPtr("for a { for b { } }"),
	})
	require.NoError(t, err)
	assert.Equal(t, "O(n²)", got.Complexity)

	// Explicit nulls clear optional fields; empty tags array clears tags.
	got, err = svc.Update(context.Background(), "owner", s.ID, UpdateInput{
		Description: model.Null[string](),
		FileName:    model.Null[string](),
		Tags:        []any{},
	})
	require.NoError(t, err)
	assert.Nil(t, got.Description)
	assert.Nil(t, got.FileName)
	assert.Empty(t, got.Tags)
	assert.NotNil(t, repo.lastUpdate.Tags)
}

func TestUpdate_DecodedFromJSON(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := mustCreate(t, svc, "owner", CreateInput{
		Title: "t", Code: "x", Language: "Go", Description: strPtr("keep me"), Tags: []string{"a"},
	})

	var in UpdateInput
	require.NoError(t, json.Unmarshal([]byte(`{"fileName": "x.go", "tags": null}`), &in))

	got, err := svc.Update(context.Background(), "owner", s.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "keep me", got.DescriptionText(), "absent description is unchanged")
	assert.Equal(t, "x.go", got.FileNameText())
	assert.Len(t, got.Tags, 1, "null tags is not an array and leaves tags alone")
}

func TestUpdate_ValidatesLengths(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := mustCreate(t, svc, "owner", CreateInput{Title: "t", Code: "x", Language: "Go"})

	_, err := svc.Update(context.Background(), "owner", s.ID, UpdateInput{Title: strPtr(strings.Repeat("a", 101))})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Update(context.Background(), "owner", s.ID, UpdateInput{Description: model.Some(strings.Repeat("a", 501))})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Update(context.Background(), "owner", s.ID, UpdateInput{Code: strPtr("")})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Update(context.Background(), "owner", s.ID, UpdateInput{Language: strPtr("  ")})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	got, err := svc.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Code)
	assert.Equal(t, "Go", got.Language)
}

func TestDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := mustCreate(t, svc, "owner", CreateInput{Title: "t", Code: "x", Language: "Go"})

	require.NoError(t, svc.Delete(context.Background(), "owner", s.ID))

	_, err := svc.GetByID(context.Background(), s.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetByID_MemoizedWithinRequest(t *testing.T) {
	svc, repo, _ := newTestService(t)
	s := mustCreate(t, svc, "owner", CreateInput{Title: "t", Code: "x", Language: "Go"})
	ctx := memo.WithCache(context.Background(), memo.New())

	first, err := svc.GetByID(ctx, s.ID)
	require.NoError(t, err)

	// Change the row behind the service's back; the same request still sees
	// its first read.
	repo.snippets[s.ID].Title = "changed"
	second, err := svc.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Title, second.Title)

	// An update through the service drops the memo entry.
	_, err = svc.Update(ctx, "owner", s.ID, UpdateInput{Title: strPtr("fresh")})
	require.NoError(t, err)
	third, err := svc.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", third.Title)
}

// =========================================================================
// LIST
// =========================================================================

func TestList_PaginationMeta(t *testing.T) {
	svc, repo, _ := newTestService(t)
	for i := 0; i < 30; i++ {
		mustCreate(t, svc, "u1", CreateInput{Title: "t", Code: "x", Language: "Go"})
	}
	mustCreate(t, svc, "u1", CreateInput{Title: "secret", Code: "x", Language: "Go", IsPublic: boolPtr(false)})

	tests := []struct {
		name         string
		query        ListQuery
		wantPage     int
		wantPageSize int
		wantItems    int
	}{
		{"defaults", ListQuery{}, 1, 12, 12},
		{"clamped", ListQuery{PageSize: 200}, 1, 50, 30},
		{"negative coerced", ListQuery{Page: -3, PageSize: -1}, 1, 12, 12},
		{"last page", ListQuery{Page: 3, PageSize: 12}, 3, 12, 6},
		{"past the end", ListQuery{Page: 9, PageSize: 12}, 9, 12, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.List(context.Background(), tt.query)
			require.NoError(t, err)

			assert.Equal(t, tt.wantPage, page.Meta.Page)
			assert.Equal(t, tt.wantPageSize, page.Meta.PageSize)
			assert.Equal(t, 30, page.Meta.Total, "private snippets are never counted")
			assert.Equal(t, (30+tt.wantPageSize-1)/tt.wantPageSize, page.Meta.TotalPages)
			assert.Len(t, page.Items, tt.wantItems)
			assert.NotNil(t, page.Items)
			assert.Equal(t, (tt.wantPage-1)*tt.wantPageSize, repo.lastFilter.Offset)
		})
	}
}

func TestList_HugePageDoesNotWrap(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mustCreate(t, svc, "u1", CreateInput{Title: "only", Code: "x", Language: "Go"})

	huge := math.MaxInt / 6
	page, err := svc.List(context.Background(), ListQuery{Page: huge, PageSize: 12})
	require.NoError(t, err)

	assert.Empty(t, page.Items)
	assert.Equal(t, huge, page.Meta.Page)
	assert.Equal(t, 1, page.Meta.Total)
	assert.GreaterOrEqual(t, repo.lastFilter.Offset, 0)
}

func TestList_NeverReturnsPrivate(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, "u1", CreateInput{Title: "hidden gem", Code: "x", Language: "Go", IsPublic: boolPtr(false)})

	page, err := svc.List(context.Background(), ListQuery{Query: "hidden", AuthorID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Meta.TotalPages)
}

func TestParseListQuery(t *testing.T) {
	q := ParseListQuery(url.Values{
		"q":        {"  sort "},
		"tag":      {"go"},
		"language": {"Go"},
		"authorId": {"u1"},
		"page":     {"abc"},
		"pageSize": {"20"},
	})
	assert.Equal(t, ListQuery{Query: "sort", Tag: "go", Language: "Go", AuthorID: "u1", Page: 0, PageSize: 20}, q)
}

func TestTags_Counts(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, "u1", CreateInput{Title: "a", Code: "x", Language: "Go", Tags: []string{"web", "api"}})
	mustCreate(t, svc, "u1", CreateInput{Title: "b", Code: "x", Language: "Go", Tags: []string{"web"}})

	got, err := svc.Tags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.TagCount{
		{Name: "api", Slug: "api", Count: 1},
		{Name: "web", Slug: "web", Count: 2},
	}, got)
}

// =========================================================================
// PROFILE / VIEWS / SITEMAP
// =========================================================================

func TestProfile(t *testing.T) {
	svc, repo, users := newTestService(t)
	owner := &model.User{Username: "alice"}
	require.NoError(t, users.Create(context.Background(), owner))

	mustCreate(t, svc, owner.ID, CreateInput{Title: "pub", Code: "x", Language: "Go"})
	mustCreate(t, svc, owner.ID, CreateInput{Title: "pub2", Code: "x", Language: "Python"})
	priv := mustCreate(t, svc, owner.ID, CreateInput{Title: "priv", Code: "x", Language: "Go", IsPublic: boolPtr(false)})
	repo.snippets[priv.ID].Views = 5

	wantStats := model.ProfileStats{Total: 3, Public: 2, Private: 1, Views: 5}

	visitor, err := svc.Profile(context.Background(), "someone-else", owner.ID)
	require.NoError(t, err)
	assert.False(t, visitor.IsOwner)
	assert.Len(t, visitor.Snippets, 2)
	assert.Equal(t, wantStats, visitor.Stats)
	assert.Equal(t, []model.LanguageCount{{Language: "Go", Count: 2}, {Language: "Python", Count: 1}}, visitor.Languages)

	self, err := svc.Profile(context.Background(), owner.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, self.IsOwner)
	assert.Len(t, self.Snippets, 3)

	anon, err := svc.Profile(context.Background(), "", owner.ID)
	require.NoError(t, err)
	assert.False(t, anon.IsOwner)

	_, err = svc.Profile(context.Background(), "", "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestView(t *testing.T) {
	svc, _, _ := newTestService(t)
	s := mustCreate(t, svc, "u1", CreateInput{Title: "t", Code: "x", Language: "Go"})

	require.NoError(t, svc.View(context.Background(), s.ID))
	require.NoError(t, svc.View(context.Background(), s.ID))
	got, err := svc.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Views)

	assert.ErrorIs(t, svc.View(context.Background(), "missing"), apperror.ErrNotFound)
}

func TestSitemap(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustCreate(t, svc, "u1", CreateInput{Title: "a", Code: "x", Language: "Go"})
	mustCreate(t, svc, "u1", CreateInput{Title: "b", Code: "x", Language: "Go"})
	mustCreate(t, svc, "u2", CreateInput{Title: "c", Code: "x", Language: "Go"})
	mustCreate(t, svc, "u3", CreateInput{Title: "d", Code: "x", Language: "Go", IsPublic: boolPtr(false)})

	data, err := svc.Sitemap(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Snippets, 3)
	assert.Equal(t, []string{"u1", "u2"}, data.Authors)
}
