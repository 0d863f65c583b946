package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/codeshare/internal/apperror"
	"github.com/sakif/codeshare/internal/model"
	"github.com/sakif/codeshare/internal/repository"
)

// =========================================================================
// IN-MEMORY FAKES
// =========================================================================
//
// Hand-written fakes keep service tests free of SQLite. They implement the
// same repository interfaces as internal/repository/sqlite, with just
// enough behaviour for the rules under test.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSnippetRepo struct {
	mu       sync.Mutex
	snippets map[string]*model.Snippet
	order    []string // insertion order
	tags     map[string]model.Tag
	nextID   int
	clock    time.Time

	// conflictsLeft makes the next N Create calls fail with a slug conflict.
	conflictsLeft int
	lastUpdate    repository.SnippetUpdate
	lastFilter    repository.ListFilter
}

func newFakeSnippetRepo() *fakeSnippetRepo {
	return &fakeSnippetRepo{
		snippets: make(map[string]*model.Snippet),
		tags:     make(map[string]model.Tag),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeSnippetRepo) linkTags(in []model.TagInput) []model.Tag {
	out := []model.Tag{}
	seen := map[string]bool{}
	for _, t := range in {
		tag, ok := f.tags[t.Slug]
		if !ok {
			tag = model.Tag{ID: "tag-" + t.Slug, Name: t.Name, Slug: t.Slug}
			f.tags[t.Slug] = tag
		}
		if !seen[tag.Slug] {
			seen[tag.Slug] = true
			out = append(out, tag)
		}
	}
	return out
}

func (f *fakeSnippetRepo) Create(_ context.Context, s *model.Snippet, tags []model.TagInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return apperror.Conflict("snippet", "slug "+s.Slug)
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	s.ID = fmt.Sprintf("snip-%d", f.nextID)
	s.CreatedAt, s.UpdatedAt = f.clock, f.clock
	s.Tags = f.linkTags(tags)
	stored := *s
	stored.Author = model.Author{ID: s.AuthorID, Username: "user-" + s.AuthorID}
	f.snippets[s.ID] = &stored
	f.order = append(f.order, s.ID)
	return nil
}

func (f *fakeSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	out := *s
	return &out, nil
}

func (f *fakeSnippetRepo) AuthorOf(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return "", apperror.NotFound("snippet", id)
	}
	return s.AuthorID, nil
}

func (f *fakeSnippetRepo) List(_ context.Context, filter repository.ListFilter) ([]model.Snippet, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter

	var matched []model.Snippet
	for i := len(f.order) - 1; i >= 0; i-- {
		s := f.snippets[f.order[i]]
		if s == nil || !s.IsPublic {
			continue
		}
		if filter.Language != "" && s.Language != filter.Language {
			continue
		}
		if filter.AuthorID != "" && s.AuthorID != filter.AuthorID {
			continue
		}
		if filter.Query != "" {
			q := strings.ToLower(filter.Query)
			hay := strings.ToLower(s.Title + "\n" + s.DescriptionText() + "\n" + s.Code)
			if !strings.Contains(hay, q) {
				continue
			}
		}
		if filter.TagSlug != "" {
			found := false
			for _, t := range s.Tags {
				found = found || t.Slug == filter.TagSlug
			}
			if !found {
				continue
			}
		}
		matched = append(matched, *s)
	}

	total := len(matched)
	if filter.Offset >= total {
		return []model.Snippet{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (f *fakeSnippetRepo) ListByAuthor(_ context.Context, authorID string) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Snippet
	for i := len(f.order) - 1; i >= 0; i-- {
		if s := f.snippets[f.order[i]]; s != nil && s.AuthorID == authorID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSnippetRepo) Update(_ context.Context, id string, u repository.SnippetUpdate) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUpdate = u
	s, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.ClearDescription {
		s.Description = nil
	} else if u.Description != nil {
		s.Description = u.Description
	}
	if u.Code != nil {
		s.Code = *u.Code
	}
	if u.Complexity != nil {
		s.Complexity = *u.Complexity
	}
	if u.Language != nil {
		s.Language = *u.Language
	}
	if u.ClearFileName {
		s.FileName = nil
	} else if u.FileName != nil {
		s.FileName = u.FileName
	}
	if u.IsPublic != nil {
		s.IsPublic = *u.IsPublic
	}
	if u.Tags != nil {
		s.Tags = f.linkTags(u.Tags)
	}
	f.clock = f.clock.Add(time.Second)
	s.UpdatedAt = f.clock
	out := *s
	return &out, nil
}

func (f *fakeSnippetRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(f.snippets, id)
	return nil
}

func (f *fakeSnippetRepo) IncrementViews(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return apperror.NotFound("snippet", id)
	}
	s.Views++
	return nil
}

func (f *fakeSnippetRepo) ListPublicIDs(_ context.Context) ([]repository.SitemapEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.SitemapEntry
	for _, id := range f.order {
		if s := f.snippets[id]; s != nil && s.IsPublic {
			out = append(out, repository.SitemapEntry{ID: s.ID, AuthorID: s.AuthorID, Updated: s.UpdatedAt})
		}
	}
	return out, nil
}

// ListWithCounts lets the same fake serve as the TagRepository.
func (f *fakeSnippetRepo) ListWithCounts(_ context.Context) ([]model.TagCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{}
	for _, s := range f.snippets {
		for _, t := range s.Tags {
			counts[t.Slug]++
		}
	}
	out := []model.TagCount{}
	for slug, tag := range f.tags {
		out = append(out, model.TagCount{Name: tag.Name, Slug: slug, Count: counts[slug]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	// takenUsernames makes Create/UpsertGitHub report a conflict.
	takenUsernames map[string]bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), takenUsernames: map[string]bool{}}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenUsernames[strings.ToLower(u.Username)] {
		return apperror.Conflict("user", "username")
	}
	for _, existing := range f.users {
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return apperror.Conflict("user", "email")
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	f.takenUsernames[strings.ToLower(u.Username)] = true
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) UpsertGitHub(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	for _, existing := range f.users {
		if existing.GitHubID == u.GitHubID {
			existing.Name, existing.Email, existing.AvatarURL = u.Name, u.Email, u.AvatarURL
			*u = *existing
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	return f.Create(ctx, u)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (f *fakeUserRepo) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Username, login) || (u.Email != "" && strings.EqualFold(u.Email, login)) {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", login)
}
