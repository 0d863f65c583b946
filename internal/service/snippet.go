// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces ownership, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain Go values and return apperror values; they know
// nothing about HTTP status codes or SQL. SnippetService takes repository
// interfaces, so tests pass in-memory fakes (see snippet_test.go).
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sakif/codeshare/internal/apperror"
	"github.com/sakif/codeshare/internal/complexity"
	"github.com/sakif/codeshare/internal/memo"
	"github.com/sakif/codeshare/internal/model"
	"github.com/sakif/codeshare/internal/repository"
	"github.com/sakif/codeshare/internal/tags"
)

// Validation and paging limits.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxCodeLength        = 100000 // ~100KB of code
	DefaultPageSize      = 12
	MaxPageSize          = 50

	slugSuffixLength = 7
	slugAttempts     = 3
	topLanguages     = 5
)

// CreateInput is the body of POST /snippets. Tags is whatever the client
// sent; only arrays of strings mean anything (see tags.Normalize).
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Code        string  `json:"code"`
	Language    string  `json:"language"`
	FileName    *string `json:"fileName"`
	IsPublic    *bool   `json:"isPublic"`
	Tags        any     `json:"tags"`
}

// UpdateInput is the body of PATCH /snippets/{id}. Every field is optional.
// Description and FileName use model.Optional because an explicit null
// clears them while an absent key leaves them alone.
type UpdateInput struct {
	Title       *string                `json:"title"`
	Description model.Optional[string] `json:"description"`
	Code        *string                `json:"code"`
	Language    *string                `json:"language"`
	FileName    model.Optional[string] `json:"fileName"`
	IsPublic    *bool                  `json:"isPublic"`
	Tags        any                    `json:"tags"`
}

// ListQuery selects one page of the public feed.
type ListQuery struct {
	Query    string
	Tag      string
	Language string
	AuthorID string
	Page     int
	PageSize int
}

// ParseListQuery reads q, tag, language, authorId, page and pageSize.
// Malformed numbers become 0 and are defaulted by List.
func ParseListQuery(v url.Values) ListQuery {
	page, _ := strconv.Atoi(v.Get("page"))
	pageSize, _ := strconv.Atoi(v.Get("pageSize"))
	return ListQuery{
		Query:    strings.TrimSpace(v.Get("q")),
		Tag:      strings.TrimSpace(v.Get("tag")),
		Language: strings.TrimSpace(v.Get("language")),
		AuthorID: strings.TrimSpace(v.Get("authorId")),
		Page:     page,
		PageSize: pageSize,
	}
}

// SnippetService handles business logic for code snippets.
type SnippetService struct {
	repo   repository.SnippetRepository
	tags   repository.TagRepository
	users  repository.UserRepository
	logger *slog.Logger
}

// NewSnippetService creates a new SnippetService.
func NewSnippetService(
	repo repository.SnippetRepository,
	tagRepo repository.TagRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *SnippetService {
	return &SnippetService{
		repo:   repo,
		tags:   tagRepo,
		users:  users,
		logger: logger,
	}
}

// Create validates and saves a new snippet for authorID.
//
// The server owns slug and complexity; the client never supplies them.
// isPublic defaults to true. Tags are normalized and linked in the same
// transaction as the insert.
func (s *SnippetService) Create(ctx context.Context, authorID string, in CreateInput) (*model.Snippet, error) {
	if authorID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, apperror.ValidationFailed("title", "title is required")
	case in.Code == "":
		return nil, apperror.ValidationFailed("code", "code is required")
	case strings.TrimSpace(in.Language) == "":
		return nil, apperror.ValidationFailed("language", "language is required")
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateCode(in.Code); err != nil {
		return nil, err
	}
	if in.Description != nil {
		if err := validateDescription(*in.Description); err != nil {
			return nil, err
		}
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	snippet := &model.Snippet{
		Title:       title,
		Description: in.Description,
		Code:        in.Code,
		Language:    strings.TrimSpace(in.Language),
		FileName:    in.FileName,
		Complexity:  complexity.Analyze(in.Code),
		IsPublic:    isPublic,
		AuthorID:    authorID,
	}
	tagInputs := tags.Normalize(in.Tags)

	// The random suffix makes a collision unlikely; retry a few times anyway
	// rather than surface a 409 for something the caller cannot fix.
	var err error
	for attempt := 0; attempt < slugAttempts; attempt++ {
		snippet.Slug = GenerateSlug(title)
		err = s.repo.Create(ctx, snippet, tagInputs)
		if !errors.Is(err, apperror.ErrConflict) {
			break
		}
	}
	if err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("slug", snippet.Slug),
		slog.Int("tags", len(snippet.Tags)),
	)

	// Read back so the response carries the joined author like every other
	// read path does.
	return s.repo.GetByID(ctx, snippet.ID)
}

// GetByID returns a single snippet. Repeated calls in one request are
// served from the request memo.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	return memo.Do(ctx, snippetKey(id), func() (*model.Snippet, error) {
		snippet, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("service: getting snippet: %w", err)
		}
		return snippet, nil
	})
}

// authorize enforces the order every mutation checks in: a session is
// required (401), the snippet must exist (404), and the caller must own it
// (403).
// Authorize reports whether callerID may modify snippet id, with the same
// 401, 404, 403 ordering Update and Delete apply. Handlers call it before
// reading a request body.
func (s *SnippetService) Authorize(ctx context.Context, callerID, id string) error {
	return s.authorize(ctx, callerID, id)
}

func (s *SnippetService) authorize(ctx context.Context, callerID, id string) error {
	if callerID == "" {
		return apperror.Unauthorized("authentication required")
	}
	authorID, err := s.repo.AuthorOf(ctx, id)
	if err != nil {
		return fmt.Errorf("service: checking owner: %w", err)
	}
	if authorID != callerID {
		return apperror.Forbidden("only the author can modify this snippet")
	}
	return nil
}

// Update applies a partial update on behalf of callerID.
//
// Only fields present in the input change. A present code recomputes
// complexity. A title that trims to empty is ignored, and the slug is never
// recomputed. A tags array replaces the associations; anything else leaves
// them alone.
func (s *SnippetService) Update(ctx context.Context, callerID, id string, in UpdateInput) (*model.Snippet, error) {
	if err := s.authorize(ctx, callerID, id); err != nil {
		return nil, err
	}

	var upd repository.SnippetUpdate

	if in.Title != nil {
		if title := strings.TrimSpace(*in.Title); title != "" {
			if err := validateTitle(title); err != nil {
				return nil, err
			}
			upd.Title = &title
		}
	}
	if in.Description.Set {
		if in.Description.Valid {
			if err := validateDescription(in.Description.Value); err != nil {
				return nil, err
			}
			upd.Description = in.Description.Ptr()
		} else {
			upd.ClearDescription = true
		}
	}
	if in.Code != nil {
		if *in.Code == "" {
			return nil, apperror.ValidationFailed("code", "code is required")
		}
		if err := validateCode(*in.Code); err != nil {
			return nil, err
		}
		c := complexity.Analyze(*in.Code)
		upd.Code = in.Code
		upd.Complexity = &c
	}
	if in.Language != nil {
		lang := strings.TrimSpace(*in.Language)
		if lang == "" {
			return nil, apperror.ValidationFailed("language", "language is required")
		}
		upd.Language = &lang
	}
	if in.FileName.Set {
		if in.FileName.Valid {
			upd.FileName = in.FileName.Ptr()
		} else {
			upd.ClearFileName = true
		}
	}
	upd.IsPublic = in.IsPublic
	if isTagArray(in.Tags) {
		upd.Tags = tags.Normalize(in.Tags)
	}

	snippet, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("service: updating snippet: %w", err)
	}
	memo.Forget(ctx, snippetKey(id))

	s.logger.Info("snippet updated",
		slog.String("id", id),
		slog.Bool("tagsReplaced", upd.Tags != nil),
	)
	return snippet, nil
}

// Delete removes a snippet on behalf of callerID. Its tag links go with
// it; the tags stay.
func (s *SnippetService) Delete(ctx context.Context, callerID, id string) error {
	if err := s.authorize(ctx, callerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("service: deleting snippet: %w", err)
	}
	memo.Forget(ctx, snippetKey(id))

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// List returns one page of the public feed with paging metadata.
func (s *SnippetService) List(ctx context.Context, q ListQuery) (*model.SnippetPage, error) {
	page := q.Page
	if page <= 0 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	// A page far past any real total must not wrap the offset negative.
	offset := math.MaxInt
	if page-1 <= math.MaxInt/pageSize {
		offset = (page - 1) * pageSize
	}

	items, total, err := s.repo.List(ctx, repository.ListFilter{
		Language: q.Language,
		TagSlug:  q.Tag,
		Query:    q.Query,
		AuthorID: q.AuthorID,
		Limit:    pageSize,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("service: listing snippets: %w", err)
	}
	if items == nil {
		items = []model.Snippet{}
	}

	return &model.SnippetPage{
		Items: items,
		Meta: model.ListMeta{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (total + pageSize - 1) / pageSize,
		},
	}, nil
}

// Tags lists every tag with its usage count, ordered by name.
func (s *SnippetService) Tags(ctx context.Context) ([]model.TagCount, error) {
	list, err := s.tags.ListWithCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: listing tags: %w", err)
	}
	return list, nil
}

// View records one full-page view of a snippet.
func (s *SnippetService) View(ctx context.Context, id string) error {
	if err := s.repo.IncrementViews(ctx, id); err != nil {
		return fmt.Errorf("service: counting view: %w", err)
	}
	return nil
}

// Profile returns userID's profile as seen by viewerID.
//
// Stats and the language breakdown cover every snippet the user owns;
// the snippet list hides private ones unless the viewer is the owner.
func (s *SnippetService) Profile(ctx context.Context, viewerID, userID string) (*model.Profile, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.ListByAuthor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: listing profile snippets: %w", err)
	}

	isOwner := viewerID != "" && viewerID == userID
	profile := &model.Profile{
		User:     *user,
		Snippets: make([]model.Snippet, 0, len(all)),
		IsOwner:  isOwner,
	}

	langCounts := map[string]int{}
	for _, sn := range all {
		profile.Stats.Total++
		profile.Stats.Views += sn.Views
		if sn.IsPublic {
			profile.Stats.Public++
		} else {
			profile.Stats.Private++
		}
		langCounts[sn.Language]++

		if sn.IsPublic || isOwner {
			profile.Snippets = append(profile.Snippets, sn)
		}
	}
	profile.Languages = rankLanguages(langCounts, topLanguages)

	return profile, nil
}

// User loads a user through the request memo.
func (s *SnippetService) User(ctx context.Context, id string) (*model.User, error) {
	return memo.Do(ctx, "user:"+id, func() (*model.User, error) {
		u, err := s.users.GetUserByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("service: getting user: %w", err)
		}
		return u, nil
	})
}

// SitemapData lists public snippets and the profiles that own them.
type SitemapData struct {
	Snippets []repository.SitemapEntry
	Authors  []string
}

// Sitemap returns the public URLs the sitemap advertises.
func (s *SnippetService) Sitemap(ctx context.Context) (*SitemapData, error) {
	entries, err := s.repo.ListPublicIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: building sitemap: %w", err)
	}
	data := &SitemapData{Snippets: entries}
	seen := map[string]bool{}
	for _, e := range entries {
		if !seen[e.AuthorID] {
			seen[e.AuthorID] = true
			data.Authors = append(data.Authors, e.AuthorID)
		}
	}
	return data, nil
}

func rankLanguages(counts map[string]int, limit int) []model.LanguageCount {
	out := make([]model.LanguageCount, 0, len(counts))
	for lang, n := range counts {
		out = append(out, model.LanguageCount{Language: lang, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Language < out[j].Language
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func snippetKey(id string) string { return "snippet:" + id }

func isTagArray(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	return false
}

func validateTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return nil
}

func validateDescription(d string) error {
	if utf8.RuneCountInString(d) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}

func validateCode(code string) error {
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return nil
}

var slugJunk = regexp.MustCompile(`[^a-z0-9]+`)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateSlug lowercases title, collapses every run of non [a-z0-9]
// characters into one hyphen, trims hyphens from the ends and appends a
// hyphen plus 7 random base-36 characters. A title with no usable
// characters gets "snippet" as its base.
func GenerateSlug(title string) string {
	base := slugJunk.ReplaceAllString(strings.ToLower(title), "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "snippet"
	}

	var b strings.Builder
	b.Grow(len(base) + 1 + slugSuffixLength)
	b.WriteString(base)
	b.WriteByte('-')
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < slugSuffixLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(fmt.Sprintf("service: reading random bytes: %v", err))
		}
		b.WriteByte(base36[n.Int64()])
	}
	return b.String()
}
