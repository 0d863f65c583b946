// Package repository declares the storage interfaces the service layer
// depends on. internal/repository/sqlite provides the implementation; tests
// substitute in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/codeshare/internal/model"
)

// ListFilter selects public snippets for the feed. Zero values mean "no
// filter". Limit and Offset are already clamped by the caller.
type ListFilter struct {
	Language string
	TagSlug  string
	Query    string
	AuthorID string
	Limit    int
	Offset   int
}

// SnippetUpdate carries the fields of a partial update. A nil pointer leaves
// the column unchanged. ClearDescription / ClearFileName set the column to
// NULL. Tags == nil leaves associations untouched; a non-nil (possibly
// empty) slice replaces them.
type SnippetUpdate struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Code             *string
	Complexity       *string
	Language         *string
	FileName         *string
	ClearFileName    bool
	IsPublic         *bool
	Tags             []model.TagInput
}

type SnippetRepository interface {
	// Create inserts the snippet and links tags in one transaction. It sets
	// ID, timestamps and Tags on the passed snippet.
	Create(ctx context.Context, snippet *model.Snippet, tags []model.TagInput) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	// AuthorOf returns only the author id, for ownership checks.
	AuthorOf(ctx context.Context, id string) (string, error)
	List(ctx context.Context, filter ListFilter) ([]model.Snippet, int, error)
	// ListByAuthor returns every snippet of the author, private ones included.
	ListByAuthor(ctx context.Context, authorID string) ([]model.Snippet, error)
	// Update applies the partial update and the tag replacement in one
	// transaction, then returns the fresh row.
	Update(ctx context.Context, id string, update SnippetUpdate) (*model.Snippet, error)
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	ListPublicIDs(ctx context.Context) ([]SitemapEntry, error)
}

type TagRepository interface {
	ListWithCounts(ctx context.Context) ([]model.TagCount, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// UpsertGitHub creates or refreshes the account linked to user.GitHubID.
	UpsertGitHub(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
}

// SitemapEntry is the minimal projection the sitemap needs.
type SitemapEntry struct {
	ID       string
	AuthorID string
	Updated  time.Time
}
