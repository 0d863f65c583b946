package client

import (
	"context"
	"errors"
	"sync"

	"github.com/sakif/codeshare/internal/model"
)

// ErrFeedLoading is returned by LoadMore while a page fetch is running.
var ErrFeedLoading = errors.New("client: feed page already loading")

// Feed pages through GET /snippets for a "load more" list. Only one page
// request runs at a time, so pages land in the order they were asked for.
type Feed struct {
	client *Client
	params ListParams

	mu      sync.Mutex
	loading bool
	items   []model.Snippet
	page    int
	total   int
	hasMore bool
	err     error
}

// NewFeed starts an empty feed. params.Page is ignored.
func NewFeed(c *Client, params ListParams) *Feed {
	params.Page = 0
	return &Feed{client: c, params: params, hasMore: true, items: []model.Snippet{}}
}

// NewFeedFrom seeds a feed with an already fetched first page.
func NewFeedFrom(c *Client, params ListParams, first *model.SnippetPage) *Feed {
	f := NewFeed(c, params)
	f.apply(first)
	return f
}

// LoadMore fetches the next page and appends it. It returns the new items,
// nil when the feed is exhausted, or ErrFeedLoading if a fetch is running.
// A failed fetch can be retried; the page counter only advances on success.
func (f *Feed) LoadMore(ctx context.Context) ([]model.Snippet, error) {
	f.mu.Lock()
	if f.loading {
		f.mu.Unlock()
		return nil, ErrFeedLoading
	}
	if !f.hasMore {
		f.mu.Unlock()
		return nil, nil
	}
	f.loading = true
	params := f.params
	params.Page = f.page + 1
	f.mu.Unlock()

	page, err := f.client.List(ctx, params)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	f.err = err
	if err != nil {
		return nil, err
	}
	return f.apply(page), nil
}

// apply appends page; callers hold mu (or own f exclusively).
func (f *Feed) apply(page *model.SnippetPage) []model.Snippet {
	f.items = append(f.items, page.Items...)
	f.page = page.Meta.Page
	f.total = page.Meta.Total
	f.hasMore = page.Meta.Page < page.Meta.TotalPages && len(page.Items) > 0
	return page.Items
}

func (f *Feed) Items() []model.Snippet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Snippet, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

func (f *Feed) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Err is the error of the last fetch, nil after a success.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
