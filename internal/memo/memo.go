// Package memo deduplicates identical reads within one HTTP request.
//
// A page render may ask for the same snippet or user more than once (the
// page itself, its header, the edit check). Middleware gives every request
// its own Cache; Do runs the loader at most once per key for that request.
// Nothing outlives the request, so there is no invalidation to get wrong.
package memo

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// ErrLoaderPanicked is what waiters on a key see when the call loading it
// panicked. The panic itself propagates in the caller that ran fn.
var ErrLoaderPanicked = errors.New("memo: loader panicked")

type ctxKey struct{}

// Cache holds the results of one request's loads.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	done chan struct{}
	val  any
	err  error
}

func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// WithCache returns a copy of ctx carrying c.
func WithCache(ctx context.Context, c *Cache) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the request's Cache, or nil outside a memoized request.
func FromContext(ctx context.Context) *Cache {
	c, _ := ctx.Value(ctxKey{}).(*Cache)
	return c
}

// Middleware installs a fresh Cache into each request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithCache(r.Context(), New())))
	})
}

// Do returns the memoized result for key, calling fn on the first request
// for it. Concurrent callers with the same key wait for the first call.
// Errors are not memoized: the next Do for that key calls fn again.
//
// Without a Cache in ctx, Do simply calls fn.
func Do[T any](ctx context.Context, key string, fn func() (T, error)) (T, error) {
	c := FromContext(ctx)
	if c == nil {
		return fn()
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-e.done
		if e.err != nil {
			var zero T
			return zero, e.err
		}
		return e.val.(T), nil
	}
	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			e.err = ErrLoaderPanicked
		}
		if e.err != nil {
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		close(e.done)
	}()

	v, err := fn()
	e.val, e.err = v, err
	finished = true
	return v, err
}

// Forget drops key so the next Do reloads it. Writers call this after
// changing a row the same request may read again.
func Forget(ctx context.Context, key string) {
	if c := FromContext(ctx); c != nil {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}
}
