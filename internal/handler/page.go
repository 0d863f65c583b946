// Package handler contains the HTTP handlers: the JSON API, the editor
// endpoints and the server-rendered pages.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path and query params, JSON body, auth context)
//  2. Call the service or the editor pipeline
//  3. Write the response (status, headers, body)
//
// Handlers hold no business rules; they are the glue between HTTP and the
// rest of the application.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeshare/internal/auth"
	"github.com/sakif/codeshare/internal/service"
	"github.com/sakif/codeshare/internal/view"
)

// PageHandler serves the HTML pages. Templates are parsed once, inside
// view.Renderer, and reused for every request.
type PageHandler struct {
	snippets *service.SnippetService
	views    *view.Renderer
	baseURL  string
	logger   *slog.Logger
	dev      bool
}

func NewPageHandler(snippets *service.SnippetService, views *view.Renderer, baseURL string, logger *slog.Logger, dev bool) *PageHandler {
	return &PageHandler{
		snippets: snippets,
		views:    views,
		baseURL:  baseURL,
		logger:   logger,
		dev:      dev,
	}
}

// HandleFeed serves the home page: filters, tag cloud and one page of cards.
//
// HTTP: GET /?q=&tag=&language=&page=&theme=
func (h *PageHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	q := service.ParseListQuery(r.URL.Query())
	// The feed page is the public feed; authorId filtering is for /u/{id}.
	q.AuthorID = ""

	page, err := h.snippets.List(r.Context(), q)
	if err != nil {
		h.fail(w, r, viewerID, err)
		return
	}
	tags, err := h.snippets.Tags(r.Context())
	if err != nil {
		h.fail(w, r, viewerID, err)
		return
	}

	in := view.FeedInput{
		Page:    page,
		Filters: view.Filters{Query: q.Query, Tag: q.Tag, Language: q.Language},
		Tags:    tags,
		Theme:   r.URL.Query().Get("theme"),
	}
	h.render(w, r, viewerID, func() error {
		return h.views.Feed(r.Context(), w, viewerID, in)
	})
}

// HandleSnippet serves the full snippet page and counts one view.
//
// HTTP: GET /s/{id}?theme=
func (h *PageHandler) HandleSnippet(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	snippet, err := h.snippets.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, viewerID, err)
		return
	}

	// A lost view count is not worth failing the page over.
	if err := h.snippets.View(r.Context(), id); err != nil {
		h.logger.Warn("failed to count view", slog.String("id", id), slog.String("error", err.Error()))
	} else {
		snippet.Views++
	}

	h.render(w, r, viewerID, func() error {
		return h.views.Snippet(r.Context(), w, viewerID, snippet, r.URL.Query().Get("theme"))
	})
}

// HandleDialog serves the detail dialog fragment a feed card opens. It
// does not count a view; only the full page does.
//
// HTTP: GET /s/{id}/dialog?theme=
func (h *PageHandler) HandleDialog(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())

	snippet, err := h.snippets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, viewerID, err)
		return
	}

	h.render(w, r, viewerID, func() error {
		return h.views.Dialog(r.Context(), w, viewerID, snippet, r.URL.Query().Get("theme"))
	})
}

// HandleProfile serves a user's page.
//
// HTTP: GET /u/{id}?theme=
func (h *PageHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())

	profile, err := h.snippets.Profile(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, viewerID, err)
		return
	}

	h.render(w, r, viewerID, func() error {
		return h.views.Profile(r.Context(), w, viewerID, profile, r.URL.Query().Get("theme"))
	})
}

// HandleNotFound renders the HTML 404 page for unknown page routes.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	h.views.Error(w, viewerID, http.StatusNotFound, "This page could not be found.")
}

// render sets the content type and runs fn. The renderer buffers each
// page, so an error here means nothing was written yet.
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, viewerID string, fn func() error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := fn(); err != nil {
		h.fail(w, r, viewerID, err)
	}
}

// fail renders the error page for err with the same status mapping the
// JSON API uses.
func (h *PageHandler) fail(w http.ResponseWriter, r *http.Request, viewerID string, err error) {
	status, msg := statusFor(err, h.dev)
	if status >= http.StatusInternalServerError {
		h.logger.Error("page render failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	h.views.Error(w, viewerID, status, msg)
}
