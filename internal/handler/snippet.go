package handler

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeshare/internal/auth"
	"github.com/sakif/codeshare/internal/service"
	"github.com/sakif/codeshare/internal/view"
)

// SnippetHandler serves the JSON snippet API and the tag listing.
//
// The handler only moves data between HTTP and the service: it reads the
// caller from the auth context, decodes bodies, and maps errors. Ownership
// checks, validation and tag handling all live in service.SnippetService.
type SnippetHandler struct {
	snippets *service.SnippetService
	responder
}

// NewSnippetHandler creates a SnippetHandler. dev exposes internal error
// messages in 500 responses.
func NewSnippetHandler(snippets *service.SnippetService, logger *slog.Logger, dev bool) *SnippetHandler {
	return &SnippetHandler{
		snippets:  snippets,
		responder: responder{logger: logger, dev: dev},
	}
}

// HandleList returns one page of the public feed.
//
// HTTP: GET /snippets?q=&tag=&language=&authorId=&page=&pageSize=
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.List(r.Context(), service.ParseListQuery(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCreate stores a new snippet owned by the caller.
//
// HTTP: POST /snippets (auth required) → 201 + snippet
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	snippet, err := h.snippets.Create(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleGet returns a single snippet.
//
// HTTP: GET /snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleUpdate applies a partial update. Absent keys are left alone.
//
// HTTP: PATCH /snippets/{id} (author only)
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	// A bad body for someone else's (or no) snippet is still a 403/404.
	if err := h.snippets.Authorize(r.Context(), userID, id); err != nil {
		h.writeError(w, r, err)
		return
	}

	var in service.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	snippet, err := h.snippets.Update(r.Context(), userID, id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /snippets/{id} (author only) → {"ok": true}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.snippets.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleRaw serves the code as a download named after the snippet.
//
// HTTP: GET /snippets/{id}/raw
func (h *SnippetHandler) HandleRaw(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// FormatMediaType quotes or RFC 2231-encodes the name as needed.
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": view.DownloadName(snippet)})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(snippet.Code)); err != nil {
		h.logger.Warn("raw download interrupted", slog.String("id", snippet.ID), slog.String("error", err.Error()))
	}
}

// HandleTags lists every tag with its usage count.
//
// HTTP: GET /tags → [{name, slug, count}]
func (h *SnippetHandler) HandleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.snippets.Tags(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
