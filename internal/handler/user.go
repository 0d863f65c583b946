package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codeshare/internal/auth"
	"github.com/sakif/codeshare/internal/service"
)

// UserHandler serves public profiles.
type UserHandler struct {
	snippets *service.SnippetService
	responder
}

func NewUserHandler(snippets *service.SnippetService, logger *slog.Logger, dev bool) *UserHandler {
	return &UserHandler{
		snippets:  snippets,
		responder: responder{logger: logger, dev: dev},
	}
}

// HandleProfile returns a user with stats and the snippets the caller may see.
//
// HTTP: GET /users/{id} (optional auth)
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	profile, err := h.snippets.Profile(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Email is account data, not profile data.
	if !profile.IsOwner {
		profile.User.Email = ""
	}
	writeJSON(w, http.StatusOK, profile)
}
