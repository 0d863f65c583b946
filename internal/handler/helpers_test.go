package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codeshare/internal/auth"
	"github.com/sakif/codeshare/internal/editor"
	"github.com/sakif/codeshare/internal/handler"
	"github.com/sakif/codeshare/internal/memo"
	"github.com/sakif/codeshare/internal/model"
	sqliteRepo "github.com/sakif/codeshare/internal/repository/sqlite"
	"github.com/sakif/codeshare/internal/service"
	"github.com/sakif/codeshare/internal/view"
)

const testBaseURL = "https://codeshare.test"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv is a router over an in-memory database with the real services.
// Only the Docker formatter is missing; the editor has gofmt and json.
type testEnv struct {
	router   http.Handler
	db       *sqliteRepo.DB
	tokens   *auth.TokenService
	snippets *service.SnippetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", 0)
	require.NoError(t, err)

	hl, err := editor.NewHighlighter(32, logger)
	require.NoError(t, err)
	views, err := view.New(hl, testBaseURL, logger)
	require.NoError(t, err)

	snippetService := service.NewSnippetService(db.Snippets(), db.Tags(), db.Users(), logger)
	authService := service.NewAuthService(db.Users(), tokens, auth.NewPasswordServiceForTest(4), logger)

	snippets := handler.NewSnippetHandler(snippetService, logger, false)
	users := handler.NewUserHandler(snippetService, logger, false)
	authH := handler.NewAuthHandler(authService, nil, tokens, logger, false)
	editorH := handler.NewEditorHandler(editor.NewRegistry(nil, logger), hl, logger, false)
	pages := handler.NewPageHandler(snippetService, views, testBaseURL, logger, false)
	sitemap := handler.NewSitemapHandler(snippetService, testBaseURL, logger, false)
	health := handler.NewHealthHandler(db, logger)

	r := chi.NewRouter()
	r.Use(memo.Middleware)
	r.Use(auth.OptionalAuth(tokens))
	r.NotFound(pages.HandleNotFound)

	r.Get("/health", health.HandleHealth)
	r.Get("/sitemap.xml", sitemap.HandleSitemap)
	r.Get("/", pages.HandleFeed)
	r.Get("/s/{id}", pages.HandleSnippet)
	r.Get("/s/{id}/dialog", pages.HandleDialog)
	r.Get("/u/{id}", pages.HandleProfile)

	r.Route("/snippets", func(r chi.Router) {
		r.Get("/", snippets.HandleList)
		r.Get("/{id}", snippets.HandleGet)
		r.Get("/{id}/raw", snippets.HandleRaw)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/", snippets.HandleCreate)
			r.Patch("/{id}", snippets.HandleUpdate)
			r.Delete("/{id}", snippets.HandleDelete)
		})
	})
	r.Get("/tags", snippets.HandleTags)
	r.Get("/users/{id}", users.HandleProfile)
	r.With(auth.RequireAuth(tokens)).Get("/api/me", authH.HandleMe)
	r.Post("/auth/register", authH.HandleRegister)
	r.Post("/auth/login", authH.HandleLogin)
	r.Post("/auth/logout", authH.HandleLogout)
	r.Get("/auth/github/login", authH.HandleGitHubLogin)
	r.Get("/editor/languages", editorH.HandleLanguages)
	r.Get("/editor/themes", editorH.HandleThemes)
	r.Post("/editor/highlight", editorH.HandleHighlight)
	r.Post("/editor/format", editorH.HandleFormat)

	return &testEnv{router: r, db: db, tokens: tokens, snippets: snippetService}
}

// user creates an account directly in the database and returns it with a
// valid session token.
func (e *testEnv) user(t *testing.T, username string) (*model.User, string) {
	t.Helper()
	u := &model.User{Username: username, Name: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	token, err := e.tokens.Generate(u.ID)
	require.NoError(t, err)
	return u, token
}

// do sends a request through the router. body is JSON-encoded unless it is
// already a string.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// create posts a snippet as token and returns the stored result.
func (e *testEnv) create(t *testing.T, token string, body map[string]any) model.Snippet {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/snippets", body, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var s model.Snippet
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&s))
	return s
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}
