// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: New builds every dependency
// (database, services, editor pipeline, renderer, handlers) in one place
// and wires them to routes. Handlers get services, services get repository
// interfaces, and nothing below this package knows how the others are
// constructed.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/sakif/codeshare/internal/auth"
	"github.com/sakif/codeshare/internal/config"
	"github.com/sakif/codeshare/internal/editor"
	"github.com/sakif/codeshare/internal/executor"
	"github.com/sakif/codeshare/internal/executor/docker"
	"github.com/sakif/codeshare/internal/handler"
	"github.com/sakif/codeshare/internal/memo"
	"github.com/sakif/codeshare/internal/middleware"
	sqliteRepo "github.com/sakif/codeshare/internal/repository/sqlite"
	"github.com/sakif/codeshare/internal/service"
	"github.com/sakif/codeshare/internal/view"
)

// Rate limits per client IP.
const (
	authRequestsPerMinute   = 10
	editorRequestsPerMinute = 60
)

// Server owns the router and every resource that must be released on
// shutdown: the database and, when enabled, the formatter containers.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	exec   *docker.Executor // nil unless DOCKER_FORMATTER is on and Docker answered
}

// New opens the database and builds the full dependency graph.
//
// A Docker formatter that cannot start is not fatal: the server runs with
// the in-process formatters (Go, JSON) and logs a warning, the same way a
// missing Docker daemon only disables the container-backed parsers.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if cfg.Formatter.Enabled {
		dcfg := docker.DefaultConfig()
		dcfg.Image = cfg.Formatter.Image
		dcfg.PoolSize = cfg.Formatter.PoolSize
		dcfg.Timeout = cfg.Formatter.Timeout
		exec, err := docker.New(dcfg, logger)
		if err != nil {
			logger.Warn("Docker formatter unavailable, Prettier languages will not format",
				slog.String("error", err.Error()),
			)
		} else {
			s.exec = exec
		}
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET    /health, /sitemap.xml
//	GET    /, /s/{id}, /s/{id}/dialog, /u/{id}      HTML pages
//	GET    /snippets, /snippets/{id}, /snippets/{id}/raw
//	POST   /snippets                 (auth)
//	PATCH  /snippets/{id}            (author)
//	DELETE /snippets/{id}            (author)
//	GET    /tags, /users/{id}
//	POST   /auth/register, /auth/login, /auth/logout   (rate limited)
//	GET    /auth/github/login, /auth/github/callback   (when configured)
//	GET    /api/me                   (auth)
//	GET    /editor/languages, /editor/themes
//	POST   /editor/highlight, /editor/format           (rate limited)
//
// MIDDLEWARE ORDER MATTERS. Every request gets, in order: a request id,
// the real client IP, the request log line, panic recovery, CORS, a fresh
// memo cache, and the caller's identity when a valid token is present.
func (s *Server) setupRoutes() error {
	dev := s.config.IsDevelopment()

	secret := s.config.JWTSecret
	if secret == "" {
		if !dev {
			return errors.New("JWT_SECRET is required outside development")
		}
		secret = randomSecret()
		s.logger.Warn("JWT_SECRET not set, using a random secret; sessions end on restart")
	}
	tokens, err := auth.NewTokenService(secret, auth.DefaultSessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	highlighter, err := editor.NewHighlighter(s.config.HighlightCacheSize, s.logger)
	if err != nil {
		return fmt.Errorf("creating highlighter: %w", err)
	}
	views, err := view.New(highlighter, s.config.BaseURL, s.logger)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	// A nil *docker.Executor inside the interface would look non-nil to
	// the registry, so only assign a live one.
	var exec executor.Executor
	if s.exec != nil {
		exec = s.exec
	}
	formatter := editor.NewRegistry(exec, s.logger)

	// === Services ===
	snippetService := service.NewSnippetService(s.db.Snippets(), s.db.Tags(), s.db.Users(), s.logger)
	authService := service.NewAuthService(s.db.Users(), tokens, auth.NewPasswordService(), s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	// === Handlers ===
	snippets := handler.NewSnippetHandler(snippetService, s.logger, dev)
	users := handler.NewUserHandler(snippetService, s.logger, dev)
	authHandler := handler.NewAuthHandler(authService, github, tokens, s.logger, dev)
	editorHandler := handler.NewEditorHandler(formatter, highlighter, s.logger, dev)
	pages := handler.NewPageHandler(snippetService, views, s.config.BaseURL, s.logger, dev)
	sitemap := handler.NewSitemapHandler(snippetService, s.config.BaseURL, s.logger, dev)
	health := handler.NewHealthHandler(s.db, s.logger)

	requireAuth := auth.RequireAuth(tokens)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	s.router.Use(memo.Middleware)
	s.router.Use(auth.OptionalAuth(tokens))

	s.router.NotFound(pages.HandleNotFound)

	s.router.Get("/health", health.HandleHealth)
	s.router.Get("/sitemap.xml", sitemap.HandleSitemap)

	// === Pages ===
	s.router.Get("/", pages.HandleFeed)
	s.router.Get("/s/{id}", pages.HandleSnippet)
	s.router.Get("/s/{id}/dialog", pages.HandleDialog)
	s.router.Get("/u/{id}", pages.HandleProfile)

	// === JSON API ===
	s.router.Route("/snippets", func(r chi.Router) {
		r.Get("/", snippets.HandleList)
		r.Get("/{id}", snippets.HandleGet)
		r.Get("/{id}/raw", snippets.HandleRaw)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", snippets.HandleCreate)
			r.Patch("/{id}", snippets.HandleUpdate)
			r.Delete("/{id}", snippets.HandleDelete)
		})
	})
	s.router.Get("/tags", snippets.HandleTags)
	s.router.Get("/users/{id}", users.HandleProfile)
	s.router.With(requireAuth).Get("/api/me", authHandler.HandleMe)

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(httprate.Limit(authRequestsPerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(handler.RateLimited),
		))
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/editor", func(r chi.Router) {
		r.Get("/languages", editorHandler.HandleLanguages)
		r.Get("/themes", editorHandler.HandleThemes)

		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(editorRequestsPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(handler.RateLimited),
			))
			r.Post("/highlight", editorHandler.HandleHighlight)
			r.Post("/format", editorHandler.HandleFormat)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Stop the formatter containers and close the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
			slog.Bool("dockerFormatter", s.exec != nil),
			slog.Bool("githubLogin", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the database and the formatter containers. Start calls
// it on the way out; tests that never Start call it themselves.
func (s *Server) Close() error {
	var errs []error
	if s.exec != nil {
		if err := s.exec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing executor: %w", err))
		}
		s.exec = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}

func randomSecret() string {
	b := make([]byte, 32)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
