// Package view renders snippets as HTML: feed cards, the detail dialog
// fragment, the full snippet page and profile pages.
//
// Every render site receives the same model.Snippet DTO, whether it came
// from the feed, a profile or a single fetch, and decides author-only
// actions with CanEdit.
package view

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yuin/goldmark"

	"github.com/sakif/codeshare/internal/editor"
	"github.com/sakif/codeshare/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// CanEdit reports whether viewerID may edit or delete s.
func CanEdit(viewerID string, s *model.Snippet) bool {
	return viewerID != "" && s != nil && viewerID == s.AuthorID
}

// DownloadName is the file name offered when downloading s.
func DownloadName(s *model.Snippet) string {
	if name := s.FileNameText(); name != "" {
		return name
	}
	return s.Slug + "." + editor.Extension(s.Language)
}

// SnippetView is a snippet prepared for one render site.
type SnippetView struct {
	*model.Snippet
	Code         template.HTML
	Description  template.HTML
	DownloadName string
	CanEdit      bool
	Theme        string
	Themes       []editor.Theme
}

// Layout is the data every full page shares.
type Layout struct {
	Title       string
	Description string
	Canonical   string
	ViewerID    string
}

type Filters struct {
	Query    string
	Tag      string
	Language string
}

// FeedInput is what a handler hands over to render the home feed.
type FeedInput struct {
	Page    *model.SnippetPage
	Filters Filters
	Tags    []model.TagCount
	Theme   string
}

type feedData struct {
	Layout
	Items     []SnippetView
	Meta      model.ListMeta
	Filters   Filters
	Tags      []model.TagCount
	Languages []editor.Language
	NextURL   string
}

type snippetData struct {
	Layout
	Snippet SnippetView
}

type profileData struct {
	Layout
	Profile *model.Profile
	Public  []SnippetView
	Private []SnippetView
}

type errorData struct {
	Layout
	Status  int
	Message string
}

// Renderer owns the parsed templates.
type Renderer struct {
	pages    map[string]*template.Template
	partials *template.Template
	hl       editor.Highlighter
	markdown goldmark.Markdown
	boundary *Boundary
	baseURL  string
	logger   *slog.Logger
}

// New parses the embedded templates. baseURL prefixes canonical links.
func New(hl editor.Highlighter, baseURL string, logger *slog.Logger) (*Renderer, error) {
	partials, err := template.ParseFS(templateFS, "templates/base.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("view: parse partials: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{"feed", "snippet", "profile", "error"} {
		clone, err := partials.Clone()
		if err != nil {
			return nil, fmt.Errorf("view: clone for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("view: parse %s: %w", name, err)
		}
		pages[name] = clone
	}

	boundary := NewBoundary(logger)
	boundary.Fallback = func(w io.Writer, region string, _ error) error {
		return partials.ExecuteTemplate(w, "panel-error", region)
	}

	return &Renderer{
		pages:    pages,
		partials: partials,
		hl:       hl,
		markdown: newMarkdown(),
		boundary: boundary,
		baseURL:  baseURL,
		logger:   logger,
	}, nil
}

// snippetView prepares s for rendering to viewerID.
func (r *Renderer) snippetView(viewerID string, s *model.Snippet, theme string) SnippetView {
	theme = editor.ResolveTheme(theme)
	return SnippetView{
		Snippet:      s,
		Code:         template.HTML(r.hl.Highlight(s.Code, s.Language, theme).HTML),
		Description:  r.renderMarkdown(s.DescriptionText()),
		DownloadName: DownloadName(s),
		CanEdit:      CanEdit(viewerID, s),
		Theme:        theme,
		Themes:       editor.Themes(),
	}
}

func (r *Renderer) snippetViews(viewerID string, list []model.Snippet, theme string) []SnippetView {
	out := make([]SnippetView, len(list))
	for i := range list {
		out[i] = r.snippetView(viewerID, &list[i], theme)
	}
	return out
}

// Card renders one feed card fragment.
func (r *Renderer) Card(w io.Writer, viewerID string, s *model.Snippet, theme string) error {
	return r.partials.ExecuteTemplate(w, "card", r.snippetView(viewerID, s, theme))
}

// Dialog renders the detail dialog fragment opened from a card.
func (r *Renderer) Dialog(ctx context.Context, w io.Writer, viewerID string, s *model.Snippet, theme string) error {
	v := r.snippetView(viewerID, s, theme)
	return r.boundary.Render(ctx, w, "dialog", func(buf io.Writer) error {
		return r.partials.ExecuteTemplate(buf, "dialog", v)
	})
}

// Feed renders the home page.
func (r *Renderer) Feed(ctx context.Context, w io.Writer, viewerID string, in FeedInput) error {
	data := feedData{
		Layout:    Layout{Title: "Share code snippets", Canonical: r.baseURL + "/", ViewerID: viewerID},
		Items:     r.snippetViews(viewerID, in.Page.Items, in.Theme),
		Meta:      in.Page.Meta,
		Filters:   in.Filters,
		Tags:      in.Tags,
		Languages: editor.Languages(),
		NextURL:   nextURL(in.Filters, in.Page.Meta),
	}
	return r.page(ctx, w, "feed", data)
}

// Snippet renders the full snippet page.
func (r *Renderer) Snippet(ctx context.Context, w io.Writer, viewerID string, s *model.Snippet, theme string) error {
	data := snippetData{
		Layout: Layout{
			Title:       s.Title,
			Description: s.DescriptionText(),
			Canonical:   r.baseURL + "/s/" + s.ID,
			ViewerID:    viewerID,
		},
		Snippet: r.snippetView(viewerID, s, theme),
	}
	return r.page(ctx, w, "snippet", data)
}

// Profile renders a user's page. Private snippets are split out and only
// reach the template when the profile says the viewer is the owner.
func (r *Renderer) Profile(ctx context.Context, w io.Writer, viewerID string, p *model.Profile, theme string) error {
	var public, private []model.Snippet
	for _, s := range p.Snippets {
		if s.IsPublic {
			public = append(public, s)
		} else if p.IsOwner {
			private = append(private, s)
		}
	}
	data := profileData{
		Layout: Layout{
			Title:     "@" + p.User.Username,
			Canonical: r.baseURL + "/u/" + p.User.ID,
			ViewerID:  viewerID,
		},
		Profile: p,
		Public:  r.snippetViews(viewerID, public, theme),
		Private: r.snippetViews(viewerID, private, theme),
	}
	return r.page(ctx, w, "profile", data)
}

// Error renders a full error page with status.
func (r *Renderer) Error(w http.ResponseWriter, viewerID string, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := errorData{
		Layout:  Layout{Title: http.StatusText(status), ViewerID: viewerID},
		Status:  status,
		Message: message,
	}
	if err := r.pages["error"].ExecuteTemplate(w, "base", data); err != nil {
		r.logger.Error("failed to render error page", slog.String("error", err.Error()))
	}
}

func (r *Renderer) page(ctx context.Context, w io.Writer, name string, data any) error {
	tmpl := r.pages[name]
	return r.boundary.Render(ctx, w, name, func(buf io.Writer) error {
		return tmpl.ExecuteTemplate(buf, "base", data)
	})
}

// renderMarkdown turns a description into HTML. Raw HTML in the source is
// dropped by goldmark's default renderer.
func (r *Renderer) renderMarkdown(src string) template.HTML {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(src), &buf); err != nil {
		r.logger.Warn("markdown render failed", slog.String("error", err.Error()))
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func nextURL(f Filters, meta model.ListMeta) string {
	if meta.Page >= meta.TotalPages {
		return ""
	}
	v := url.Values{}
	if f.Query != "" {
		v.Set("q", f.Query)
	}
	if f.Tag != "" {
		v.Set("tag", f.Tag)
	}
	if f.Language != "" {
		v.Set("language", f.Language)
	}
	v.Set("page", strconv.Itoa(meta.Page+1))
	return "/?" + v.Encode()
}
