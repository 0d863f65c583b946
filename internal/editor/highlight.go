package editor

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"html"
	"log/slog"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultTheme is used when the requested theme is unknown.
	DefaultTheme = "vscDarkPlus"

	fallbackLexer = "javascript"
)

// Theme maps an editor theme name to a chroma style.
type Theme struct {
	Value string `json:"value"`
	Label string `json:"label"`
	style string
}

var themes = []Theme{
	{Value: "vscDarkPlus", Label: "VS Code Dark", style: "github-dark"},
	{Value: "materialDark", Label: "Material Dark", style: "doom-one"},
	{Value: "oneDark", Label: "One Dark", style: "onedark"},
	{Value: "oneLight", Label: "One Light", style: "tango"},
	{Value: "nightOwl", Label: "Night Owl", style: "native"},
	{Value: "nord", Label: "Nord", style: "nord"},
	{Value: "okaidia", Label: "Monokai", style: "monokai"},
	{Value: "dracula", Label: "Dracula", style: "dracula"},
	{Value: "atomDark", Label: "Atom Dark", style: "vulcan"},
	{Value: "ghcolors", Label: "GitHub", style: "github"},
}

// Themes lists the selectable themes in menu order.
func Themes() []Theme {
	out := make([]Theme, len(themes))
	copy(out, themes)
	return out
}

// ResolveTheme returns the known theme name for name, or DefaultTheme.
func ResolveTheme(name string) string {
	for _, t := range themes {
		if t.Value == name {
			return t.Value
		}
	}
	return DefaultTheme
}

func themeStyle(name string) string {
	name = ResolveTheme(name)
	for _, t := range themes {
		if t.Value == name {
			return t.style
		}
	}
	return themes[0].style
}

// Highlighted is rendered, self-contained HTML for a code block.
type Highlighted struct {
	HTML  string `json:"html"`
	Lexer string `json:"lexer"`
	Theme string `json:"theme"`
	// Plain is set when the engine failed and HTML is escaped plain text.
	Plain bool `json:"plain"`
}

// Highlighter colours code for display. Implementations never fail: on any
// engine error they degrade to escaped plain text.
type Highlighter interface {
	Highlight(code, language, theme string) Highlighted
}

type cacheKey struct {
	sum   [sha256.Size]byte
	lexer string
	style string
}

// ChromaHighlighter renders with chroma and remembers recent output.
type ChromaHighlighter struct {
	cache  *lru.Cache[cacheKey, Highlighted]
	logger *slog.Logger
	format func(code string, lexer chroma.Lexer, style *chroma.Style) (string, error)
}

var _ Highlighter = (*ChromaHighlighter)(nil)

// NewHighlighter returns a highlighter caching up to cacheSize results.
func NewHighlighter(cacheSize int, logger *slog.Logger) (*ChromaHighlighter, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[cacheKey, Highlighted](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("editor: highlight cache: %w", err)
	}
	return &ChromaHighlighter{cache: cache, logger: logger, format: renderHTML}, nil
}

func (h *ChromaHighlighter) Highlight(code, language, theme string) Highlighted {
	lexer := resolveLexer(language)
	theme = ResolveTheme(theme)
	styleName := themeStyle(theme)
	lexerName := lexer.Config().Name

	key := cacheKey{sum: sha256.Sum256([]byte(code)), lexer: lexerName, style: styleName}
	if out, ok := h.cache.Get(key); ok {
		return out
	}

	out := Highlighted{Lexer: lexerName, Theme: theme}
	rendered, err := h.safeFormat(code, lexer, styles.Get(styleName))
	if err != nil {
		h.logger.Warn("highlight failed, falling back to plain text",
			slog.String("lexer", lexerName),
			slog.String("error", err.Error()),
		)
		out.HTML = PlainHTML(code)
		out.Plain = true
		// failures are not cached; the next call tries the engine again
		return out
	}
	out.HTML = rendered
	h.cache.Add(key, out)
	return out
}

// safeFormat turns a panicking lexer into an error.
func (h *ChromaHighlighter) safeFormat(code string, lexer chroma.Lexer, style *chroma.Style) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("highlighter panic: %v", r)
		}
	}()
	return h.format(code, lexer, style)
}

func resolveLexer(language string) chroma.Lexer {
	var lexer chroma.Lexer
	if l, ok := LookupLanguage(language); ok {
		lexer = lexers.Get(l.Lexer)
	}
	if lexer == nil {
		lexer = lexers.Get(fallbackLexer)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func renderHTML(code string, lexer chroma.Lexer, style *chroma.Style) (string, error) {
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	formatter := chromahtml.New(
		chromahtml.WithLineNumbers(true),
		chromahtml.WrapLongLines(true),
		chromahtml.TabWidth(4),
	)
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, it); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PlainHTML renders code as an escaped <pre> block.
func PlainHTML(code string) string {
	return `<pre class="code-plain"><code>` + html.EscapeString(code) + `</code></pre>`
}
