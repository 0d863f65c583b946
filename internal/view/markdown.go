package view

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// newMarkdown builds the description renderer. Without WithUnsafe, raw HTML
// and javascript: links are not rendered.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Linkify,
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithHardWraps(),
		),
	)
}
