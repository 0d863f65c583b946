package handler

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/codeshare/internal/service"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// SitemapHandler lists the home page, every public snippet and the profile
// of every user with at least one public snippet.
type SitemapHandler struct {
	snippets *service.SnippetService
	baseURL  string
	responder
}

func NewSitemapHandler(snippets *service.SnippetService, baseURL string, logger *slog.Logger, dev bool) *SitemapHandler {
	return &SitemapHandler{
		snippets:  snippets,
		baseURL:   baseURL,
		responder: responder{logger: logger, dev: dev},
	}
}

// HandleSitemap writes sitemap.xml.
//
// HTTP: GET /sitemap.xml
func (h *SitemapHandler) HandleSitemap(w http.ResponseWriter, r *http.Request) {
	data, err := h.snippets.Sitemap(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	set := urlSet{XMLNS: sitemapNS}
	set.URLs = append(set.URLs, sitemapURL{
		Loc:        h.baseURL + "/",
		LastMod:    time.Now().UTC().Format(time.DateOnly),
		ChangeFreq: "daily",
		Priority:   "1.0",
	})

	// A profile changes whenever one of its public snippets does.
	authorMod := make(map[string]time.Time, len(data.Authors))
	for _, s := range data.Snippets {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        h.baseURL + "/s/" + s.ID,
			LastMod:    s.Updated.UTC().Format(time.DateOnly),
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
		if s.Updated.After(authorMod[s.AuthorID]) {
			authorMod[s.AuthorID] = s.Updated
		}
	}
	for _, id := range data.Authors {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        h.baseURL + "/u/" + id,
			LastMod:    authorMod[id].UTC().Format(time.DateOnly),
			ChangeFreq: "weekly",
			Priority:   "0.7",
		})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		h.logger.Error("failed to encode sitemap", slog.String("error", err.Error()))
	}
}
