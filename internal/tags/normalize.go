// Package tags turns free-text tag input into {name, slug} pairs.
//
// Tags are keyed by slug in storage (get-or-create by slug), so every write
// path that accepts tags runs its input through Normalize first.
package tags

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sakif/codeshare/internal/model"
)

// spaceClass matches what browsers treat as \s, which is wider than RE2's
// ASCII-only \s (NBSP and the other Zs spaces count).
const spaceClass = `\s\v\p{Zs}\x{2028}\x{2029}\x{feff}`

var (
	disallowed = regexp.MustCompile(`[^a-z0-9` + spaceClass + `-]`)
	whitespace = regexp.MustCompile(`[` + spaceClass + `]+`)
)

func isSpace(r rune) bool {
	return unicode.Is(unicode.Zs, r) || strings.ContainsRune("\t\n\v\f\r\u2028\u2029\ufeff", r)
}

// Slugify lowercases s, strips everything outside [a-z0-9], whitespace and
// hyphens, trims, and replaces each whitespace run with a single hyphen.
//
// Hyphens already present are kept as-is, so "a - b" becomes "a---b".
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = disallowed.ReplaceAllString(s, "")
	s = strings.TrimFunc(s, isSpace)
	return whitespace.ReplaceAllString(s, "-")
}

// Normalize accepts whatever the caller decoded from a request body and
// returns the de-duplicated tag list. Only []string and []any are
// meaningful; non-string entries and blank strings are dropped.
//
// De-duplication is by exact trimmed name and happens before slugging, so
// "Go" and "go" yield two entries with the same slug.
func Normalize(input any) []model.TagInput {
	var raw []string
	switch v := input.(type) {
	case []string:
		raw = v
	case []any:
		raw = make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	default:
		return []model.TagInput{}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]model.TagInput, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, model.TagInput{Name: name, Slug: Slugify(name)})
	}
	return out
}
