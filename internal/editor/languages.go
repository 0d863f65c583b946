// Package editor holds the code editing pipeline: the language table,
// syntax highlighting, formatting and the per-editor session state.
package editor

import (
	_ "embed"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var languagesYAML []byte

// DefaultLanguage is preselected in an empty form.
const DefaultLanguage = "Text"

// Language is one row of the editor's language table.
type Language struct {
	Name       string   `yaml:"name" json:"name"`
	Extensions []string `yaml:"extensions" json:"extensions"`
	Lexer      string   `yaml:"lexer" json:"-"`
	Parser     string   `yaml:"parser" json:"parser,omitempty"`
}

// LanguageTable indexes the language list by name and by extension.
type LanguageTable struct {
	list   []Language
	byName map[string]Language
	byExt  map[string]string
}

var languages = mustParseLanguages(languagesYAML)

func mustParseLanguages(data []byte) *LanguageTable {
	t, err := ParseLanguages(data)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseLanguages decodes a YAML language list. Names must be unique; an
// extension claimed twice belongs to the first language listing it.
func ParseLanguages(data []byte) (*LanguageTable, error) {
	var list []Language
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("editor: parse languages: %w", err)
	}

	t := &LanguageTable{
		list:   list,
		byName: make(map[string]Language, len(list)),
		byExt:  make(map[string]string),
	}
	for _, l := range list {
		if l.Name == "" || l.Lexer == "" {
			return nil, fmt.Errorf("editor: language entry %+v needs name and lexer", l)
		}
		key := strings.ToLower(l.Name)
		if _, dup := t.byName[key]; dup {
			return nil, fmt.Errorf("editor: duplicate language %q", l.Name)
		}
		t.byName[key] = l
		for _, ext := range l.Extensions {
			ext = strings.ToLower(ext)
			if _, taken := t.byExt[ext]; !taken {
				t.byExt[ext] = l.Name
			}
		}
	}
	return t, nil
}

// Languages returns the built-in table in menu order.
func Languages() []Language {
	out := make([]Language, len(languages.list))
	copy(out, languages.list)
	return out
}

// LookupLanguage finds a language by name, ignoring case.
func LookupLanguage(name string) (Language, bool) {
	return languages.Lookup(name)
}

// LanguageForFile infers a language from a file name's extension and
// returns "" when the extension is not recognized. A bare "Dockerfile"
// matches too.
func LanguageForFile(fileName string) string {
	return languages.ForFile(fileName)
}

// Extension is the file extension used when downloading code in language.
func Extension(language string) string {
	return languages.Extension(language)
}

func (t *LanguageTable) Lookup(name string) (Language, bool) {
	l, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

func (t *LanguageTable) ForFile(fileName string) string {
	base := strings.ToLower(path.Base(strings.TrimSpace(strings.ReplaceAll(fileName, `\`, "/"))))
	if base == "" || base == "." || base == "/" {
		return ""
	}
	ext := strings.TrimPrefix(path.Ext(base), ".")
	if ext == "" {
		ext = base
	}
	return t.byExt[ext]
}

func (t *LanguageTable) Extension(language string) string {
	if l, ok := t.Lookup(language); ok && len(l.Extensions) > 0 {
		return l.Extensions[0]
	}
	ext := strings.ToLower(strings.TrimSpace(language))
	if ext == "" {
		return "txt"
	}
	return ext
}
