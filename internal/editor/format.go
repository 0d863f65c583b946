package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/format"
	"log/slog"
	"strings"

	"github.com/sakif/codeshare/internal/executor"
)

// FormatErrorKind separates bad input from formatter trouble.
type FormatErrorKind string

const (
	KindSyntax      FormatErrorKind = "syntax"
	KindUnsupported FormatErrorKind = "unsupported"
	KindFailed      FormatErrorKind = "failed"
)

// FormatError is returned by every formatter in this package.
type FormatError struct {
	Kind     FormatErrorKind
	Language string
	Err      error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("format %s: %s", e.Language, e.Kind)
	}
	return fmt.Sprintf("format %s: %s: %v", e.Language, e.Kind, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Message is the short text shown to the user.
func (e *FormatError) Message() string {
	switch e.Kind {
	case KindSyntax:
		return "Syntax error in code. Fix it and try formatting again."
	case KindUnsupported:
		return fmt.Sprintf("Formatting is not supported for %s.", e.Language)
	default:
		return "Formatting failed. Your code was left unchanged."
	}
}

// Formatter reformats source for one parser.
type Formatter interface {
	Format(ctx context.Context, code string) (string, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(ctx context.Context, code string) (string, error)

func (f FormatterFunc) Format(ctx context.Context, code string) (string, error) {
	return f(ctx, code)
}

// CodeFormatter formats code given its declared language.
type CodeFormatter interface {
	Format(ctx context.Context, code, language string) (string, error)
}

// Registry selects a Formatter by the language's parser.
type Registry struct {
	byParser map[string]Formatter
	logger   *slog.Logger
}

var _ CodeFormatter = (*Registry)(nil)

// prettierParsers are handled by the container formatter when one is
// configured.
var prettierParsers = []string{"babel", "typescript", "css", "scss", "less", "html", "markdown", "yaml", "json"}

// NewRegistry registers the in-process formatters (gofmt, json) and, when
// exec is non-nil, Prettier for the web languages. Prettier takes over json
// too; the in-process formatter remains its fallback.
func NewRegistry(exec executor.Executor, logger *slog.Logger) *Registry {
	r := &Registry{byParser: make(map[string]Formatter), logger: logger}
	r.Register("gofmt", FormatterFunc(formatGo))
	r.Register("json", FormatterFunc(formatJSON))
	if exec != nil {
		for _, p := range prettierParsers {
			r.Register(p, &Prettier{exec: exec, parser: p})
		}
	}
	return r
}

// Register installs f for parser, replacing any previous one.
func (r *Registry) Register(parser string, f Formatter) {
	r.byParser[parser] = f
}

// Supports reports whether language has a registered formatter.
func (r *Registry) Supports(language string) bool {
	l, ok := LookupLanguage(language)
	if !ok || l.Parser == "" {
		return false
	}
	_, ok = r.byParser[l.Parser]
	return ok
}

// Format reformats code. Blank code is returned as is. Failures are always
// *FormatError; JSON gets a second chance through the in-process formatter.
func (r *Registry) Format(ctx context.Context, code, language string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return code, nil
	}

	l, ok := LookupLanguage(language)
	if !ok || l.Parser == "" {
		return "", &FormatError{Kind: KindUnsupported, Language: language}
	}
	f, ok := r.byParser[l.Parser]
	if !ok {
		return "", &FormatError{Kind: KindUnsupported, Language: l.Name}
	}

	out, err := f.Format(ctx, code)
	if err == nil {
		return out, nil
	}

	if l.Parser == "json" {
		if out, jerr := formatJSON(ctx, code); jerr == nil {
			r.logger.Debug("json formatter fallback used", slog.String("error", err.Error()))
			return out, nil
		}
	}
	return "", asFormatError(err, l.Name)
}

func asFormatError(err error, language string) *FormatError {
	var fe *FormatError
	if errors.As(err, &fe) {
		if fe.Language == "" {
			fe.Language = language
		}
		return fe
	}
	return &FormatError{Kind: KindFailed, Language: language, Err: err}
}

// formatGo runs gofmt. Partial sources (a bare function or statement list)
// are accepted the way gofmt accepts them.
func formatGo(_ context.Context, code string) (string, error) {
	out, err := format.Source([]byte(code))
	if err != nil {
		return "", &FormatError{Kind: KindSyntax, Language: "Go", Err: err}
	}
	return string(out), nil
}

// formatJSON re-indents with two spaces, keeping key order.
func formatJSON(_ context.Context, code string) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(code)), "", "  "); err != nil {
		return "", &FormatError{Kind: KindSyntax, Language: "JSON", Err: err}
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// Prettier formats through the prettier CLI run by an executor.
type Prettier struct {
	exec   executor.Executor
	parser string
}

var _ Formatter = (*Prettier)(nil)

func (p *Prettier) Format(ctx context.Context, code string) (string, error) {
	res, err := p.exec.Execute(ctx, executor.Request{
		Cmd:   []string{"prettier", "--parser", p.parser},
		Stdin: code,
	})
	if err != nil {
		return "", &FormatError{Kind: KindFailed, Err: fmt.Errorf("prettier: %w", err)}
	}

	switch {
	case res.ExitCode == 0:
		return res.Stdout, nil
	case res.TimedOut():
		return "", &FormatError{Kind: KindFailed, Err: errors.New("prettier: timed out")}
	case strings.Contains(res.Stderr, "SyntaxError"):
		return "", &FormatError{Kind: KindSyntax, Err: errors.New(firstLine(res.Stderr))}
	default:
		return "", &FormatError{Kind: KindFailed, Err: fmt.Errorf("prettier exited %d: %s", res.ExitCode, firstLine(res.Stderr))}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
