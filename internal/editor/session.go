package editor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// MessageTTL is how long a format failure message stays visible.
const MessageTTL = 5 * time.Second

// FormatShortcut is the reserved key chord that triggers Format.
const FormatShortcut = "Shift-Alt-F"

var ErrFormatInFlight = errors.New("editor: format already in progress")

type Presentation string

const (
	Inline     Presentation = "inline"
	Fullscreen Presentation = "fullscreen"
)

type View string

const (
	ViewEdit    View = "edit"
	ViewPreview View = "preview"
)

// Cursor is a caret position in the buffer, zero-based.
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// State is a snapshot of a Session.
type State struct {
	Code         string       `json:"code"`
	Language     string       `json:"language"`
	FileName     string       `json:"fileName"`
	Theme        string       `json:"theme"`
	Presentation Presentation `json:"presentation"`
	View         View         `json:"view"`
	ScrollLocked bool         `json:"scrollLocked"`
	Cursor       Cursor       `json:"cursor"`
	Formatting   bool         `json:"formatting"`
	Message      string       `json:"message,omitempty"`
}

// Session is the state of one open editor. It is safe for concurrent use;
// Format releases the lock while the formatter runs so edits keep flowing.
type Session struct {
	mu sync.Mutex

	code         string
	language     string
	fileName     string
	theme        string
	presentation Presentation
	view         View
	scrollLocked bool
	cursor       Cursor

	formatting bool
	message    string
	messageExp time.Time

	formatter   CodeFormatter
	highlighter Highlighter
	now         func() time.Time
}

// NewSession opens an inline edit session over code.
func NewSession(code, language string, formatter CodeFormatter, highlighter Highlighter) *Session {
	if language == "" {
		language = DefaultLanguage
	}
	return &Session{
		code:         code,
		language:     language,
		theme:        DefaultTheme,
		presentation: Inline,
		view:         ViewEdit,
		formatter:    formatter,
		highlighter:  highlighter,
		now:          time.Now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Code:         s.code,
		Language:     s.language,
		FileName:     s.fileName,
		Theme:        s.theme,
		Presentation: s.presentation,
		View:         s.view,
		ScrollLocked: s.scrollLocked,
		Cursor:       s.cursor,
		Formatting:   s.formatting,
		Message:      s.messageLocked(),
	}
}

func (s *Session) SetCode(code string) {
	s.mu.Lock()
	s.code = code
	s.mu.Unlock()
}

func (s *Session) SetCursor(c Cursor) {
	s.mu.Lock()
	s.cursor = c
	s.mu.Unlock()
}

// SetFileName records the file name. Only an actual change runs inference,
// and inference only writes when the extension is known; otherwise the
// current language stays. Inference and SetLanguage are plain writes to the
// same field, so whichever happened last wins.
func (s *Session) SetFileName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == s.fileName {
		return
	}
	s.fileName = name
	if lang := LanguageForFile(name); lang != "" {
		s.language = lang
	}
}

// SetLanguage is an explicit user choice of language.
func (s *Session) SetLanguage(language string) {
	s.mu.Lock()
	s.language = language
	s.mu.Unlock()
}

func (s *Session) SetTheme(theme string) {
	s.mu.Lock()
	s.theme = ResolveTheme(theme)
	s.mu.Unlock()
}

// ToggleFullscreen flips inline and fullscreen. Background scrolling is
// locked exactly while fullscreen; buffer and cursor are untouched.
func (s *Session) ToggleFullscreen() Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presentation == Fullscreen {
		s.presentation = Inline
	} else {
		s.presentation = Fullscreen
	}
	s.scrollLocked = s.presentation == Fullscreen
	return s.presentation
}

func (s *Session) TogglePreview() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == ViewPreview {
		s.view = ViewEdit
	} else {
		s.view = ViewPreview
	}
	return s.view
}

// Preview highlights the current buffer.
func (s *Session) Preview() Highlighted {
	s.mu.Lock()
	code, lang, theme := s.code, s.language, s.theme
	s.mu.Unlock()
	return s.highlighter.Highlight(code, lang, theme)
}

// Format runs the formatter over the buffer. It does nothing for a blank
// buffer and returns ErrFormatInFlight while a previous call is running.
// On failure the buffer is kept and Message reports the error for
// MessageTTL. If the buffer was edited while formatting, the result is
// dropped rather than overwriting the newer text.
func (s *Session) Format(ctx context.Context) error {
	s.mu.Lock()
	if strings.TrimSpace(s.code) == "" {
		s.mu.Unlock()
		return nil
	}
	if s.formatting {
		s.mu.Unlock()
		return ErrFormatInFlight
	}
	s.formatting = true
	code, lang := s.code, s.language
	s.mu.Unlock()

	out, err := s.formatter.Format(ctx, code, lang)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.formatting = false
	if err != nil {
		s.message = formatMessage(err)
		s.messageExp = s.now().Add(MessageTTL)
		return err
	}
	if s.code == code {
		s.code = out
	}
	s.message = ""
	return nil
}

func formatMessage(err error) string {
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Message()
	}
	return (&FormatError{Kind: KindFailed}).Message()
}

// Message returns the current transient message, or "" once it expired.
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageLocked()
}

func (s *Session) messageLocked() string {
	if s.message == "" || !s.now().Before(s.messageExp) {
		return ""
	}
	return s.message
}

// KeyPress handles a key chord such as "Shift-Alt-F". It reports whether
// the chord was handled; modifier order and case do not matter.
func (s *Session) KeyPress(ctx context.Context, chord string) (bool, error) {
	if !sameChord(chord, FormatShortcut) {
		return false, nil
	}
	return true, s.Format(ctx)
}

func sameChord(a, b string) bool {
	ka, ma := parseChord(a)
	kb, mb := parseChord(b)
	return ka != "" && ka == kb && ma == mb
}

type modifiers struct{ shift, alt, ctrl, meta bool }

func parseChord(chord string) (string, modifiers) {
	var m modifiers
	parts := strings.Split(strings.ToLower(strings.TrimSpace(chord)), "-")
	key := parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "shift":
			m.shift = true
		case "alt", "option":
			m.alt = true
		case "ctrl", "control":
			m.ctrl = true
		case "meta", "cmd", "mod":
			m.meta = true
		default:
			return "", m
		}
	}
	return key, m
}
