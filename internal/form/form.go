// Package form drives the create and edit snippet forms: client-side
// validation, file-name based language inference and submission through
// the JSON API.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sakif/codeshare/internal/client"
	"github.com/sakif/codeshare/internal/editor"
	"github.com/sakif/codeshare/internal/model"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

var (
	// ErrAbort means an edit form could not be opened. The error also
	// wraps the cause; see AbortError for where to send the user.
	ErrAbort = errors.New("form: cannot edit snippet")
	// ErrBusy is returned by Submit while a submission is in flight.
	ErrBusy = errors.New("form: submit already in progress")
)

// AbortError carries the safe location to return to after ErrAbort.
type AbortError struct {
	Fallback string
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%v: %v", ErrAbort, e.Err)
}

func (e *AbortError) Unwrap() []error { return []error{ErrAbort, e.Err} }

type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// API is the part of client.Client the form needs.
type API interface {
	Get(ctx context.Context, id string) (*model.Snippet, error)
	Create(ctx context.Context, p client.SnippetPayload) (*model.Snippet, error)
	Update(ctx context.Context, id string, p client.SnippetPayload) (*model.Snippet, error)
}

var _ API = (*client.Client)(nil)

// Values is the editable form state.
type Values struct {
	Title       string
	Description string
	Code        string
	Language    string
	FileName    string
	IsPublic    bool
	Tags        []string
}

// FieldErrors maps a field name to its message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + fe[k]
	}
	return "form: invalid " + strings.Join(parts, "; ")
}

// Validate returns nil when v can be submitted.
func (v Values) Validate() FieldErrors {
	errs := FieldErrors{}
	switch title := strings.TrimSpace(v.Title); {
	case title == "":
		errs["title"] = "Title is required"
	case utf8.RuneCountInString(title) > MaxTitleLength:
		errs["title"] = fmt.Sprintf("Title must be at most %d characters", MaxTitleLength)
	}
	if utf8.RuneCountInString(v.Description) > MaxDescriptionLength {
		errs["description"] = fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength)
	}
	if strings.TrimSpace(v.FileName) == "" {
		errs["fileName"] = "File name is required"
	}
	if strings.TrimSpace(v.Language) == "" {
		errs["language"] = "Language is required"
	}
	if strings.TrimSpace(v.Code) == "" {
		errs["code"] = "Code is required"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (v Values) payload() client.SnippetPayload {
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	return client.SnippetPayload{
		Title:       v.Title,
		Description: v.Description,
		Code:        v.Code,
		Language:    v.Language,
		FileName:    v.FileName,
		IsPublic:    v.IsPublic,
		Tags:        tags,
	}
}

// Flow is one open form.
type Flow struct {
	api  API
	mode Mode
	id   string

	// OnSuccess receives the server's copy after each successful submit.
	OnSuccess func(*model.Snippet)

	mu          sync.Mutex
	values      Values
	fieldErrors FieldErrors
	err         string
	submitting  bool
}

// NewCreateFlow opens an empty create form.
func NewCreateFlow(api API) *Flow {
	return &Flow{
		api:  api,
		mode: ModeCreate,
		values: Values{
			Language: editor.DefaultLanguage,
			IsPublic: true,
			Tags:     []string{},
		},
	}
}

// NewEditFlow loads snippet id and opens an edit form over it. Any load
// failure aborts with an *AbortError pointing at fallback; the caller never
// gets an empty form that would silently create a new snippet.
func NewEditFlow(ctx context.Context, api API, id, fallback string) (*Flow, error) {
	s, err := api.Get(ctx, id)
	if err != nil {
		return nil, &AbortError{Fallback: fallback, Err: err}
	}

	tags := make([]string, len(s.Tags))
	for i, t := range s.Tags {
		tags[i] = t.Name
	}
	return &Flow{
		api:  api,
		mode: ModeEdit,
		id:   s.ID,
		values: Values{
			Title:       s.Title,
			Description: s.DescriptionText(),
			Code:        s.Code,
			Language:    s.Language,
			FileName:    s.FileNameText(),
			IsPublic:    s.IsPublic,
			Tags:        tags,
		},
	}, nil
}

func (f *Flow) Mode() Mode { return f.mode }

// ID is the snippet being edited, "" in create mode.
func (f *Flow) ID() string { return f.id }

func (f *Flow) Values() Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.values
	v.Tags = append([]string{}, f.values.Tags...)
	return v
}

func (f *Flow) set(fn func(v *Values)) {
	f.mu.Lock()
	fn(&f.values)
	f.mu.Unlock()
}

func (f *Flow) SetTitle(s string)       { f.set(func(v *Values) { v.Title = s }) }
func (f *Flow) SetDescription(s string) { f.set(func(v *Values) { v.Description = s }) }
func (f *Flow) SetCode(s string)        { f.set(func(v *Values) { v.Code = s }) }
func (f *Flow) SetPublic(b bool)        { f.set(func(v *Values) { v.IsPublic = b }) }
func (f *Flow) SetLanguage(s string)    { f.set(func(v *Values) { v.Language = s }) }

func (f *Flow) SetTags(tags []string) {
	f.set(func(v *Values) { v.Tags = append([]string{}, tags...) })
}

// SetFileName updates the file name and, when it changed to a known
// extension, the language. A later SetLanguage overrides the inference.
func (f *Flow) SetFileName(name string) {
	f.set(func(v *Values) {
		if name == v.FileName {
			return
		}
		v.FileName = name
		if lang := editor.LanguageForFile(name); lang != "" {
			v.Language = lang
		}
	})
}

// FieldErrors are the messages from the last validation.
func (f *Flow) FieldErrors() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fieldErrors
}

// SubmitError is the server message from the last failed submit, "" otherwise.
func (f *Flow) SubmitError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Flow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Submit validates and sends the whole form. Invalid values return
// FieldErrors without calling the API. A failed call keeps every value and
// records the server message; Submit may simply be called again.
func (f *Flow) Submit(ctx context.Context) (*model.Snippet, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	if errs := f.values.Validate(); errs != nil {
		f.fieldErrors = errs
		f.mu.Unlock()
		return nil, errs
	}
	f.fieldErrors = nil
	f.err = ""
	f.submitting = true
	payload := f.values.payload()
	f.mu.Unlock()

	var (
		s   *model.Snippet
		err error
	)
	if f.mode == ModeEdit {
		s, err = f.api.Update(ctx, f.id, payload)
	} else {
		s, err = f.api.Create(ctx, payload)
	}

	f.mu.Lock()
	f.submitting = false
	if err != nil {
		f.err = submitMessage(err, f.mode)
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	if f.OnSuccess != nil {
		f.OnSuccess(s)
	}
	return s, nil
}

func submitMessage(err error, mode Mode) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fmt.Sprintf("Failed to %s snippet", mode)
}
