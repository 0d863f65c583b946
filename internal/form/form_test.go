package form

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codeshare/internal/client"
	"github.com/sakif/codeshare/internal/model"
)

type fakeAPI struct {
	mu       sync.Mutex
	snippet  *model.Snippet
	getErr   error
	writeErr error
	payloads []client.SnippetPayload
	methods  []string
	block    chan struct{}
	entered  chan struct{}
}

func (a *fakeAPI) Get(_ context.Context, id string) (*model.Snippet, error) {
	if a.getErr != nil {
		return nil, a.getErr
	}
	return a.snippet, nil
}

func (a *fakeAPI) write(method string, p client.SnippetPayload) (*model.Snippet, error) {
	if a.entered != nil {
		close(a.entered)
		<-a.block
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.methods = append(a.methods, method)
	a.payloads = append(a.payloads, p)
	if a.writeErr != nil {
		return nil, a.writeErr
	}
	return &model.Snippet{ID: "srv", Title: p.Title, Slug: "srv-slug", Complexity: "O(n)"}, nil
}

func (a *fakeAPI) Create(_ context.Context, p client.SnippetPayload) (*model.Snippet, error) {
	return a.write("create", p)
}

func (a *fakeAPI) Update(_ context.Context, id string, p client.SnippetPayload) (*model.Snippet, error) {
	return a.write("update:"+id, p)
}

func fillValid(f *Flow) {
	f.SetTitle("Quick sort")
	f.SetFileName("sort.py")
	f.SetCode("def qs(xs): ...")
}

func TestValidate(t *testing.T) {
	valid := Values{Title: "t", FileName: "a.go", Language: "Go", Code: "x"}
	assert.Nil(t, valid.Validate())

	tests := []struct {
		name  string
		edit  func(v *Values)
		field string
	}{
		{"blank title", func(v *Values) { v.Title = "   " }, "title"},
		{"long title", func(v *Values) { v.Title = strings.Repeat("é", MaxTitleLength+1) }, "title"},
		{"long description", func(v *Values) { v.Description = strings.Repeat("x", MaxDescriptionLength+1) }, "description"},
		{"no file name", func(v *Values) { v.FileName = "" }, "fileName"},
		{"no language", func(v *Values) { v.Language = "" }, "language"},
		{"empty code", func(v *Values) { v.Code = "\n\t" }, "code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid
			tt.edit(&v)
			errs := v.Validate()
			require.NotNil(t, errs)
			assert.Contains(t, errs, tt.field)
			assert.Len(t, errs, 1)
		})
	}

	v := valid
	v.Title = strings.Repeat("x", MaxTitleLength)
	v.Description = strings.Repeat("x", MaxDescriptionLength)
	assert.Nil(t, v.Validate())
}

func TestCreateFlow_Defaults(t *testing.T) {
	f := NewCreateFlow(&fakeAPI{})
	v := f.Values()

	assert.Equal(t, ModeCreate, f.Mode())
	assert.Equal(t, "Text", v.Language)
	assert.True(t, v.IsPublic)
	assert.Equal(t, []string{}, v.Tags)
}

func TestFlow_ValidationNeverReachesAPI(t *testing.T) {
	api := &fakeAPI{}
	f := NewCreateFlow(api)

	_, err := f.Submit(context.Background())
	var fe FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, f.FieldErrors(), "title")
	assert.Empty(t, api.methods)
}

func TestFlow_FileNameInference(t *testing.T) {
	f := NewCreateFlow(&fakeAPI{})

	f.SetFileName("main.go")
	assert.Equal(t, "Go", f.Values().Language)

	f.SetLanguage("Python")
	f.SetFileName("main.go")
	assert.Equal(t, "Python", f.Values().Language)

	f.SetFileName("notes")
	assert.Equal(t, "Python", f.Values().Language)

	f.SetFileName("index.html")
	assert.Equal(t, "HTML", f.Values().Language)
}

func TestFlow_CreateSubmit(t *testing.T) {
	api := &fakeAPI{}
	f := NewCreateFlow(api)
	fillValid(f)

	var notified *model.Snippet
	f.OnSuccess = func(s *model.Snippet) { notified = s }

	s, err := f.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"create"}, api.methods)
	p := api.payloads[0]
	assert.Equal(t, "Python", p.Language)
	assert.Equal(t, []string{}, p.Tags)
	assert.True(t, p.IsPublic)
	require.NotNil(t, notified)
	assert.Same(t, s, notified)
	assert.Equal(t, "O(n)", s.Complexity)
	assert.Empty(t, f.SubmitError())
}

func TestFlow_FailureKeepsValuesAndRetries(t *testing.T) {
	api := &fakeAPI{writeErr: &client.APIError{StatusCode: 400, Message: "Title is required"}}
	f := NewCreateFlow(api)
	fillValid(f)
	f.SetTags([]string{"algo"})

	_, err := f.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Title is required", f.SubmitError())
	assert.Equal(t, "Quick sort", f.Values().Title)
	assert.Equal(t, []string{"algo"}, f.Values().Tags)
	assert.False(t, f.Submitting())

	api.writeErr = nil
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.SubmitError())
	assert.Len(t, api.payloads, 2)
	assert.Equal(t, api.payloads[0], api.payloads[1])
}

func TestFlow_NetworkFailureMessage(t *testing.T) {
	api := &fakeAPI{writeErr: errors.New("dial tcp: refused")}
	f := NewCreateFlow(api)
	fillValid(f)

	_, err := f.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Failed to create snippet", f.SubmitError())
}

func TestFlow_SubmitWhileInFlight(t *testing.T) {
	api := &fakeAPI{entered: make(chan struct{}), block: make(chan struct{})}
	f := NewCreateFlow(api)
	fillValid(f)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		done <- err
	}()
	<-api.entered

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(api.block)
	require.NoError(t, <-done)
	assert.Len(t, api.methods, 1)
}

func TestEditFlow_Prefills(t *testing.T) {
	desc, file := "d", "a.go"
	api := &fakeAPI{snippet: &model.Snippet{
		ID: "s1", Title: "T", Description: &desc, Code: "x", Language: "Go",
		FileName: &file, IsPublic: false,
		Tags: []model.Tag{{ID: "1", Name: "Algo", Slug: "algo"}},
	}}

	f, err := NewEditFlow(context.Background(), api, "s1", "/")
	require.NoError(t, err)
	assert.Equal(t, ModeEdit, f.Mode())
	assert.Equal(t, "s1", f.ID())
	assert.Equal(t, Values{Title: "T", Description: "d", Code: "x", Language: "Go", FileName: "a.go", Tags: []string{"Algo"}}, f.Values())

	f.SetTitle("T2")
	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"update:s1"}, api.methods)
	assert.Equal(t, []string{"Algo"}, api.payloads[0].Tags)
	assert.False(t, api.payloads[0].IsPublic)
}

func TestEditFlow_AbortsOnLoadFailure(t *testing.T) {
	for _, cause := range []error{
		&client.APIError{StatusCode: 404, Message: "Not Found"},
		&client.APIError{StatusCode: 403, Message: "Forbidden"},
		errors.New("network down"),
	} {
		f, err := NewEditFlow(context.Background(), &fakeAPI{getErr: cause}, "s1", "/s/s1")
		assert.Nil(t, f)
		assert.ErrorIs(t, err, ErrAbort)
		assert.ErrorIs(t, err, cause)

		var abort *AbortError
		require.ErrorAs(t, err, &abort)
		assert.Equal(t, "/s/s1", abort.Fallback)
	}
}
