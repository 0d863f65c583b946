package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/codeshare/internal/apperror"
	"github.com/sakif/codeshare/internal/editor"
	"github.com/sakif/codeshare/internal/service"
)

// EditorHandler exposes the editor pipeline: the language and theme
// tables, read-only highlighting, and formatting.
type EditorHandler struct {
	formatter   editor.CodeFormatter
	highlighter editor.Highlighter
	responder
}

func NewEditorHandler(formatter editor.CodeFormatter, highlighter editor.Highlighter, logger *slog.Logger, dev bool) *EditorHandler {
	return &EditorHandler{
		formatter:   formatter,
		highlighter: highlighter,
		responder:   responder{logger: logger, dev: dev},
	}
}

type highlightRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Theme    string `json:"theme"`
}

type formatRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type formatResponse struct {
	Code string `json:"code"`
}

type formatErrorResponse struct {
	Error string                 `json:"error"`
	Kind  editor.FormatErrorKind `json:"kind"`
}

type themesResponse struct {
	Default string         `json:"default"`
	Themes  []editor.Theme `json:"themes"`
}

// HandleLanguages lists the selectable languages with their extensions.
//
// HTTP: GET /editor/languages
func (h *EditorHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, editor.Languages())
}

// HandleThemes lists the highlight themes in menu order.
//
// HTTP: GET /editor/themes
func (h *EditorHandler) HandleThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, themesResponse{Default: editor.DefaultTheme, Themes: editor.Themes()})
}

// HandleHighlight renders code as HTML. The highlighter never fails; an
// engine error comes back as escaped plain text with "plain": true.
//
// HTTP: POST /editor/highlight {code, language, theme}
func (h *EditorHandler) HandleHighlight(w http.ResponseWriter, r *http.Request) {
	var in highlightRequest
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := checkCodeSize(in.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.highlighter.Highlight(in.Code, in.Language, in.Theme))
}

// HandleFormat reformats code for its language.
//
// HTTP: POST /editor/format {code, language}
//
//	200 {"code": "..."}
//	422 {"error": "...", "kind": "syntax" | "unsupported" | "failed"}
func (h *EditorHandler) HandleFormat(w http.ResponseWriter, r *http.Request) {
	var in formatRequest
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := checkCodeSize(in.Code); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.formatter.Format(r.Context(), in.Code, in.Language)
	if err != nil {
		var fe *editor.FormatError
		if errors.As(err, &fe) {
			h.logger.Debug("format rejected",
				slog.String("language", in.Language),
				slog.String("kind", string(fe.Kind)),
			)
			writeJSON(w, http.StatusUnprocessableEntity, formatErrorResponse{Error: fe.Message(), Kind: fe.Kind})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, formatResponse{Code: out})
}

func checkCodeSize(code string) error {
	if len(code) > service.MaxCodeLength {
		return apperror.ValidationFailed("code", fmt.Sprintf("code must be %d characters or less", service.MaxCodeLength))
	}
	return nil
}
