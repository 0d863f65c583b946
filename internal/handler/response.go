package handler

// RESPONSE HELPERS:
// Every JSON handler answers through writeJSON and every failure through
// responder.writeError, so the API has one error shape:
//
//	{"error": "snippet not found with id abc123", "statusCode": 404}
//
// writeError is the only place a domain error becomes an HTTP status.
// Services return apperror values and never see a status code.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/codeshare/internal/apperror"
)

// maxBodyBytes bounds JSON request bodies. Snippet code is capped at
// 100k characters, so 1MB leaves room for the other fields and escaping.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

// writeJSON sends data with the given status code.
//
// Headers must be set before WriteHeader; once the body starts, header
// changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps err onto an HTTP status and a client-safe message.
//
// errors.Is walks the whole wrap chain, so a service error like
//
//	fmt.Errorf("service: getting snippet: %w", apperror.NotFound(...))
//
// still maps to 404 with the AppError's own message.
func statusFor(err error, dev bool) (int, string) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			return http.StatusBadRequest, appErr.Message
		case errors.Is(err, apperror.ErrUnauthorized):
			return http.StatusUnauthorized, appErr.Message
		case errors.Is(err, apperror.ErrForbidden):
			return http.StatusForbidden, appErr.Message
		case errors.Is(err, apperror.ErrNotFound):
			return http.StatusNotFound, appErr.Message
		case errors.Is(err, apperror.ErrConflict):
			return http.StatusConflict, appErr.Message
		}
	}

	// Raw messages can carry SQL or file paths; only development sees them.
	if dev {
		return http.StatusInternalServerError, err.Error()
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// responder carries what every handler needs to report failures.
type responder struct {
	logger *slog.Logger
	dev    bool
}

// writeError translates err and writes it. 5xx responses are logged with
// the full error; expected 4xx outcomes are not.
func (rs responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err, rs.dev)
	if status >= http.StatusInternalServerError {
		rs.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, StatusCode: status})
}

// writeStatus sends an error body for a status decided by the handler itself.
func writeStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, StatusCode: status})
}

// decodeJSON reads a single JSON value from the request body into dst.
// Malformed bodies become a validation error so writeError reports 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is empty")
		default:
			return apperror.ValidationFailed("", "Invalid JSON body")
		}
	}
	return nil
}

// RateLimited is the httprate limit handler; it keeps throttled responses
// in the API's error shape.
func RateLimited(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusTooManyRequests, "Too many requests, slow down")
}
