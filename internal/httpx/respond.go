// Package httpx writes the JSON envelope shared by every endpoint.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/mindengage-exams/internal/apperrors"
)

// Envelope wraps every JSON response body. On failure Error holds the
// human-readable message; Code and Details sit beside it.
type Envelope struct {
	Success bool              `json:"success"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// JSON writes data inside a success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Success: true, Data: data})
}

// Error maps err to its status and writes an error envelope. Internal errors
// are logged with the request and answered with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	write(w, status, Envelope{
		Error:   apperrors.PublicMessage(err),
		Code:    codeFor(status),
		Details: apperrors.Details(err),
	})
}

// Fail writes an error envelope with an explicit status and message.
func Fail(w http.ResponseWriter, status int, msg string) {
	write(w, status, Envelope{Error: msg, Code: codeFor(status)})
}

// Decode reads a JSON body of at most 4 MiB into v.
func Decode(r *http.Request, v any) error {
	return decode(r, v, false)
}

// DecodeOptional is Decode for endpoints whose body may be empty.
func DecodeOptional(r *http.Request, v any) error {
	return decode(r, v, true)
}

func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4<<20)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.NewValidation("request body too large")
	}
	return apperrors.NewValidation("invalid json: " + err.Error())
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "internal"
	}
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
