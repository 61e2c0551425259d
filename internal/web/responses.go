// Package web holds the HTTP plumbing shared by every handler package:
// the error taxonomy and its status mapping, JSON response helpers, and
// request-scoped logging.
package web

import (
	"encoding/json"
	"net/http"
)

// Code classifies a failure the way clients see it.
type Code string

const (
	CodeUnauthenticated   Code = "unauthenticated"
	CodeInvalidArgument   Code = "invalid_argument"
	CodeNotFound          Code = "not_found"
	CodePermissionDenied  Code = "permission_denied"
	CodeResourceExhausted Code = "resource_exhausted"
	CodeInternal          Code = "internal"
)

// Status maps a code to its HTTP status. Unknown codes are 500.
func (c Code) Status() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes {"code","message"} with the status for code.
// message is shown to the client as-is, so it must never carry internal detail.
func Error(w http.ResponseWriter, code Code, message string) {
	JSON(w, code.Status(), ErrorBody{Code: code, Message: message})
}

// InternalServerError logs err and returns a generic 500.
// Never exposes internal error details to the client.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	LogError(r, "internal server error", "error", err)
	Error(w, CodeInternal, "internal server error")
}

// BadRequest returns a 400 with the given message.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, CodeInvalidArgument, message)
}

// Unauthorized returns a 401. Keep message generic to prevent user enumeration.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, CodeUnauthenticated, message)
}

// Forbidden returns a 403 with the given message.
func Forbidden(w http.ResponseWriter, message string) {
	Error(w, CodePermissionDenied, message)
}

// NotFound returns a 404 with the given message.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, CodeNotFound, message)
}

// TooManyRequests returns a 429 with the given message.
func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, CodeResourceExhausted, message)
}

// OK returns a 200 {"message": ...}.
func OK(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, struct {
		Message string `json:"message"`
	}{message})
}

// DecodeJSON reads a JSON request body into dst, rejecting unknown fields
// and bodies over maxBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
