// Package http provides the REST API server and its handlers.
//
// This file implements the builder used for every JSON response, plus the
// single place where service errors are mapped onto HTTP statuses.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body writes headers only.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// UnauthorizedError creates a 401 response with a Bearer challenge.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message).Header("WWW-Authenticate", `Bearer realm="fintrack"`)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error")
}

// respond writes v as JSON with status.
func respond(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

// badRequest marks request-shape problems found by the parser.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return badRequest{msg: msg} }

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrInvalidCategory,
	core.ErrInvalidDate,
	core.ErrInvalidType,
	core.ErrInvalidRecurrence,
	core.ErrEmptyLabel,
	core.ErrNoteTooLong,
	core.ErrEndBeforeStart,
	core.ErrInvalidStepUp,
	core.ErrStepUpBeforeStart,
	core.ErrInvalidDateRange,
	core.ErrEmptyName,
	core.ErrInvalidEmail,
	core.ErrWeakPassword,
	core.ErrTermsNotAccepted,
	core.ErrNegativeSalary,
	core.ErrNoExpenses,
	core.ErrInvalidMonth,
	services.ErrInvalidForecast,
}

// statusFor maps an error to the status and message the client sees.
// Anything unrecognised is a 500 with a generic message.
func statusFor(err error) (int, string) {
	var br badRequest
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, br.msg
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, core.ErrTooManyExpenses):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, auth.ErrInvalidToken.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, storage.ErrEmailTaken), errors.Is(err, storage.ErrDuplicateID):
		return http.StatusConflict, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request timed out"
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
	}
	if status == http.StatusUnauthorized {
		UnauthorizedError(msg).Write(w)
		return
	}
	ErrorResponse(status, msg).Write(w)
}
