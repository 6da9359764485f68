// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps ledger errors onto status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finledger/internal/core"
	"finledger/internal/jobs"
	"finledger/internal/log"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(ErrorBody{Error: code, Message: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// ValidationError creates a 422 response listing the failing fields.
func ValidationError(fields map[string]string) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusUnprocessableEntity).
		JSON(ErrorBody{Error: "validation_failed", Message: "request validation failed", Fields: fields})
}

// UnauthorizedError creates a 401 response for requests without a user identity.
func UnauthorizedError() *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "unauthorized", "missing "+UserIDHeader+" header")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal_error", "internal server error")
}

// errorFor maps a service error onto a response. Unknown errors become a
// generic 500 so driver details never leak to clients.
func errorFor(err error) *ResponseBuilder {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return ErrorResponse(http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, core.ErrInvalidTransactionType):
		return ErrorResponse(http.StatusBadRequest, "invalid_transaction_type", err.Error())
	case errors.Is(err, core.ErrInvalidReservePercentage):
		return ErrorResponse(http.StatusBadRequest, "invalid_reserve_percentage", err.Error())
	case errors.Is(err, core.ErrInvalidNeed):
		return ErrorResponse(http.StatusBadRequest, "invalid_need", err.Error())
	case errors.Is(err, core.ErrInvalidGoal):
		return ErrorResponse(http.StatusBadRequest, "invalid_goal", err.Error())
	case errors.Is(err, core.ErrInvalidSalaryDay):
		return ErrorResponse(http.StatusBadRequest, "invalid_salary_day", err.Error())
	case errors.Is(err, core.ErrUserNotFound):
		return ErrorResponse(http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, jobs.ErrRunInProgress):
		return ErrorResponse(http.StatusConflict, "job_in_progress", err.Error())
	default:
		return InternalServerError()
	}
}

// writeError logs err with the request logger and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorFor(err)
	logger := log.FromContext(r.Context())
	if resp.statusCode >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", "error", err)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", "error", err, "status_code", resp.statusCode)
	}
	resp.Write(w)
}
