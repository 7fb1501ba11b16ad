package routes

import (
	"errors"
	"net/http"

	"logi-track/internal/access"
	"logi-track/internal/blobstore"
	"logi-track/internal/email"
	"logi-track/internal/importer"
	"logi-track/internal/jwt"
	"logi-track/internal/storage"
	"logi-track/internal/tms"
)

// HTTPError represents an error with an associated HTTP status code and user message
type HTTPError struct {
	Err        error  // The underlying error
	StatusCode int    // HTTP status code
	Message    string // User-friendly message
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, err error, message string) *HTTPError {
	return &HTTPError{
		Err:        err,
		StatusCode: statusCode,
		Message:    message,
	}
}

// Routes-specific errors (that don't conflict with other packages)
var (
	// Authentication errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Validation errors
	ErrInvalidRequest   = errors.New("invalid request")
	ErrMissingParameter = errors.New("missing required parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrFileTooLarge     = errors.New("file is too large")

	// Internal errors
	ErrInternalServer     = errors.New("internal server error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// errorStatusMap maps errors to HTTP status codes
var errorStatusMap = map[error]int{
	// 400 Bad Request
	ErrInvalidRequest:            http.StatusBadRequest,
	ErrMissingParameter:          http.StatusBadRequest,
	ErrInvalidParameter:          http.StatusBadRequest,
	ErrFileTooLarge:              http.StatusBadRequest,
	access.ErrMissingEmail:       http.StatusBadRequest,
	access.ErrInvalidEmail:       http.StatusBadRequest,
	access.ErrWeakPassword:       http.StatusBadRequest,
	storage.ErrInvalidTransition: http.StatusBadRequest,
	storage.ErrDuplicate:         http.StatusBadRequest,
	importer.ErrMissingColumns:   http.StatusBadRequest,
	importer.ErrNoDataRows:       http.StatusBadRequest,
	importer.ErrNoValidRows:      http.StatusBadRequest,
	tms.ErrInvalidPayload:        http.StatusBadRequest,
	tms.ErrUnknownEvent:          http.StatusBadRequest,
	blobstore.ErrInvalidKey:      http.StatusBadRequest,

	// 401 Unauthorized
	ErrUnauthorized:            http.StatusUnauthorized,
	ErrInvalidCredentials:      http.StatusUnauthorized,
	access.ErrUnauthenticated:  http.StatusUnauthorized,
	access.ErrPasswordMismatch: http.StatusUnauthorized,
	jwt.ErrNonValidToken:       http.StatusUnauthorized,
	jwt.ErrInvalidNonce:        http.StatusUnauthorized,
	tms.ErrInvalidSignature:    http.StatusUnauthorized,

	// 403 Forbidden
	access.ErrForbidden: http.StatusForbidden,

	// 404 Not Found
	access.ErrNotFound:      http.StatusNotFound,
	storage.ErrNotFound:     http.StatusNotFound,
	blobstore.ErrNotFound:   http.StatusNotFound,
	tms.ErrClientNotFound:   http.StatusNotFound,
	tms.ErrShipmentNotFound: http.StatusNotFound,

	// 500 Internal Server Error
	ErrInternalServer: http.StatusInternalServerError,

	// 503 Service Unavailable
	ErrServiceUnavailable:       http.StatusServiceUnavailable,
	email.ErrNotConfigured:      http.StatusServiceUnavailable,
	tms.ErrNotConfigured:        http.StatusServiceUnavailable,
	tms.ErrWebhookNotConfigured: http.StatusServiceUnavailable,
}

// errorMessageMap maps errors to user-friendly messages
var errorMessageMap = map[error]string{
	ErrUnauthorized:            "Unauthorized",
	access.ErrUnauthenticated:  "Unauthorized",
	jwt.ErrNonValidToken:       "Invalid or expired token",
	jwt.ErrInvalidNonce:        "Invalid or reused token",
	ErrInvalidCredentials:      "Invalid email or password",
	access.ErrPasswordMismatch: "Invalid email or password",
	tms.ErrInvalidSignature:    "Unauthorized",

	access.ErrForbidden: "Forbidden",

	access.ErrNotFound:    "Not found",
	storage.ErrNotFound:   "Not found",
	blobstore.ErrNotFound: "File not found",

	storage.ErrDuplicate: "A record with the same key already exists",
	ErrInvalidRequest:    "Invalid request format",

	ErrServiceUnavailable: "Service is temporarily unavailable",
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	// Check if it's already an HTTPError
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	// Check direct match
	if status, ok := errorStatusMap[err]; ok {
		return status
	}

	// Check if error wraps a known error
	for knownErr, status := range errorStatusMap {
		if errors.Is(err, knownErr) {
			return status
		}
	}

	// Default to 500 Internal Server Error
	return http.StatusInternalServerError
}

// GetErrorMessage returns the message shown to the caller. Internal errors
// never leak their text.
func GetErrorMessage(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}

	if msg, ok := errorMessageMap[err]; ok {
		return msg
	}
	for knownErr, msg := range errorMessageMap {
		if errors.Is(err, knownErr) {
			return msg
		}
	}

	if GetErrorStatus(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
