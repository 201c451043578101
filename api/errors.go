package api

import (
	"fmt"
	"net/http"
)

// HTTPError represents an error with an HTTP status code.
type HTTPError struct {
	Code    int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// WithErr returns a copy of the error carrying the underlying cause.
func (e *HTTPError) WithErr(err error) *HTTPError {
	return &HTTPError{Code: e.Code, Message: e.Message, Err: err}
}

var (
	ErrInvalidRequestBodyData = &HTTPError{Code: http.StatusBadRequest, Message: "invalid request body data"}
	ErrInvalidCoordinate      = &HTTPError{Code: http.StatusBadRequest, Message: "invalid coordinate"}
	ErrMissingUserID          = &HTTPError{Code: http.StatusUnauthorized, Message: "missing user id"}
	ErrProfilesUnavailable    = &HTTPError{Code: http.StatusServiceUnavailable, Message: "profile store unavailable"}
	ErrInternalServerError    = &HTTPError{Code: http.StatusInternalServerError, Message: "internal server error"}
)
