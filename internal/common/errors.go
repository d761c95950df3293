package common

import (
	"errors"
	"net/http"
)

// AppError carries a wire code and HTTP status alongside the underlying error.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ErrorRule maps a sentinel error to its HTTP rendering. An empty Message exposes err.Error().
type ErrorRule struct {
	Target  error
	Status  int
	Code    string
	Message string
}

// ErrorRules is an ordered table of ErrorRule; the first match wins.
type ErrorRules []ErrorRule

// Write renders err with the first matching rule, then an *AppError in the chain, and
// finally a 500 with fallback as message.
func (rules ErrorRules) Write(w http.ResponseWriter, err error, fallback string) {
	for _, rule := range rules {
		if !errors.Is(err, rule.Target) {
			continue
		}
		msg := rule.Message
		if msg == "" {
			msg = err.Error()
		}
		JSONError(w, rule.Status, rule.Code, msg, nil)
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", fallback, nil)
}
