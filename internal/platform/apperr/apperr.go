// Package apperr carries an HTTP status alongside a client-facing message so
// services can fail with the exact response a handler should send.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func BadRequest(message string) *Error   { return New(http.StatusBadRequest, message) }
func Unauthorized(message string) *Error { return New(http.StatusUnauthorized, message) }
func NotFound(message string) *Error     { return New(http.StatusNotFound, message) }
func Conflict(message string) *Error     { return New(http.StatusConflict, message) }
func Internal(message string) *Error     { return New(http.StatusInternalServerError, message) }

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTP converts err into an echo.HTTPError. Errors that are not *Error become
// a 500 with fallback as the message so internal details never leak.
func HTTP(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return echo.NewHTTPError(ae.Code, ae.Message)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(http.StatusInternalServerError, fallback)
}
