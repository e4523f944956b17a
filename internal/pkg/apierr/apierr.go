package apierr

import (
	"errors"
	"fmt"
	"net/http"

	perrors "github.com/fletar/fletar-backend/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(code, msg string) *Error {
	return New(http.StatusBadRequest, code, fmt.Errorf("%w: %s", perrors.ErrInvalidArgument, msg))
}

func NotFound(code string) *Error {
	return New(http.StatusNotFound, code, perrors.ErrNotFound)
}

func Forbidden(code string) *Error {
	return New(http.StatusForbidden, code, perrors.ErrForbidden)
}

func Conflict(code, msg string) *Error {
	return New(http.StatusConflict, code, fmt.Errorf("%w: %s", perrors.ErrConflict, msg))
}

// As unwraps err into an *Error when one is present in the chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}
