package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the submission pipeline. Callers classify
// failures with errors.Is; everything else is wrapped context.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDispatch          = errors.New("dispatch failed")
	ErrAuthorization     = errors.New("not authorized")
	ErrPersistence       = errors.New("persistence failed")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Dispatchf wraps ErrDispatch with a formatted reason.
func Dispatchf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDispatch}, args...)...)
}
