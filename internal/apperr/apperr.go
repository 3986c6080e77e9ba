package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Kind classifies failures surfaced by the data-access layer.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindPermission Kind = "permission"
	KindUnknown    Kind = "unknown"
)

// CodeNoRows is the store code reported when a single-row lookup matched nothing.
const CodeNoRows = "PGRST116"

// Error is the tagged failure returned by repositories, the identity client and services.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound reports a missing row with the store's no-rows code.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNoRows, Message: message, Err: gorm.ErrRecordNotFound}
}

// KindOf returns the kind carried by err, KindUnknown for foreign errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsNoRows reports whether err is exactly the store's single-row "no rows" signal.
// Not-found errors from other sources, such as the identity service, do not match.
func IsNoRows(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == KindNotFound && appErr.Code == CodeNoRows
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsNotFound reports whether err is any not-found failure.
func IsNotFound(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == KindNotFound
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FromStore classifies an error returned by GORM. Nil stays nil and already
// classified errors pass through untouched.
func FromStore(err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}

	var validationErrors validator.ValidationErrors
	var netErr net.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Code: CodeNoRows, Message: "no rows returned", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	case errors.As(err, &netErr):
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	case errors.As(err, &validationErrors):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated),
		errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrInvalidValue):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "violates"),
		strings.Contains(msg, "constraint failed"):
		return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "bad connection"):
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}

	return &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
}

// Guard runs fn and converts a panic into a KindUnknown error.
func Guard(fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &Error{Kind: KindUnknown, Code: "panic", Message: fmt.Sprintf("unexpected failure: %v", recovered)}
		}
	}()
	return fn()
}

// GuardValue is Guard for functions that also produce a value. A panic yields the
// zero value.
func GuardValue[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			var zero T
			value = zero
			err = &Error{Kind: KindUnknown, Code: "panic", Message: fmt.Sprintf("unexpected failure: %v", recovered)}
		}
	}()
	return fn()
}
