package apperrors

import (
	"context"
	"errors"
	"fmt"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/logging"
)

// Error kinds. Match with errors.Is.
var (
	ErrConnectionFailed       = errors.New("connection failed")
	ErrConnectionTimeout      = errors.New("connection timed out")
	ErrQueryFailed            = errors.New("query failed")
	ErrInvalidParameters      = errors.New("invalid parameters")
	ErrInsufficientPrivileges = errors.New("insufficient privileges")
	ErrUnsupportedFeature     = errors.New("unsupported feature")
	ErrPoolExhausted          = errors.New("connection pool exhausted")
	ErrConfiguration          = errors.New("invalid configuration")
)

// Error is a classified collector error. Detail is sanitized when the error is
// built and the driver error it came from is not retained, so neither Error()
// nor %+v can leak a credential.
type Error struct {
	Kind   error
	Op     string
	Detail string
}

// New builds a classified error. detail is passed through the credential sanitizer.
func New(kind error, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: logging.SanitizeMessage(detail)}
}

// Newf is New with a format string.
func Newf(kind error, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

// Wrap classifies cause under kind, keeping only its sanitized text.
// A nil cause yields nil.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Detail: logging.SanitizeError(cause)}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// GoString keeps %#v output identical to Error().
func (e *Error) GoString() string {
	return e.Error()
}

// KindOf returns the kind of a classified error, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// IsTimeout reports whether err is a context deadline or a classified timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrConnectionTimeout)
}

// Classifier maps a driver error onto a kind, returning nil when it has no opinion.
type Classifier func(err error) error

// Classify turns any error into a classified *Error. Already classified errors
// pass through; context expiry becomes timeoutKind; the engine classifier is
// consulted next; fallback applies otherwise.
func Classify(op string, err error, classifier Classifier, timeoutKind, fallback error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(timeoutKind, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(fallback, op, err)
	}
	if classifier != nil {
		if kind := classifier(err); kind != nil {
			return Wrap(kind, op, err)
		}
	}
	return Wrap(fallback, op, err)
}
