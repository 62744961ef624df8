package models

import (
	"errors"
	"fmt"
)

// Kind classifies an expected, recoverable failure.
type Kind string

const (
	KindInvalidPath     Kind = "invalid_path"
	KindFileNotFound    Kind = "file_not_found"
	KindAppFileNotFound Kind = "app_file_not_found"
	KindAlreadyExists   Kind = "file_already_exists"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindFileTooLarge    Kind = "file_size_exceeded"
	KindProjectNotFound Kind = "project_not_found"
	KindAppNotFound     Kind = "app_not_found"
	KindInvalidArgument Kind = "invalid_argument"
	KindForbidden       Kind = "forbidden"
	KindInternal        Kind = "internal"
)

// Error is the typed error returned by the file store and the services above it.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return string(e.Kind)
}

// Is matches sentinels of the same kind. A legacy app file miss also matches
// ErrFileNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == KindAppFileNotFound && t.Kind == KindFileNotFound
}

// Sentinels for errors.Is.
var (
	ErrInvalidPath     = &Error{Kind: KindInvalidPath}
	ErrFileNotFound    = &Error{Kind: KindFileNotFound}
	ErrAppFileNotFound = &Error{Kind: KindAppFileNotFound}
	ErrAlreadyExists   = &Error{Kind: KindAlreadyExists}
	ErrQuotaExceeded   = &Error{Kind: KindQuotaExceeded}
	ErrFileTooLarge    = &Error{Kind: KindFileTooLarge}
	ErrProjectNotFound = &Error{Kind: KindProjectNotFound}
	ErrAppNotFound     = &Error{Kind: KindAppNotFound}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrForbidden       = &Error{Kind: KindForbidden}
)

func InvalidPath(path, reason string) *Error {
	return &Error{
		Kind:    KindInvalidPath,
		Path:    path,
		Message: fmt.Sprintf("invalid path %q: %s", path, reason),
		Details: map[string]any{"reason": reason},
	}
}

func FileNotFound(path string) *Error {
	return &Error{Kind: KindFileNotFound, Path: path, Message: fmt.Sprintf("file not found: %s", path)}
}

// AppFileNotFound is the not-found variant reported by the legacy blob store.
func AppFileNotFound(appID, path string) *Error {
	return &Error{
		Kind:    KindAppFileNotFound,
		Path:    path,
		Message: fmt.Sprintf("file not found in app %s: %s", appID, path),
		Details: map[string]any{"app_id": appID},
	}
}

func AlreadyExists(path string) *Error {
	return &Error{Kind: KindAlreadyExists, Path: path, Message: fmt.Sprintf("file already exists: %s", path)}
}

// QuotaExceeded carries the numbers a client needs to display the breach.
func QuotaExceeded(usage, delta, quota int64) *Error {
	return &Error{
		Kind: KindQuotaExceeded,
		Message: fmt.Sprintf("storage quota exceeded: %d bytes used + %d requested > %d bytes allowed",
			usage, delta, quota),
		Details: map[string]any{
			"usage":        usage,
			"requested":    delta,
			"quota":        quota,
			"percent_used": PercentUsed(usage, quota),
		},
	}
}

func FileTooLarge(path string, size, limit int64) *Error {
	return &Error{
		Kind:    KindFileTooLarge,
		Path:    path,
		Message: fmt.Sprintf("file %s is %d bytes, limit is %d bytes", path, size, limit),
		Details: map[string]any{"size": size, "limit": limit},
	}
}

func ProjectNotFound(id string) *Error {
	return &Error{Kind: KindProjectNotFound, Message: fmt.Sprintf("project not found: %s", id)}
}

func AppNotFound(id string) *Error {
	return &Error{Kind: KindAppNotFound, Message: fmt.Sprintf("app not found: %s", id)}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal when err is outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsExpected reports whether err belongs to the typed taxonomy.
func IsExpected(err error) bool {
	return err != nil && KindOf(err) != KindInternal
}

// PercentUsed rounds to one decimal place. A zero quota reports zero.
func PercentUsed(usage, quota int64) float64 {
	if quota <= 0 {
		return 0
	}
	p := float64(usage) * 100 / float64(quota)
	return float64(int64(p*10+0.5)) / 10
}

// ErrorDetails is the wire form of an error.
type ErrorDetails struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// DetailsOf converts err to its wire form; unexpected errors lose their text.
func DetailsOf(err error) *ErrorDetails {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &ErrorDetails{Kind: e.Kind, Message: e.Error(), Details: e.Details}
	}
	return &ErrorDetails{Kind: KindInternal, Message: "internal error"}
}
