package githubstore

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConfigured     = errors.New("github store not configured")
	ErrNotFound          = errors.New("github content not found")
	ErrVersionConflict   = errors.New("github content version conflict")
	ErrUnauthorized      = errors.New("github authentication failed")
	ErrRateLimited       = errors.New("github api rate limit exceeded")
	ErrRemoteUnavailable = errors.New("github unavailable")
)

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("github %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is lets callers match an APIError against the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrVersionConflict:
		return e.StatusCode == http.StatusConflict
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRemoteUnavailable:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// ConflictError is returned by Put once every retry has hit a version
// conflict.
type ConflictError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write %s failed after %d attempts: version conflict", e.Path, e.Attempts)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// isConflict reports whether a write failed because the stored sha moved.
// A 422 only means that when the request carried no sha: the file was created
// between the lookup and the write.
func isConflict(err error, sentSHA bool) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusConflict:
		return true
	case http.StatusUnprocessableEntity:
		return !sentSHA
	}
	return false
}
