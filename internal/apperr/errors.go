// Package apperr defines the error taxonomy shared by the sync pipeline.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrTokenInvalid   = errors.New("access token is invalid")
)

// FetchError is returned when the remote API answers with a non-success status
// other than 429. It aborts the sync pass.
type FetchError struct {
	Kind       string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d: %s", e.Kind, e.StatusCode, e.Body)
}

// TemplateError reports a rendered frontmatter block that is not a valid YAML mapping.
// Preview holds the beginning of the offending text.
type TemplateError struct {
	Preview string
	Err     error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("invalid frontmatter: %v\n---\n%s\n---", e.Err, e.Preview)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// WriteError is a per-file filesystem failure inside the writer.
type WriteError struct {
	Op         string
	Path       string
	DocumentID int64
	Identity   string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s (document %d): %v", e.Op, e.Path, e.DocumentID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Preview truncates s to at most n bytes for inclusion in error messages.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
