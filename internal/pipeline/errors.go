package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrRetriesExhausted marks a task whose transient failures outlasted the
// retry budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

type FetchErrorKind string

const (
	KindNetwork FetchErrorKind = "network"
	KindTimeout FetchErrorKind = "timeout"
	KindStatus  FetchErrorKind = "status"
	KindDecode  FetchErrorKind = "decode"
)

// FetchError is a failed single GET attempt.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether another attempt may succeed.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusRequestTimeout ||
			e.StatusCode == http.StatusTooManyRequests ||
			e.StatusCode >= 500
	}
	return false
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

func transportError(u string, err error) *FetchError {
	kind := KindNetwork
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: u, Err: err}
}

// ParseError means the page is structurally unusable. It is never retried.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}

// ListingError means no article URLs could be resolved for a category.
type ListingError struct {
	Category string
	Err      error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing for %s: %v", e.Category, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}
