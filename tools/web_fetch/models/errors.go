package models

import "fmt"

// ErrorKind classifies fetch failures so callers can decide whether a retry
// makes sense.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindProxyUnreachable ErrorKind = "proxy_unreachable"
	KindHTTPError        ErrorKind = "http_error"
	KindTooLarge         ErrorKind = "too_large"
	KindBadContent       ErrorKind = "bad_content"
)

// FetchError wraps a failure to retrieve one resource.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Proxy circuit errors
// and server-side HTTP errors are worth another attempt; client errors,
// oversized payloads and non-text bodies are not.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindProxyUnreachable:
		return true
	case KindHTTPError:
		return e.Status >= 500
	default:
		return false
	}
}
