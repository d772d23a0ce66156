// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrUpstream covers transport failures: unreachable, non-2xx, timeout.
	ErrUpstream = errors.New("upstream error")
	// ErrShape means the upstream JSON is missing items, fields or ids.
	ErrShape       = errors.New("malformed upstream response")
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrUnavailable means neither live nor fallback content could be produced.
	ErrUnavailable = errors.New("content unavailable")
)
