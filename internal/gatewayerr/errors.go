// Package gatewayerr defines the error kinds the content-delivery gateway's
// dispatcher classifies responses by, per the error-handling design: each
// kind carries the HTTP status its origin maps to, so handlers can
// type-switch instead of matching on raw strings.
package gatewayerr

import (
	"fmt"
	"net/http"
)

// PathNotResolved means no distribution matched a request path, or a
// checkpoint path segment was malformed or future-dated.
type PathNotResolved struct {
	Reason string
}

func (e *PathNotResolved) Error() string { return "path not resolved: " + e.Reason }
func (e *PathNotResolved) Status() int   { return http.StatusNotFound }

// HTTPForbidden means a distribution's content guard rejected the request.
type HTTPForbidden struct {
	Reason string
}

func (e *HTTPForbidden) Error() string { return e.Reason }
func (e *HTTPForbidden) Status() int   { return http.StatusForbidden }

// HTTPMovedPermanently means the caller should be 301-redirected, e.g. for a
// missing trailing slash or a non-canonical checkpoint timestamp.
type HTTPMovedPermanently struct {
	Location string
}

func (e *HTTPMovedPermanently) Error() string { return "moved permanently: " + e.Location }
func (e *HTTPMovedPermanently) Status() int   { return http.StatusMovedPermanently }

// HTTPFound means the caller should be 302-redirected to a signed
// object-storage URL.
type HTTPFound struct {
	Location string
}

func (e *HTTPFound) Error() string { return "found: " + e.Location }
func (e *HTTPFound) Status() int   { return http.StatusFound }

// RangeNotSatisfiable means the Range header requested bytes outside
// [0, size) or was otherwise malformed.
type RangeNotSatisfiable struct {
	Size int64 // -1 when unknown
}

func (e *RangeNotSatisfiable) Error() string { return "range not satisfiable" }
func (e *RangeNotSatisfiable) Status() int   { return http.StatusRequestedRangeNotSatisfiable }
func (e *RangeNotSatisfiable) ContentRange() string {
	if e.Size < 0 {
		return "bytes */*"
	}
	return fmt.Sprintf("bytes */%d", e.Size)
}

// NotFound is a plain 404 with no further classification (e.g. mirror
// fallback exhausted, remote branch has nothing to serve).
type NotFound struct {
	Reason string
}

func (e *NotFound) Error() string { return "not found: " + e.Reason }
func (e *NotFound) Status() int   { return http.StatusNotFound }

// UpstreamError wraps a non-2xx status returned by an upstream remote, for
// the pull-through branch's requirement to surface the upstream status code.
type UpstreamError struct {
	StatusCode int
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.URL, e.StatusCode)
}
func (e *UpstreamError) Status() int { return e.StatusCode }

// PreStreamFailure classifies an upstream failure that occurred before any
// byte was sent to the client: connection errors, 4xx/5xx upstream
// responses, unsupported digest configuration. The mirror fallback ladder
// (4.H) catches these and advances to the next RemoteArtifact.
type PreStreamFailure struct {
	Cause error
}

func (e *PreStreamFailure) Error() string { return "pre-stream failure: " + e.Cause.Error() }
func (e *PreStreamFailure) Unwrap() error { return e.Cause }

// DigestValidationError means bytes already streamed to the client failed
// checksum validation. It is never pre-stream-safe: the mirror must be
// marked failed and the connection forced closed by the caller.
type DigestValidationError struct {
	Algorithm string
	Expected  string
	Actual    string
}

func (e *DigestValidationError) Error() string {
	return fmt.Sprintf("digest validation failed (%s): expected %s, got %s; bytes were already sent to the client, so the fetch cannot be retried from another mirror and the connection is closed", e.Algorithm, e.Expected, e.Actual)
}

// AmbiguousContent means a pass-through lookup matched more than one
// ContentArtifact for the same relative path — the Open Question's
// bug-compatible 500, logged and propagated rather than silently resolved.
type AmbiguousContent struct {
	RelativePath string
	Count        int
}

func (e *AmbiguousContent) Error() string {
	return fmt.Sprintf("multiple content artifacts (%d) matched relative path %q", e.Count, e.RelativePath)
}
func (e *AmbiguousContent) Status() int { return http.StatusInternalServerError }

// StatusCoder is implemented by every gatewayerr type above except
// PreStreamFailure and DigestValidationError; dispatcher code finds it with
// errors.As (so a status wrapped in a PreStreamFailure still counts) rather
// than switching on concrete types one by one.
type StatusCoder interface {
	error
	Status() int
}
