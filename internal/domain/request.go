package domain

import (
	"net/http"
	"strings"
	"time"
)

const (
	// MaxBodyBytes is the hard cap on declared request body size. Anything
	// larger is rejected before the body is read.
	MaxBodyBytes = 10 * 1024

	// MaxNestingDepth is the deepest container nesting accepted in a JSON body.
	MaxNestingDepth = 10

	// APIPrefix marks the paths covered by the rate-sensitive detectors.
	APIPrefix = "/api/"
)

// RequestInfo is the immutable view of one inbound request that detectors
// inspect. It is built once by the HTTP layer after identity resolution;
// detectors must not modify it.
type RequestInfo struct {
	Origin        string
	Method        string
	Path          string
	RawQuery      string
	Header        http.Header
	Body          []byte
	ContentLength int64
	ReceivedAt    time.Time
}

// IsAPI reports whether the request targets an API-prefixed path. Flood,
// rapid-repeat and fingerprint detection only apply to these.
func (r *RequestInfo) IsAPI() bool {
	return strings.HasPrefix(r.Path, APIPrefix)
}

// UserAgent returns the User-Agent header value, empty if absent.
func (r *RequestInfo) UserAgent() string {
	return r.Header.Get("User-Agent")
}
