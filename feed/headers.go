package feed

import (
	"net/http"
)

// CacheHeaders is the validator pair recorded alongside the cached dataset.
//
// The remote is considered unchanged exactly when the pair it advertises is
// structurally equal to the recorded one. Absent validators are kept as JSON
// null rather than omitted so the on-disk form round-trips losslessly. The
// JSON keys are the header names verbatim.
type CacheHeaders struct {
	ETag         *string `json:"ETag"`
	LastModified *string `json:"Last-Modified"`
}

// HeadersFrom extracts the tracked validators from a response header.
// Missing and empty headers both read as absent.
func headersFrom(h http.Header) (c CacheHeaders) {
	if v := h.Get("ETag"); v != "" {
		c.ETag = &v
	}
	if v := h.Get("Last-Modified"); v != "" {
		c.LastModified = &v
	}
	return c
}

// Equal reports whether the two validator pairs are structurally equal.
//
// Both-absent compares equal, so a remote that never advertises validators
// never triggers a re-download on its own.
func (c CacheHeaders) Equal(o CacheHeaders) bool {
	return eq(c.ETag, o.ETag) && eq(c.LastModified, o.LastModified)
}

func eq(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	}
	return *a == *b
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
