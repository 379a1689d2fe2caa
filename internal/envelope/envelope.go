// Package envelope defines the data shapes that cross the queue boundary:
// the request envelope submitted as job data, the result and error envelopes
// a job resolves to, and the response the dispatcher hands back to ingress.
package envelope

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MethodHealth is the reserved probe method used by the health aggregator.
// It is never user-routable; worker processors short-circuit it.
const MethodHealth = "HEALTH"

// MethodAll is the wildcard method bin matched after the exact method bin.
const MethodAll = "ALL"

// Headers is a case-insensitive header map. Values keep their wire shape
// (single string or list), so the envelope round-trips through JSON intact.
type Headers map[string][]string

// Get returns the first value for the given key, case-insensitively.
func (h Headers) Get(key string) string {
	if vals := h.Values(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Values returns all values for the given key, case-insensitively.
func (h Headers) Values(key string) []string {
	if vals, ok := h[key]; ok {
		return vals
	}
	for k, vals := range h {
		if strings.EqualFold(k, key) {
			return vals
		}
	}
	return nil
}

// Set replaces the values for key.
func (h Headers) Set(key, value string) {
	for k := range h {
		if strings.EqualFold(k, key) {
			delete(h, k)
		}
	}
	h[key] = []string{value}
}

// User is the authenticated identity attached by an ingress plugin.
type User struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// Request is the envelope submitted to a queue as job data. It is immutable
// once submitted; it crosses the process boundary as a serialized value.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers Headers           `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	User    *User             `json:"user,omitempty"`
	// Extra is a free-form side channel populated by ingress hooks
	// (device identifiers, access/refresh token strings and the like).
	Extra map[string]string `json:"extra,omitempty"`
}

// WithParams returns a shallow copy of the request carrying the given path
// params. The original request is never mutated.
func (r *Request) WithParams(params map[string]string) *Request {
	cp := *r
	if len(params) > 0 {
		merged := make(map[string]string, len(r.Params)+len(params))
		for k, v := range r.Params {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		cp.Params = merged
	}
	return &cp
}

// IsWrite reports whether the method carries a body.
func (r *Request) IsWrite() bool {
	switch strings.ToUpper(r.Method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Cache holds response-cache directives attached to a successful result.
// The dispatcher strips the field and renders it as response headers.
type Cache struct {
	Private      bool       `json:"private,omitempty"`
	NoCache      bool       `json:"no_cache,omitempty"`
	NoStore      bool       `json:"no_store,omitempty"`
	MaxAge       int        `json:"max_age,omitempty"` // seconds
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// CacheControl renders the Cache-Control header value, or "" if no
// directive applies.
func (c *Cache) CacheControl() string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Private {
		parts = append(parts, "private")
	}
	if c.NoCache {
		parts = append(parts, "no-cache")
	}
	if c.NoStore {
		parts = append(parts, "no-store")
	}
	if c.MaxAge > 0 {
		parts = append(parts, fmt.Sprintf("max-age=%d", c.MaxAge))
	}
	return strings.Join(parts, ", ")
}

// Merge fills unset directives from other. Directives already set on c win.
func (c *Cache) Merge(other *Cache) *Cache {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	merged := *c
	if !merged.Private {
		merged.Private = other.Private
	}
	if !merged.NoCache {
		merged.NoCache = other.NoCache
	}
	if !merged.NoStore {
		merged.NoStore = other.NoStore
	}
	if merged.MaxAge == 0 {
		merged.MaxAge = other.MaxAge
	}
	if merged.LastModified == nil {
		merged.LastModified = other.LastModified
	}
	return &merged
}

// Result is the success envelope a job resolves to.
type Result struct {
	StatusCode int             `json:"status_code"`
	Result     json.RawMessage `json:"result,omitempty"`
	Cache      *Cache          `json:"cache,omitempty"`
}

// Response is what the dispatcher returns to the ingress layer for every
// request, success or failure. Exactly one of Result and ErrMessage is set.
type Response struct {
	StatusCode int               `json:"status_code"`
	Result     json.RawMessage   `json:"result,omitempty"`
	ErrMessage string            `json:"error,omitempty"`
	Stack      string            `json:"stack,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
	ElapsedMS  int64             `json:"elapsed"`
	// Headers carries cache directives translated from the result envelope.
	Headers map[string]string `json:"-"`
}
