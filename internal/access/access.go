// Package access decides whether a query request's origin may proceed and
// which CORS headers accompany the reply.
package access

import (
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/Aman-CERP/searchgate/internal/errors"
)

// Wildcard is the header value emitted when no allow-list is configured.
const Wildcard = "*"

// CORS header names and the fixed values emitted with every reply.
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"

	AllowCredentials = "true"
	AllowMethods     = "GET, POST, DELETE, PUT, OPTIONS, HEAD"
	AllowHeaders     = "Content-Type, Accept, X-Requested-With"
)

// ParseOrigins splits a comma separated allow-list, trimming each entry and
// dropping empty ones.
func ParseOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// OriginSet is the allow-list, computed once on first use and read-only after.
type OriginSet struct {
	once    sync.Once
	load    func() string
	origins []string
}

// NewOriginSet returns a set whose entries come from load on first use.
func NewOriginSet(load func() string) *OriginSet {
	return &OriginSet{load: load}
}

// StaticOriginSet returns an already initialised set.
func StaticOriginSet(origins ...string) *OriginSet {
	s := &OriginSet{load: func() string { return strings.Join(origins, ",") }}
	s.Origins()
	return s
}

// Origins returns the ordered allow-list. Callers must not modify it.
func (s *OriginSet) Origins() []string {
	s.once.Do(func() {
		if s.load != nil {
			s.origins = ParseOrigins(s.load())
		}
	})
	return s.origins
}

// Decision is the outcome for one request origin. HeaderValue is emitted
// even when Allow is false.
type Decision struct {
	Allow       bool
	HeaderValue string
}

// Err returns nil for an allowed decision, otherwise an
// ERR_403_ORIGIN_NOT_ALLOWED error naming origin.
func (d Decision) Err(origin string) error {
	if d.Allow {
		return nil
	}
	return errors.New(errors.ErrCodeOriginNotAllowed, "origin not allowed", nil).
		WithDetail("origin", origin)
}

// Controller applies the allow-list to request origins.
type Controller struct {
	origins *OriginSet
}

// NewController creates a Controller over origins.
func NewController(origins *OriginSet) *Controller {
	if origins == nil {
		origins = StaticOriginSet()
	}
	return &Controller{origins: origins}
}

// Decide returns the access decision for origin.
//
// An empty allow-list admits everything with a wildcard header. Otherwise an
// exact match is admitted and echoed; anything else is refused and the first
// allow-listed origin is echoed.
func (c *Controller) Decide(origin string) Decision {
	list := c.origins.Origins()
	if len(list) == 0 {
		return Decision{Allow: true, HeaderValue: Wildcard}
	}
	if origin != "" && slices.Contains(list, origin) {
		return Decision{Allow: true, HeaderValue: origin}
	}
	return Decision{Allow: false, HeaderValue: list[0]}
}

// Headers returns the CORS headers for a request from origin.
func (c *Controller) Headers(origin string) http.Header {
	return c.Decide(origin).Headers()
}

// Headers returns the CORS header set carrying d.HeaderValue.
func (d Decision) Headers() http.Header {
	h := make(http.Header, 4)
	h.Set(HeaderAllowOrigin, d.HeaderValue)
	h.Set(HeaderAllowCredentials, AllowCredentials)
	h.Set(HeaderAllowMethods, AllowMethods)
	h.Set(HeaderAllowHeaders, AllowHeaders)
	return h
}

// IsPreflight reports whether method is the CORS preflight method.
func IsPreflight(method string) bool {
	return method == http.MethodOptions
}
