// ABOUTME: Query-string pagination parameters for the message listing endpoints
// ABOUTME: Page/limit extraction with clamped limits and computed offsets

// Package pagination extracts and validates page/limit parameters from
// request query strings and computes the offsets the proxy consumes.
package pagination

import (
	"net/url"
	"strconv"
)

// Params holds the pagination state of one request.
type Params struct {
	Page   int // 1-based page number
	Limit  int // items per page
	Offset int // computed offset
}

const (
	// MaxLimit bounds how many messages one page may request.
	MaxLimit = 100
	// DefaultPage is used when the request names no page.
	DefaultPage = 1
	// DefaultLimit is used when the request names no limit.
	DefaultLimit = 25
)

// Option configures defaults before query values are applied.
type Option func(*Params)

// WithDefaultLimit overrides the default page size. Ignored when not positive.
func WithDefaultLimit(limit int) Option {
	return func(p *Params) {
		if limit > 0 {
			p.Limit = limit
		}
	}
}

// FromQuery extracts pagination parameters from URL query values, applies
// options, clamps the limit, and computes the offset.
func FromQuery(q url.Values, opts ...Option) *Params {
	params := &Params{
		Page:  DefaultPage,
		Limit: DefaultLimit,
	}

	for _, opt := range opts {
		opt(params)
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if val, err := strconv.Atoi(pageStr); err == nil && val > 0 {
			params.Page = val
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
			params.Limit = val
		}
	}

	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}

	params.Offset = (params.Page - 1) * params.Limit
	return params
}

// HasNext reports whether items remain beyond the current page.
func HasNext(offset, limit, total int) bool {
	return offset+limit < total
}
