package ui

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// RecordsURLBuilder provides a fluent interface for building record listing URLs
type RecordsURLBuilder struct {
	basePath string
	params   url.Values
}

// NewRecordsURL creates a new URL builder for the given table under basePath
func NewRecordsURL(basePath, table string) *RecordsURLBuilder {
	return &RecordsURLBuilder{
		basePath: strings.TrimSuffix(basePath, "/") + "/api/records/" + url.PathEscape(table),
		params:   make(url.Values),
	}
}

// PreserveFromRequest copies all user-facing parameters from the current request
// Skips internal parameters that shouldn't be preserved
func (b *RecordsURLBuilder) PreserveFromRequest(r *http.Request) *RecordsURLBuilder {
	for k, v := range r.URL.Query() {
		if !isInternalParam(k) {
			b.params[k] = v
		}
	}
	return b
}

// WithSort sets sorting parameters
func (b *RecordsURLBuilder) WithSort(field, direction string) *RecordsURLBuilder {
	if field != "" {
		b.params.Set("sort", field)
		if direction != "" {
			b.params.Set("direction", direction)
		}
	}
	return b
}

// WithPagination sets pagination parameters
func (b *RecordsURLBuilder) WithPagination(offset, limit int) *RecordsURLBuilder {
	b.params.Set("offset", strconv.Itoa(offset))
	b.params.Set("limit", strconv.Itoa(limit))
	return b
}

// RemoveParam removes a parameter
func (b *RecordsURLBuilder) RemoveParam(key string) *RecordsURLBuilder {
	b.params.Del(key)
	return b
}

// String builds and returns the final URL
func (b *RecordsURLBuilder) String() string {
	if len(b.params) == 0 {
		return b.basePath
	}
	return b.basePath + "?" + b.params.Encode()
}

// isInternalParam checks if a parameter is internal and should not be
// carried into generated links
func isInternalParam(key string) bool {
	internalParams := []string{
		"download", // export as attachment
		"pretty",   // response formatting
	}

	for _, param := range internalParams {
		if strings.EqualFold(key, param) {
			return true
		}
	}
	return false
}

// isReservedParam checks if a query parameter controls the listing rather
// than filtering it
func isReservedParam(param string) bool {
	reserved := []string{
		"limit", "offset", "sort", "direction",
	}

	for _, r := range reserved {
		if param == r {
			return true
		}
	}
	return isInternalParam(param)
}
