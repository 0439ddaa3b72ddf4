package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Constants for pagination of API listings
const (
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// SortDirection represents the sort order
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SelectOptions controls ordering and pagination of Select.
// A zero Limit means no limit.
type SelectOptions struct {
	Limit          int           `json:"limit,omitempty"`
	Offset         int           `json:"offset,omitempty"`
	OrderBy        string        `json:"order_by,omitempty"`
	OrderDirection SortDirection `json:"order_direction,omitempty"`
}

// NewSelectOptions creates options with no limit and no ordering
func NewSelectOptions() *SelectOptions {
	return &SelectOptions{}
}

// WithOrder sets the single ordering column
func (o *SelectOptions) WithOrder(column string, direction SortDirection) *SelectOptions {
	o.OrderBy = column
	o.OrderDirection = direction
	return o
}

// WithPagination sets limit and offset, clamping negatives to zero
func (o *SelectOptions) WithPagination(limit, offset int) *SelectOptions {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	o.Limit = limit
	o.Offset = offset
	return o
}

// NextPage creates options for the page following this one
func (o *SelectOptions) NextPage() *SelectOptions {
	next := *o
	next.Offset += next.Limit
	return &next
}

// Direction returns the effective direction, ascending by default
func (o *SelectOptions) Direction() SortDirection {
	if o == nil || !o.OrderDirection.IsValid() {
		return SortAsc
	}
	return o.OrderDirection
}

// Validate checks the ordering column and direction
func (o *SelectOptions) Validate() error {
	if o == nil {
		return nil
	}
	if o.OrderBy != "" && !ValidIdentifier(o.OrderBy) {
		return fmt.Errorf("invalid order column %q", o.OrderBy)
	}
	if o.OrderDirection != "" && !o.OrderDirection.IsValid() {
		return fmt.Errorf("invalid order direction %q", o.OrderDirection)
	}
	if o.Limit < 0 || o.Offset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}
	return nil
}

// PageSizeFromEnv gets the API page size from the environment or the default
func PageSizeFromEnv() int {
	if envSize := os.Getenv("SITEBASE_PAGE_SIZE"); envSize != "" {
		if size, err := strconv.Atoi(envSize); err == nil && size > 0 && size <= MaxPageSize {
			return size
		}
	}
	return DefaultPageSize
}

// ParseSortDirection maps user input to a direction, ascending by default
func ParseSortDirection(s string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(s), string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// String returns a string representation of the sort direction
func (sd SortDirection) String() string {
	return string(sd)
}

// IsValid checks if the sort direction is valid
func (sd SortDirection) IsValid() bool {
	return sd == SortAsc || sd == SortDesc
}

// Opposite returns the opposite sort direction
func (sd SortDirection) Opposite() SortDirection {
	if sd == SortAsc {
		return SortDesc
	}
	return SortAsc
}
