package core

import (
	"os"
	"testing"
)

func TestNewSelectOptions(t *testing.T) {
	opts := NewSelectOptions()

	if opts == nil {
		t.Fatal("NewSelectOptions() returned nil")
	}

	if opts.Limit != 0 || opts.Offset != 0 {
		t.Errorf("Expected no pagination, got limit=%d offset=%d", opts.Limit, opts.Offset)
	}

	if opts.Direction() != SortAsc {
		t.Errorf("Expected default direction asc, got %s", opts.Direction())
	}
}

func TestSelectOptionsChaining(t *testing.T) {
	opts := NewSelectOptions()

	result := opts.WithOrder("name", SortDesc).WithPagination(20, 10)

	// Should return same instance for chaining
	if result != opts {
		t.Error("WithOrder/WithPagination should return same instance for chaining")
	}

	if opts.OrderBy != "name" {
		t.Errorf("Expected order column 'name', got '%s'", opts.OrderBy)
	}

	if opts.OrderDirection != SortDesc {
		t.Errorf("Expected direction desc, got %s", opts.OrderDirection)
	}

	if opts.Limit != 20 || opts.Offset != 10 {
		t.Errorf("Expected limit 20 offset 10, got %d/%d", opts.Limit, opts.Offset)
	}
}

func TestSelectOptionsNegativePagination(t *testing.T) {
	opts := NewSelectOptions().WithPagination(-5, -3)

	if opts.Limit != 0 {
		t.Errorf("Expected negative limit to be clamped to 0, got %d", opts.Limit)
	}

	if opts.Offset != 0 {
		t.Errorf("Expected negative offset to be clamped to 0, got %d", opts.Offset)
	}
}

func TestSelectOptionsNextPage(t *testing.T) {
	opts := NewSelectOptions().WithOrder("created_at", SortDesc).WithPagination(10, 0)

	next := opts.NextPage()

	if next == opts {
		t.Error("NextPage should return a new instance")
	}

	if next.Offset != 10 {
		t.Errorf("Expected next offset 10, got %d", next.Offset)
	}

	if opts.Offset != 0 {
		t.Errorf("Original options should be unchanged, got offset %d", opts.Offset)
	}

	if next.OrderBy != "created_at" || next.OrderDirection != SortDesc {
		t.Error("NextPage should preserve ordering")
	}
}

func TestSelectOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    *SelectOptions
		wantErr bool
	}{
		{"nil options", nil, false},
		{"empty options", &SelectOptions{}, false},
		{"valid order", &SelectOptions{OrderBy: "created_at", OrderDirection: SortDesc}, false},
		{"injection in column", &SelectOptions{OrderBy: "name; DROP TABLE users"}, true},
		{"bad direction", &SelectOptions{OrderBy: "name", OrderDirection: "sideways"}, true},
		{"negative limit", &SelectOptions{Limit: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSortDirection(t *testing.T) {
	if ParseSortDirection("DESC") != SortDesc {
		t.Error("Expected DESC to parse as desc")
	}
	if ParseSortDirection("") != SortAsc {
		t.Error("Expected empty input to default to asc")
	}
	if ParseSortDirection("random") != SortAsc {
		t.Error("Expected unknown input to default to asc")
	}
}

func TestSortDirectionOpposite(t *testing.T) {
	if SortAsc.Opposite() != SortDesc {
		t.Error("Expected opposite of asc to be desc")
	}
	if SortDesc.Opposite() != SortAsc {
		t.Error("Expected opposite of desc to be asc")
	}
}

func TestPageSizeFromEnv(t *testing.T) {
	original := os.Getenv("SITEBASE_PAGE_SIZE")
	defer os.Setenv("SITEBASE_PAGE_SIZE", original)

	os.Setenv("SITEBASE_PAGE_SIZE", "50")
	if got := PageSizeFromEnv(); got != 50 {
		t.Errorf("Expected page size 50, got %d", got)
	}

	os.Setenv("SITEBASE_PAGE_SIZE", "invalid")
	if got := PageSizeFromEnv(); got != DefaultPageSize {
		t.Errorf("Expected default page size %d for invalid value, got %d", DefaultPageSize, got)
	}

	os.Setenv("SITEBASE_PAGE_SIZE", "100000")
	if got := PageSizeFromEnv(); got != DefaultPageSize {
		t.Errorf("Expected default page size %d for oversized value, got %d", DefaultPageSize, got)
	}
}
