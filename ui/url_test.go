package ui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRecordsURL(t *testing.T) {
	tests := []struct {
		name     string
		basePath string
		table    string
		expected string
	}{
		{"simple table", "/admin", "projects", "/admin/api/records/projects"},
		{"trailing slash", "/admin/", "projects", "/admin/api/records/projects"},
		{"table with spaces", "/admin", "daily logs", "/admin/api/records/daily%20logs"},
		{"empty base", "", "rfis", "/api/records/rfis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewRecordsURL(tt.basePath, tt.table).String()

			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestWithSort(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		direction string
		expected  string
	}{
		{"field and direction", "name", "asc", "/admin/api/records/users?direction=asc&sort=name"},
		{"field only", "name", "", "/admin/api/records/users?sort=name"},
		{"empty field", "", "asc", "/admin/api/records/users"},
		{"both empty", "", "", "/admin/api/records/users"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewRecordsURL("/admin", "users").WithSort(tt.field, tt.direction).String()

			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestWithPagination(t *testing.T) {
	tests := []struct {
		name     string
		offset   int
		limit    int
		expected string
	}{
		{"normal pagination", 10, 20, "/admin/api/records/users?limit=20&offset=10"},
		{"zero offset", 0, 10, "/admin/api/records/users?limit=10&offset=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewRecordsURL("/admin", "users").WithPagination(tt.offset, tt.limit).String()

			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestPreserveFromRequest(t *testing.T) {
	tests := []struct {
		name           string
		requestURL     string
		expectedParams []string
		excludedParams []string
	}{
		{
			name:           "preserve user params",
			requestURL:     "/admin/api/records/projects?sort=name&direction=asc&status=active",
			expectedParams: []string{"sort=name", "direction=asc", "status=active"},
		},
		{
			name:           "exclude internal params",
			requestURL:     "/admin/api/records/projects?sort=name&pretty=1&download=false",
			expectedParams: []string{"sort=name"},
			excludedParams: []string{"pretty", "download"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", tt.requestURL, nil)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}

			result := NewRecordsURL("/admin", "projects").PreserveFromRequest(req).String()

			for _, param := range tt.expectedParams {
				if !strings.Contains(result, param) {
					t.Errorf("Expected URL to contain %s, got %s", param, result)
				}
			}

			for _, param := range tt.excludedParams {
				if strings.Contains(result, param) {
					t.Errorf("Expected URL to NOT contain %s, got %s", param, result)
				}
			}
		})
	}
}

func TestRemoveParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/api/records/users?status=active", nil)
	builder := NewRecordsURL("/admin", "users").
		PreserveFromRequest(req).
		WithSort("name", "asc").
		WithPagination(10, 20)

	result := builder.RemoveParam("sort").RemoveParam("direction").String()

	if strings.Contains(result, "sort=") || strings.Contains(result, "direction=") {
		t.Errorf("Expected sort params to be removed, got %s", result)
	}

	if !strings.Contains(result, "offset=10") || !strings.Contains(result, "status=active") {
		t.Errorf("Expected other params to remain, got %s", result)
	}
}

func TestReservedParams(t *testing.T) {
	tests := []struct {
		param    string
		internal bool
		reserved bool
	}{
		{"download", true, true},
		{"PRETTY", true, true},
		{"limit", false, true},
		{"offset", false, true},
		{"sort", false, true},
		{"direction", false, true},
		{"status", false, false},
		{"company_id", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			if got := isInternalParam(tt.param); got != tt.internal {
				t.Errorf("isInternalParam(%s) = %v, expected %v", tt.param, got, tt.internal)
			}
			if got := isReservedParam(tt.param); got != tt.reserved {
				t.Errorf("isReservedParam(%s) = %v, expected %v", tt.param, got, tt.reserved)
			}
		})
	}
}

func TestURLEncoding(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin/api/records/projects?name=Smith+%26+Sons", nil)
	result := NewRecordsURL("/admin", "projects").
		PreserveFromRequest(req).
		String()

	if !strings.Contains(result, "name=Smith+%26+Sons") {
		t.Errorf("Expected parameter values to be URL encoded, got %s", result)
	}
}
