package core

import (
	"regexp"
	"sort"
)

// Table names with typed helpers
const (
	TableCompanies = "companies"
	TableUsers     = "users"
	TableProjects  = "projects"
)

// Domain tables reached only through the generic CRUD surface
const (
	TableRFIs          = "rfis"
	TableDailyLogs     = "daily_logs"
	TableDayworkSheets = "daywork_sheets"
	TableAuditLogs     = "audit_logs"
)

// ExportTables is the fixed table list snapshotted by ExportData, in
// foreign-key order so that ImportData can replay it front to back
var ExportTables = []string{
	TableCompanies,
	TableUsers,
	TableProjects,
	TableRFIs,
	TableDailyLogs,
	TableDayworkSheets,
	TableAuditLogs,
}

// PrimaryKey is the primary key column of every table
const PrimaryKey = "id"

// UpdatedAtColumn is refreshed on every update of a table that tracks it
const UpdatedAtColumn = "updated_at"

// TracksUpdates reports whether table carries an updated_at column.
// Audit rows are append-only and have none.
func TracksUpdates(table string) bool {
	if table == TableAuditLogs {
		return false
	}
	for _, t := range ExportTables {
		if t == table {
			return true
		}
	}
	return false
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to interpolate as a table or
// column name
func ValidIdentifier(s string) bool {
	return len(s) <= 63 && identifierPattern.MatchString(s)
}

// SortedKeys returns the keys of m in lexical order so generated
// statements are stable
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateNames checks a table name and every column name in the given maps
func ValidateNames(table string, columns ...map[string]any) *Error {
	if !ValidIdentifier(table) {
		return NewQueryError("invalid table name "+quoteForMessage(table), nil)
	}
	for _, m := range columns {
		for col := range m {
			if !ValidIdentifier(col) {
				return NewQueryError("invalid column name "+quoteForMessage(col), nil)
			}
		}
	}
	return nil
}

func quoteForMessage(s string) string {
	return `"` + s + `"`
}

// ImportOrder returns the tables of snap with the known tables first, in
// foreign-key order, followed by any others in lexical order
func ImportOrder(snap Snapshot) []string {
	order := make([]string, 0, len(snap))
	known := make(map[string]bool, len(ExportTables))
	for _, table := range ExportTables {
		known[table] = true
		if _, ok := snap[table]; ok {
			order = append(order, table)
		}
	}
	for _, table := range SortedKeys(snap) {
		if !known[table] {
			order = append(order, table)
		}
	}
	return order
}
