package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLLogger traces statements with timing and row counts when enabled
type SQLLogger struct {
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
}

// NewSQLLogger creates a new SQL logger
func NewSQLLogger(logger *slog.Logger, enabled bool) *SQLLogger {
	return &SQLLogger{
		logger:  logger,
		enabled: enabled,
	}
}

// IsEnabled returns whether SQL logging is enabled
func (l *SQLLogger) IsEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// SetEnabled enables or disables SQL logging
func (l *SQLLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// LogQuery logs a query with execution time and row count
func (l *SQLLogger) LogQuery(query string, args []any, duration time.Duration, rowCount int) {
	if !l.IsEnabled() {
		return
	}

	l.logger.Info("sql",
		"ms", milliseconds(duration),
		"rows", rowCount,
		"query", l.formatQuery(query),
		"args", l.formatArgs(args))
}

// LogExec logs a statement with execution time and affected rows
func (l *SQLLogger) LogExec(query string, args []any, duration time.Duration, result sql.Result) {
	if !l.IsEnabled() {
		return
	}

	rowsAffected := int64(-1)
	if result != nil {
		if affected, err := result.RowsAffected(); err == nil {
			rowsAffected = affected
		}
	}

	attrs := []any{"ms", milliseconds(duration)}
	if rowsAffected >= 0 {
		attrs = append(attrs, "rows", rowsAffected)
	}
	attrs = append(attrs, "query", l.formatQuery(query), "args", l.formatArgs(args))
	l.logger.Info("sql", attrs...)
}

// LogError logs a statement that resulted in an error
func (l *SQLLogger) LogError(query string, args []any, duration time.Duration, err error) {
	if !l.IsEnabled() {
		return
	}

	l.logger.Error("sql",
		"ms", milliseconds(duration),
		"query", l.formatQuery(query),
		"args", l.formatArgs(args),
		"error", err)
}

// formatQuery collapses whitespace so multi-line statements log on one line
func (l *SQLLogger) formatQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// formatArgs formats the query arguments for logging
func (l *SQLLogger) formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}

	formatted := make([]string, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			formatted = append(formatted, fmt.Sprintf(`"%s"`, v))
		case nil:
			formatted = append(formatted, "NULL")
		default:
			formatted = append(formatted, fmt.Sprintf("%v", v))
		}
	}

	return "[" + strings.Join(formatted, ", ") + "]"
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
