package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/preslavrachev/sitebase/core"
)

// querier is satisfied by both *sqlx.DB and *sqlx.Tx
type querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// store implements core.CRUD over a database handle or an open transaction
type store struct {
	q      querier
	logger *SQLLogger
}

// loggedQuery runs a row-returning statement and scans every row
func (s *store) loggedQuery(ctx context.Context, query string, args []any) ([]core.Row, error) {
	start := time.Now()
	rows, err := s.q.QueryxContext(ctx, query, args...)
	if err != nil {
		s.logger.LogError(query, args, time.Since(start), err)
		return nil, err
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		s.logger.LogError(query, args, time.Since(start), err)
		return nil, err
	}

	s.logger.LogQuery(query, args, time.Since(start), len(result))
	return result, nil
}

// loggedExec runs a statement that returns no rows
func (s *store) loggedExec(ctx context.Context, query string, args []any) (sql.Result, error) {
	start := time.Now()
	result, err := s.q.ExecContext(ctx, query, args...)
	duration := time.Since(start)

	if err != nil {
		s.logger.LogError(query, args, duration, err)
		return nil, err
	}

	s.logger.LogExec(query, args, duration, result)
	return result, nil
}

// Select returns matching rows and the total count ignoring limit/offset
func (s *store) Select(ctx context.Context, table string, filters core.Filters, opts *core.SelectOptions) core.Result[[]core.Row] {
	if err := core.ValidateNames(table, filters); err != nil {
		return core.Fail[[]core.Row](err)
	}
	if err := opts.Validate(); err != nil {
		return core.Fail[[]core.Row](core.NewQueryError("invalid select options", err))
	}

	where, args := whereClause(filters)

	query := "SELECT * FROM " + quoteIdent(table) + where
	if opts != nil && opts.OrderBy != "" {
		query += fmt.Sprintf(" ORDER BY %s %s", quoteIdent(opts.OrderBy), strings.ToUpper(opts.Direction().String()))
	}
	if opts != nil && (opts.Limit > 0 || opts.Offset > 0) {
		limit := opts.Limit
		if limit == 0 {
			limit = -1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, opts.Offset)
	}

	rows, err := s.loggedQuery(ctx, query, args)
	if err != nil {
		return core.Fail[[]core.Row](core.NewQueryError("failed to select from "+table, err))
	}

	// Count total records (before applying limit/offset)
	countQuery := "SELECT COUNT(*) FROM " + quoteIdent(table) + where
	var total int64
	start := time.Now()
	if err := sqlx.GetContext(ctx, s.q, &total, countQuery, args...); err != nil {
		s.logger.LogError(countQuery, args, time.Since(start), err)
		return core.Fail[[]core.Row](core.NewQueryError("failed to count "+table, err))
	}
	s.logger.LogQuery(countQuery, args, time.Since(start), 1)

	return core.OKWithCount(rows, total)
}

// SelectOne returns the first matching row, or nil data when none match
func (s *store) SelectOne(ctx context.Context, table string, filters core.Filters) core.Result[core.Row] {
	if err := core.ValidateNames(table, filters); err != nil {
		return core.Fail[core.Row](err)
	}

	where, args := whereClause(filters)
	query := "SELECT * FROM " + quoteIdent(table) + where + " LIMIT 1"

	rows, err := s.loggedQuery(ctx, query, args)
	if err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to select from "+table, err))
	}
	if len(rows) == 0 {
		return core.OK[core.Row](nil)
	}
	return core.OK(rows[0])
}

// Insert stores one row, assigning an id when none is given, and returns it
// as stored
func (s *store) Insert(ctx context.Context, table string, data core.Row) core.Result[core.Row] {
	if len(data) == 0 {
		return core.Fail[core.Row](core.NewQueryError("insert into "+table+" requires at least one column", nil))
	}
	if err := core.ValidateNames(table, data); err != nil {
		return core.Fail[core.Row](err)
	}

	row := withID(data)
	columns := core.SortedKeys(row)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		placeholders[i] = "?"
		args[i] = bindValue(row[col])
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdent(table),
		joinIdents(columns),
		strings.Join(placeholders, ", "),
	)

	rows, err := s.loggedQuery(ctx, query, args)
	if err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to insert into "+table, err))
	}
	if len(rows) == 0 {
		return core.Fail[core.Row](core.NewQueryError("insert into "+table+" returned no row", nil))
	}
	return core.OK(rows[0])
}

// Update applies data to every matching row. Data is the first updated row
// and Count the number of rows updated.
func (s *store) Update(ctx context.Context, table string, filters core.Filters, data core.Row) core.Result[core.Row] {
	if len(data) == 0 {
		return core.Fail[core.Row](core.NewQueryError("update of "+table+" requires at least one column", nil))
	}
	if len(filters) == 0 {
		return core.Fail[core.Row](core.NewQueryError("update of "+table+" requires at least one filter", nil))
	}
	if err := core.ValidateNames(table, filters, data); err != nil {
		return core.Fail[core.Row](err)
	}
	data = withUpdatedAt(table, data, time.Now())

	columns := core.SortedKeys(data)
	setClauses := make([]string, len(columns))
	args := make([]any, 0, len(columns)+len(filters))
	for i, col := range columns {
		setClauses[i] = quoteIdent(col) + " = ?"
		args = append(args, bindValue(data[col]))
	}

	where, whereArgs := whereClause(filters)
	args = append(args, whereArgs...)

	query := fmt.Sprintf(
		"UPDATE %s SET %s%s RETURNING *",
		quoteIdent(table),
		strings.Join(setClauses, ", "),
		where,
	)

	rows, err := s.loggedQuery(ctx, query, args)
	if err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to update "+table, err))
	}

	var first core.Row
	if len(rows) > 0 {
		first = rows[0]
	}
	return core.OKWithCount(first, int64(len(rows)))
}

// Delete removes every matching row. Count is the number of rows removed.
func (s *store) Delete(ctx context.Context, table string, filters core.Filters) core.Result[struct{}] {
	if len(filters) == 0 {
		return core.Fail[struct{}](core.NewQueryError("delete from "+table+" requires at least one filter", nil))
	}
	if err := core.ValidateNames(table, filters); err != nil {
		return core.Fail[struct{}](err)
	}

	where, args := whereClause(filters)
	query := "DELETE FROM " + quoteIdent(table) + where

	result, err := s.loggedExec(ctx, query, args)
	if err != nil {
		return core.Fail[struct{}](core.NewQueryError("failed to delete from "+table, err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return core.Empty()
	}
	return core.OKWithCount(struct{}{}, affected)
}

// upsert inserts row or, when its id exists, overwrites the other columns
func (s *store) upsert(ctx context.Context, table string, data core.Row) error {
	if len(data) == 0 {
		return fmt.Errorf("empty row")
	}
	if err := core.ValidateNames(table, data); err != nil {
		return err
	}

	row := withID(data)
	columns := core.SortedKeys(row)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	var updates []string
	for i, col := range columns {
		placeholders[i] = "?"
		args[i] = bindValue(row[col])
		if col != core.PrimaryKey {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(col), quoteIdent(col)))
		}
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) %s",
		quoteIdent(table),
		joinIdents(columns),
		strings.Join(placeholders, ", "),
		quoteIdent(core.PrimaryKey),
		conflict,
	)

	_, err := s.loggedExec(ctx, query, args)
	return err
}

// whereClause builds an AND-combined equality predicate in stable column
// order. A nil value matches NULL.
func whereClause(filters core.Filters) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	conditions := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, col := range core.SortedKeys(filters) {
		value := filters[col]
		if value == nil {
			conditions = append(conditions, quoteIdent(col)+" IS NULL")
			continue
		}
		conditions = append(conditions, quoteIdent(col)+" = ?")
		args = append(args, bindValue(value))
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// scanRows reads every row into a column map
func scanRows(rows *sqlx.Rows) ([]core.Row, error) {
	result := []core.Row{}
	for rows.Next() {
		values := make(map[string]any)
		if err := rows.MapScan(values); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(core.Row, len(values))
		for col, v := range values {
			row[col] = columnValue(v)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// columnValue converts driver values to the JSON-friendly forms used in rows
func columnValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return core.NewTimestamp(t).String()
	default:
		return v
	}
}

// bindValue converts row values to something the driver accepts. Nested
// objects and arrays are stored as JSON text.
func bindValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, []byte:
		return v
	case core.ID:
		return string(t)
	case core.Timestamp:
		return t.String()
	case time.Time:
		return core.NewTimestamp(t).String()
	case json.Number:
		return t.String()
	case map[string]any, []any, core.Row:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return v
	}
}

// withUpdatedAt stamps updated_at on tables that track it, unless the
// caller set it
func withUpdatedAt(table string, data core.Row, now time.Time) core.Row {
	if !core.TracksUpdates(table) {
		return data
	}
	if _, ok := data[core.UpdatedAtColumn]; ok {
		return data
	}
	row := make(core.Row, len(data)+1)
	for k, v := range data {
		row[k] = v
	}
	row[core.UpdatedAtColumn] = now.UTC().Format(timestampLayout)
	return row
}

// withID copies data, assigning a new uuid when the id is missing or empty
func withID(data core.Row) core.Row {
	row := make(core.Row, len(data)+1)
	for k, v := range data {
		row[k] = v
	}
	if id := core.IDFrom(row[core.PrimaryKey]); id.IsZero() {
		row[core.PrimaryKey] = uuid.NewString()
	}
	return row
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}
