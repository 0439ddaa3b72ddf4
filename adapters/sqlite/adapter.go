// Package sqlite implements the embedded single-file backend
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
)

// ErrUnavailable is the cause reported when the driver is not compiled in
var ErrUnavailable = errors.New("sqlite driver requires a cgo-enabled build")

// Config configures the embedded backend
type Config struct {
	Path  string
	Debug bool
}

// Adapter implements core.Adapter on a local SQLite file
type Adapter struct {
	core.Entities

	cfg       Config
	logger    *slog.Logger
	sqlLogger *SQLLogger

	mu        sync.RWMutex
	db        *sqlx.DB
	connected bool
}

// New creates a disconnected adapter for the database at cfg.Path
func New(cfg Config, logger *slog.Logger) *Adapter {
	logger = logging.OrDiscard(logger).With("adapter", core.ModeSQLite.String())
	a := &Adapter{
		cfg:       cfg,
		logger:    logger,
		sqlLogger: NewSQLLogger(logger, cfg.Debug),
	}
	a.Entities = core.NewEntities(a)
	return a
}

// Path returns the configured database file
func (a *Adapter) Path() string {
	return a.cfg.Path
}

// Mode identifies the backend
func (a *Adapter) Mode() core.Mode {
	return core.ModeSQLite
}

// Capabilities reports native transactions and no realtime
func (a *Adapter) Capabilities() core.Capabilities {
	return core.Capabilities{
		AtomicTransactions: true,
		Realtime:           false,
		ExportImport:       true,
	}
}

// dsn appends the connection pragmas understood by go-sqlite3. They apply
// to every pooled connection.
func dsn(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// Connect opens the file, creating it and its directory when needed, and
// applies the schema
func (a *Adapter) Connect(ctx context.Context) error {
	path := strings.TrimSpace(a.cfg.Path)
	if path == "" {
		return core.NewValidationError("sqlite path is required", nil)
	}
	if !Available() {
		return core.NewConnectionError("sqlite backend is not available in this build", ErrUnavailable)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected && a.db != nil {
		return nil
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return core.NewConnectionError("failed to create database directory", err)
			}
		}
	}

	db, err := sqlx.Open(driverName, dsn(path))
	if err != nil {
		return core.NewConnectionError("failed to open database", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return core.NewConnectionError("failed to open database", err)
	}

	if err := applySchema(ctx, db.DB); err != nil {
		db.Close()
		return core.NewConnectionError("failed to initialise database", err)
	}

	a.db = db
	a.connected = true
	a.logger.Info("connected", "path", path)
	return nil
}

// Disconnect checkpoints the WAL and closes the file. It is a no-op when
// not connected.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.connected = false
	if a.db == nil {
		return nil
	}

	db := a.db
	a.db = nil

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		a.logger.Warn("wal checkpoint failed", "error", err)
	}
	if err := db.Close(); err != nil {
		return core.NewConnectionError("failed to close database", err)
	}

	a.logger.Info("disconnected", "path", a.cfg.Path)
	return nil
}

// IsConnected reports whether the adapter holds an open database
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected && a.db != nil
}

func (a *Adapter) handle() *sqlx.DB {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return nil
	}
	return a.db
}

func (a *Adapter) store() (*store, *core.Error) {
	db := a.handle()
	if db == nil {
		return nil, core.NewConnectionError("sqlite adapter is not connected", core.ErrNotConnected)
	}
	return &store{q: db, logger: a.sqlLogger}, nil
}

// Select returns matching rows and the total count
func (a *Adapter) Select(ctx context.Context, table string, filters core.Filters, opts *core.SelectOptions) core.Result[[]core.Row] {
	s, err := a.store()
	if err != nil {
		return core.Fail[[]core.Row](err)
	}
	return s.Select(ctx, table, filters, opts)
}

// SelectOne returns the first matching row or nil data
func (a *Adapter) SelectOne(ctx context.Context, table string, filters core.Filters) core.Result[core.Row] {
	s, err := a.store()
	if err != nil {
		return core.Fail[core.Row](err)
	}
	return s.SelectOne(ctx, table, filters)
}

// Insert stores one row
func (a *Adapter) Insert(ctx context.Context, table string, data core.Row) core.Result[core.Row] {
	s, err := a.store()
	if err != nil {
		return core.Fail[core.Row](err)
	}
	return s.Insert(ctx, table, data)
}

// Update changes every matching row
func (a *Adapter) Update(ctx context.Context, table string, filters core.Filters, data core.Row) core.Result[core.Row] {
	s, err := a.store()
	if err != nil {
		return core.Fail[core.Row](err)
	}
	return s.Update(ctx, table, filters, data)
}

// Delete removes every matching row
func (a *Adapter) Delete(ctx context.Context, table string, filters core.Filters) core.Result[struct{}] {
	s, err := a.store()
	if err != nil {
		return core.Fail[struct{}](err)
	}
	return s.Delete(ctx, table, filters)
}

// Transaction runs fn inside a database transaction. A non-nil return from
// fn, or a panic, rolls every write back.
func (a *Adapter) Transaction(ctx context.Context, fn core.TxFunc) core.Result[struct{}] {
	db := a.handle()
	if db == nil {
		return core.Fail[struct{}](core.NewConnectionError("sqlite adapter is not connected", core.ErrNotConnected))
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Fail[struct{}](core.NewQueryError("failed to begin transaction", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(core.NewEntities(&store{q: tx, logger: a.sqlLogger})); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Warn("rollback failed", "error", rbErr)
		}
		return core.Fail[struct{}](core.AsError(err, core.QueryError, "transaction rolled back"))
	}

	if err := tx.Commit(); err != nil {
		return core.Fail[struct{}](core.NewQueryError("failed to commit transaction", err))
	}
	return core.Empty()
}

// Subscribe is not supported by the embedded backend. It logs a warning and
// returns a no-op unsubscribe.
func (a *Adapter) Subscribe(ctx context.Context, table string, handler core.ChangeHandler) core.Result[core.Unsubscribe] {
	a.logger.Warn("realtime subscriptions are not supported", "table", table)
	return core.OK[core.Unsubscribe](core.NoopUnsubscribe)
}

// ExportData reads every exported table in full
func (a *Adapter) ExportData(ctx context.Context) core.Result[core.Snapshot] {
	s, err := a.store()
	if err != nil {
		return core.Fail[core.Snapshot](err)
	}

	snapshot := make(core.Snapshot, len(core.ExportTables))
	for _, table := range core.ExportTables {
		r := s.Select(ctx, table, nil, nil)
		if r.Error != nil {
			return core.Fail[core.Snapshot](r.Error)
		}
		snapshot[table] = r.Data
		a.logger.Debug("exported table", "table", table, "rows", len(r.Data))
	}
	return core.OK(snapshot)
}

// ImportData upserts every row by id inside one transaction. Rows that fail
// are logged and counted; they do not stop the import.
func (a *Adapter) ImportData(ctx context.Context, data core.Snapshot) core.Result[core.ImportReport] {
	db := a.handle()
	if db == nil {
		return core.Fail[core.ImportReport](core.NewConnectionError("sqlite adapter is not connected", core.ErrNotConnected))
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Fail[core.ImportReport](core.NewQueryError("failed to begin import", err))
	}
	s := &store{q: tx, logger: a.sqlLogger}

	report := core.NewImportReport()
	for _, table := range core.ImportOrder(data) {
		rows := data[table]
		report.Imported[table] = 0
		for _, row := range rows {
			if err := s.upsert(ctx, table, row); err != nil {
				report.Failed[table]++
				a.logger.Warn("failed to import row", "table", table, "id", row[core.PrimaryKey], "error", err)
				continue
			}
			report.Imported[table]++
		}
		a.logger.Debug("imported table", "table", table, "rows", report.Imported[table], "failed", report.Failed[table])
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return core.Fail[core.ImportReport](core.NewQueryError("failed to commit import", err))
	}
	return core.OK(report)
}

// HealthCheck runs SELECT 1 with a short deadline
func (a *Adapter) HealthCheck(ctx context.Context) (healthy bool) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("health check panicked", "panic", fmt.Sprint(p))
			healthy = false
		}
	}()

	db := a.handle()
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		a.logger.Warn("health check failed", "error", err)
		return false
	}
	return one == 1
}

var _ core.Adapter = (*Adapter)(nil)
