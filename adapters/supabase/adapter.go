// Package supabase implements the hosted backend on top of PostgREST and
// the realtime websocket service
package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
)

// ExportPageSize matches the default PostgREST max-rows cap
const ExportPageSize = 1000

// importBatchSize is the number of rows sent per upsert request
const importBatchSize = 500

// Config configures the hosted backend
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	HTTPTimeout    time.Duration
}

// key returns the service key when set, else the anon key
func (c Config) key() string {
	if c.ServiceRoleKey != "" {
		return c.ServiceRoleKey
	}
	return c.AnonKey
}

// Validate checks the settings without any network I/O
func (c Config) Validate() *core.Error {
	if strings.TrimSpace(c.URL) == "" {
		return core.NewValidationError("supabase url is required", nil)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return core.NewValidationError("supabase url must be an http(s) url", err)
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		return core.NewValidationError("supabase anon key is required", nil)
	}
	return nil
}

// Adapter implements core.Adapter against a hosted project
type Adapter struct {
	core.Entities

	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	client    *Client
	connected bool
	channels  map[*channel]struct{}
}

// New creates a disconnected adapter
func New(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	a := &Adapter{
		cfg:      cfg,
		logger:   logging.OrDiscard(logger).With("adapter", core.ModeSupabase.String()),
		channels: make(map[*channel]struct{}),
	}
	a.Entities = core.NewEntities(a)
	return a
}

// Mode identifies the backend
func (a *Adapter) Mode() core.Mode {
	return core.ModeSupabase
}

// Capabilities reports realtime support and non-atomic transactions
func (a *Adapter) Capabilities() core.Capabilities {
	return core.Capabilities{
		AtomicTransactions: false,
		Realtime:           true,
		ExportImport:       true,
	}
}

// Connect validates the settings, builds the client and probes the
// companies table. An empty table counts as reachable.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected && a.client != nil {
		return nil
	}

	client := NewClient(a.cfg.URL, a.cfg.key(), a.cfg.HTTPTimeout)
	if err := probe(ctx, client); err != nil {
		return core.NewConnectionError("failed to reach supabase", err)
	}

	a.client = client
	a.connected = true
	a.logger.Info("connected", "url", a.cfg.URL, "service_role", a.cfg.ServiceRoleKey != "")
	return nil
}

func probe(ctx context.Context, client *Client) error {
	_, err := client.From(core.TableCompanies).Select(core.PrimaryKey).Limit(1).Single().Execute(ctx)
	if err != nil && !IsNoRows(err) {
		return err
	}
	return nil
}

// Disconnect closes open subscriptions and drops the client
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	channels := a.channels
	a.channels = make(map[*channel]struct{})
	wasConnected := a.connected
	a.client = nil
	a.connected = false
	a.mu.Unlock()

	for ch := range channels {
		ch.close()
	}
	if wasConnected {
		a.logger.Info("disconnected")
	}
	return nil
}

// IsConnected reports whether Connect succeeded and the client is held
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected && a.client != nil
}

func (a *Adapter) rest() (*Client, *core.Error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected || a.client == nil {
		return nil, core.NewConnectionError("supabase adapter is not connected", core.ErrNotConnected)
	}
	return a.client, nil
}

// Select returns matching rows with the exact total from Content-Range
func (a *Adapter) Select(ctx context.Context, table string, filters core.Filters, opts *core.SelectOptions) core.Result[[]core.Row] {
	client, cerr := a.rest()
	if cerr != nil {
		return core.Fail[[]core.Row](cerr)
	}
	if err := core.ValidateNames(table, filters); err != nil {
		return core.Fail[[]core.Row](err)
	}
	if err := opts.Validate(); err != nil {
		return core.Fail[[]core.Row](core.NewQueryError("invalid select options", err))
	}

	req := client.From(table).Select("*").Match(filters).Count()
	if opts != nil {
		if opts.OrderBy != "" {
			req.Order(opts.OrderBy, opts.Direction() == core.SortAsc)
		}
		if opts.Limit > 0 {
			req.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			req.Offset(opts.Offset)
		}
	}

	resp, err := req.Execute(ctx)
	if err != nil {
		return core.Fail[[]core.Row](core.NewQueryError("failed to select from "+table, err))
	}

	rows := []core.Row{}
	if err := resp.Decode(&rows); err != nil {
		return core.Fail[[]core.Row](core.NewQueryError("failed to select from "+table, err))
	}

	if resp.Count == nil {
		return core.OK(rows)
	}
	return core.OKWithCount(rows, *resp.Count)
}

// SelectOne returns the first matching row, or nil data when none match
func (a *Adapter) SelectOne(ctx context.Context, table string, filters core.Filters) core.Result[core.Row] {
	client, cerr := a.rest()
	if cerr != nil {
		return core.Fail[core.Row](cerr)
	}
	if err := core.ValidateNames(table, filters); err != nil {
		return core.Fail[core.Row](err)
	}

	resp, err := client.From(table).Select("*").Match(filters).Limit(1).Single().Execute(ctx)
	if IsNoRows(err) {
		return core.OK[core.Row](nil)
	}
	if err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to select from "+table, err))
	}

	var row core.Row
	if err := resp.Decode(&row); err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to select from "+table, err))
	}
	return core.OK(row)
}

// Insert stores one row and returns the representation the server stored
func (a *Adapter) Insert(ctx context.Context, table string, data core.Row) core.Result[core.Row] {
	client, cerr := a.rest()
	if cerr != nil {
		return core.Fail[core.Row](cerr)
	}
	if len(data) == 0 {
		return core.Fail[core.Row](core.NewQueryError("insert into "+table+" requires at least one column", nil))
	}
	if err := core.ValidateNames(table, data); err != nil {
		return core.Fail[core.Row](err)
	}

	resp, err := client.From(table).Insert(data).Returning().Single().Execute(ctx)
	if err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to insert into "+table, err))
	}

	var row core.Row
	if err := resp.Decode(&row); err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to insert into "+table, err))
	}
	return core.OK(row)
}

// Update patches every matching row. Data is the first updated row and
// Count the number of rows updated.
func (a *Adapter) Update(ctx context.Context, table string, filters core.Filters, data core.Row) core.Result[core.Row] {
	client, cerr := a.rest()
	if cerr != nil {
		return core.Fail[core.Row](cerr)
	}
	if len(data) == 0 {
		return core.Fail[core.Row](core.NewQueryError("update of "+table+" requires at least one column", nil))
	}
	if len(filters) == 0 {
		return core.Fail[core.Row](core.NewQueryError("update of "+table+" requires at least one filter", nil))
	}
	if err := core.ValidateNames(table, filters, data); err != nil {
		return core.Fail[core.Row](err)
	}

	resp, err := client.From(table).Update(data).Match(filters).Returning().Execute(ctx)
	if err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to update "+table, err))
	}

	var rows []core.Row
	if err := resp.Decode(&rows); err != nil {
		return core.Fail[core.Row](core.NewQueryError("failed to update "+table, err))
	}

	var first core.Row
	if len(rows) > 0 {
		first = rows[0]
	}
	return core.OKWithCount(first, int64(len(rows)))
}

// Delete removes every matching row. Count comes from Content-Range.
func (a *Adapter) Delete(ctx context.Context, table string, filters core.Filters) core.Result[struct{}] {
	client, cerr := a.rest()
	if cerr != nil {
		return core.Fail[struct{}](cerr)
	}
	if len(filters) == 0 {
		return core.Fail[struct{}](core.NewQueryError("delete from "+table+" requires at least one filter", nil))
	}
	if err := core.ValidateNames(table, filters); err != nil {
		return core.Fail[struct{}](err)
	}

	resp, err := client.From(table).Delete().Match(filters).Count().Execute(ctx)
	if err != nil {
		return core.Fail[struct{}](core.NewQueryError("failed to delete from "+table, err))
	}

	if resp.Count == nil {
		return core.Empty()
	}
	return core.OKWithCount(struct{}{}, *resp.Count)
}

// Transaction runs fn against the adapter itself. PostgREST has no
// multi-request transactions, so writes made before a failure stay applied.
func (a *Adapter) Transaction(ctx context.Context, fn core.TxFunc) core.Result[struct{}] {
	if _, cerr := a.rest(); cerr != nil {
		return core.Fail[struct{}](cerr)
	}

	a.logger.Debug("running transaction callback without atomicity")
	if err := fn(core.NewEntities(a)); err != nil {
		return core.Fail[struct{}](core.AsError(err, core.QueryError, "transaction callback failed"))
	}
	return core.Empty()
}

// Subscribe opens a realtime channel for table. Each call gets its own
// socket; the returned function leaves the channel and closes it.
func (a *Adapter) Subscribe(ctx context.Context, table string, handler core.ChangeHandler) core.Result[core.Unsubscribe] {
	if _, cerr := a.rest(); cerr != nil {
		return core.Fail[core.Unsubscribe](cerr)
	}
	if !core.ValidIdentifier(table) {
		return core.Fail[core.Unsubscribe](core.NewQueryError(fmt.Sprintf("invalid table name %q", table), nil))
	}
	if handler == nil {
		return core.Fail[core.Unsubscribe](core.NewQueryError("change handler is required", nil))
	}

	wsURL, err := RealtimeURL(a.cfg.URL, a.cfg.key())
	if err != nil {
		return core.Fail[core.Unsubscribe](core.NewConnectionError("invalid realtime url", err))
	}

	ch, err := dialChannel(ctx, wsURL, a.cfg.key(), table, handler, a.logger)
	if err != nil {
		return core.Fail[core.Unsubscribe](core.NewConnectionError("failed to subscribe to "+table, err))
	}

	a.mu.Lock()
	a.channels[ch] = struct{}{}
	a.mu.Unlock()
	a.logger.Info("subscribed", "table", table)

	return core.OK[core.Unsubscribe](func() {
		a.mu.Lock()
		delete(a.channels, ch)
		a.mu.Unlock()
		ch.close()
	})
}

// ExportData pages through every exported table ordered by id
func (a *Adapter) ExportData(ctx context.Context) core.Result[core.Snapshot] {
	client, cerr := a.rest()
	if cerr != nil {
		return core.Fail[core.Snapshot](cerr)
	}

	snapshot := make(core.Snapshot, len(core.ExportTables))
	for _, table := range core.ExportTables {
		rows := []core.Row{}
		for offset := 0; ; offset += ExportPageSize {
			resp, err := client.From(table).
				Select("*").
				Order(core.PrimaryKey, true).
				Range(offset, offset+ExportPageSize-1).
				Execute(ctx)
			if err != nil {
				return core.Fail[core.Snapshot](core.NewQueryError("failed to export "+table, err))
			}

			var page []core.Row
			if err := resp.Decode(&page); err != nil {
				return core.Fail[core.Snapshot](core.NewQueryError("failed to export "+table, err))
			}
			rows = append(rows, page...)
			if len(page) < ExportPageSize {
				break
			}
		}
		snapshot[table] = rows
		a.logger.Debug("exported table", "table", table, "rows", len(rows))
	}
	return core.OK(snapshot)
}

// ImportData upserts rows by id in batches. A failed batch is retried row
// by row so that one bad row does not sink its neighbours.
func (a *Adapter) ImportData(ctx context.Context, data core.Snapshot) core.Result[core.ImportReport] {
	client, cerr := a.rest()
	if cerr != nil {
		return core.Fail[core.ImportReport](cerr)
	}

	report := core.NewImportReport()
	for _, table := range core.ImportOrder(data) {
		rows := data[table]
		report.Imported[table] = 0
		if !core.ValidIdentifier(table) {
			report.Failed[table] = len(rows)
			a.logger.Warn("skipping table with invalid name", "table", table)
			continue
		}

		for start := 0; start < len(rows); start += importBatchSize {
			end := min(start+importBatchSize, len(rows))
			batch := rows[start:end]

			_, err := client.From(table).Upsert(batch).Execute(ctx)
			if err == nil {
				report.Imported[table] += len(batch)
				continue
			}
			if ctx.Err() != nil {
				return core.Fail[core.ImportReport](core.NewQueryError("import cancelled", ctx.Err()))
			}

			a.logger.Debug("batch upsert failed, retrying row by row", "table", table, "error", err)
			for _, row := range batch {
				if _, err := client.From(table).Upsert(row).Execute(ctx); err != nil {
					report.Failed[table]++
					a.logger.Warn("failed to import row", "table", table, "id", row[core.PrimaryKey], "error", err)
					continue
				}
				report.Imported[table]++
			}
		}
		a.logger.Debug("imported table", "table", table, "rows", report.Imported[table], "failed", report.Failed[table])
	}
	return core.OK(report)
}

// HealthCheck repeats the connect probe with a short deadline
func (a *Adapter) HealthCheck(ctx context.Context) (healthy bool) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("health check panicked", "panic", fmt.Sprint(p))
			healthy = false
		}
	}()

	client, cerr := a.rest()
	if cerr != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := probe(ctx, client); err != nil {
		a.logger.Warn("health check failed", "error", err)
		return false
	}
	return true
}

var _ core.Adapter = (*Adapter)(nil)
