package core

import (
	"context"
	"encoding/json"
	"strings"
)

// Mode identifies a backend implementation
type Mode string

const (
	// ModeSQLite is the embedded single-file store
	ModeSQLite Mode = "sqlite"
	// ModeSupabase is the hosted relational service reached over HTTPS
	ModeSupabase Mode = "supabase"
)

// DefaultMode is used when no configuration source selects a backend
const DefaultMode = ModeSupabase

// ParseMode normalises s and reports whether it names a known backend
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSQLite:
		return ModeSQLite, true
	case ModeSupabase:
		return ModeSupabase, true
	}
	return "", false
}

// String returns the mode name
func (m Mode) String() string {
	return string(m)
}

// Row is a flat record: column name to value
type Row map[string]any

// Filters is an equality filter, AND-combined across keys
type Filters map[string]any

// Snapshot maps table names to their rows, as produced by ExportData
type Snapshot map[string][]Row

// ImportReport counts imported and failed rows per table
type ImportReport struct {
	Imported map[string]int `json:"imported"`
	Failed   map[string]int `json:"failed"`
}

// NewImportReport returns a report with initialised maps
func NewImportReport() ImportReport {
	return ImportReport{
		Imported: make(map[string]int),
		Failed:   make(map[string]int),
	}
}

// ChangeType is the kind of row change delivered by a subscription
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a row-level change pushed by a realtime backend
type ChangeEvent struct {
	Table           string          `json:"table"`
	Schema          string          `json:"schema"`
	Type            ChangeType      `json:"type"`
	Record          Row             `json:"record,omitempty"`
	OldRecord       Row             `json:"old_record,omitempty"`
	CommitTimestamp string          `json:"commit_timestamp,omitempty"`
	Raw             json.RawMessage `json:"-"`
}

// ChangeHandler receives change events
type ChangeHandler func(ChangeEvent)

// Unsubscribe tears down a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Capabilities describes optional guarantees of a backend
type Capabilities struct {
	// AtomicTransactions is true when Transaction commits or rolls back
	// every write issued by the callback as a unit
	AtomicTransactions bool `json:"atomic_transactions"`
	// Realtime is true when Subscribe delivers change events
	Realtime bool `json:"realtime"`
	// ExportImport is true when ExportData and ImportData are implemented
	ExportImport bool `json:"export_import"`
}

// CRUD is the generic record surface shared by adapters and transactions
type CRUD interface {
	// Select returns all rows matching filters. Count is the total number of
	// matching rows ignoring limit and offset.
	Select(ctx context.Context, table string, filters Filters, opts *SelectOptions) Result[[]Row]
	// SelectOne returns the single matching row, or nil data when none match
	SelectOne(ctx context.Context, table string, filters Filters) Result[Row]
	// Insert stores one row and returns it as stored, generated columns included
	Insert(ctx context.Context, table string, data Row) Result[Row]
	// Update applies data to every row matching filters. Data holds the first
	// updated row and Count the number of rows updated.
	Update(ctx context.Context, table string, filters Filters, data Row) Result[Row]
	// Delete removes every row matching filters. Count holds the number of
	// rows removed.
	Delete(ctx context.Context, table string, filters Filters) Result[struct{}]
}

// TxFunc is the callback run by Adapter.Transaction
type TxFunc func(tx Entities) error

// Adapter is the contract both backends implement
type Adapter interface {
	CRUD
	EntityStore

	Mode() Mode
	Capabilities() Capabilities

	// Connect establishes the session. On failure it returns a ConnectionError
	// or ValidationError and leaves the adapter disconnected.
	Connect(ctx context.Context) error
	// Disconnect releases the session. It is safe to call at any time.
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Transaction runs fn. Writes are atomic only when
	// Capabilities().AtomicTransactions is true.
	Transaction(ctx context.Context, fn TxFunc) Result[struct{}]
	Subscribe(ctx context.Context, table string, handler ChangeHandler) Result[Unsubscribe]
	ExportData(ctx context.Context) Result[Snapshot]
	ImportData(ctx context.Context, data Snapshot) Result[ImportReport]

	// HealthCheck runs a cheap probe. It never panics.
	HealthCheck(ctx context.Context) bool
}

// NoopUnsubscribe is returned by backends without realtime support
func NoopUnsubscribe() {}
