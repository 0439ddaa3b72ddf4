// Package migrate copies data between the embedded and hosted backends
package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
)

// Direction selects which way data flows
type Direction string

const (
	SQLiteToSupabase Direction = "sqlite-to-supabase"
	SupabaseToSQLite Direction = "supabase-to-sqlite"
	Bidirectional    Direction = "bidirectional"
)

// DefaultDirection is used when no direction is given
const DefaultDirection = Bidirectional

// Directions lists the accepted values
var Directions = []Direction{SQLiteToSupabase, SupabaseToSQLite, Bidirectional}

// ParseDirection accepts one of Directions; the empty string means the
// default. Anything else is a ValidationError naming the valid set.
func ParseDirection(s string) (Direction, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultDirection, nil
	}
	for _, d := range Directions {
		if Direction(s) == d {
			return d, nil
		}
	}
	valid := make([]string, len(Directions))
	for i, d := range Directions {
		valid[i] = string(d)
	}
	return "", core.NewValidationError(
		fmt.Sprintf("invalid direction %q, expected one of: %s", s, strings.Join(valid, ", ")), nil)
}

// TableReport counts one table through a leg
type TableReport struct {
	Table       string `json:"table"`
	Exported    int    `json:"exported"`
	Imported    int    `json:"imported"`
	Failed      int    `json:"failed"`
	Destination int64  `json:"destination"`
}

// Verified reports whether the destination holds exactly as many rows as
// were exported
func (t TableReport) Verified() bool {
	return t.Destination == int64(t.Exported)
}

// LegReport is the outcome of copying one backend into another
type LegReport struct {
	From     core.Mode     `json:"from"`
	To       core.Mode     `json:"to"`
	Tables   []TableReport `json:"tables"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Passed is true when every table verified and nothing failed
func (l LegReport) Passed() bool {
	for _, t := range l.Tables {
		if t.Failed > 0 || !t.Verified() {
			return false
		}
	}
	return len(l.Warnings) == 0
}

// Totals sums exported, imported and failed rows
func (l LegReport) Totals() (exported, imported, failed int) {
	for _, t := range l.Tables {
		exported += t.Exported
		imported += t.Imported
		failed += t.Failed
	}
	return exported, imported, failed
}

// Report is the outcome of a sync
type Report struct {
	Direction Direction   `json:"direction"`
	Legs      []LegReport `json:"legs"`
}

// Passed is true when every leg passed
func (r Report) Passed() bool {
	for _, leg := range r.Legs {
		if !leg.Passed() {
			return false
		}
	}
	return true
}

// Migrator runs migrations with a logger
type Migrator struct {
	logger *slog.Logger
}

// New creates a Migrator
func New(logger *slog.Logger) *Migrator {
	return &Migrator{logger: logging.OrDiscard(logger).With("component", "migrate")}
}

// Run exports src, imports into dst and verifies destination counts.
// Row failures and verification mismatches become warnings; only a failed
// export or import aborts.
func (m *Migrator) Run(ctx context.Context, src, dst core.Adapter) (LegReport, error) {
	start := time.Now()
	leg := LegReport{From: src.Mode(), To: dst.Mode()}
	logger := m.logger.With("from", leg.From, "to", leg.To)

	exported := src.ExportData(ctx)
	if exported.Error != nil {
		return leg, fmt.Errorf("export from %s: %w", leg.From, exported.Error)
	}
	for _, table := range core.ImportOrder(exported.Data) {
		logger.Info("exported", "table", table, "rows", len(exported.Data[table]))
	}

	imported := dst.ImportData(ctx, exported.Data)
	if imported.Error != nil {
		return leg, fmt.Errorf("import into %s: %w", leg.To, imported.Error)
	}

	for _, table := range core.ImportOrder(exported.Data) {
		tr := TableReport{
			Table:    table,
			Exported: len(exported.Data[table]),
			Imported: imported.Data.Imported[table],
			Failed:   imported.Data.Failed[table],
		}
		if tr.Failed > 0 {
			leg.Warnings = append(leg.Warnings, fmt.Sprintf("%s: %d rows failed to import", table, tr.Failed))
		}

		count := dst.Select(ctx, table, nil, &core.SelectOptions{Limit: 1})
		switch {
		case count.Error != nil:
			leg.Warnings = append(leg.Warnings, fmt.Sprintf("%s: failed to verify: %v", table, count.Error))
			tr.Destination = -1
		case count.Count == nil:
			tr.Destination = int64(len(count.Data))
		default:
			tr.Destination = *count.Count
		}
		if tr.Destination >= 0 && !tr.Verified() {
			leg.Warnings = append(leg.Warnings,
				fmt.Sprintf("%s: destination has %d rows, exported %d", table, tr.Destination, tr.Exported))
		}

		logger.Info("verified", "table", table, "exported", tr.Exported, "imported", tr.Imported,
			"failed", tr.Failed, "destination", tr.Destination)
		leg.Tables = append(leg.Tables, tr)
	}

	for _, w := range leg.Warnings {
		logger.Warn(w)
	}
	leg.Duration = time.Since(start)
	return leg, nil
}

// Sync runs one or both legs. Bidirectional runs embedded to hosted first,
// then hosted to embedded; both upsert by id, so the last leg wins where
// a row differs.
func (m *Migrator) Sync(ctx context.Context, direction Direction, local, hosted core.Adapter) (Report, error) {
	if direction == "" {
		direction = DefaultDirection
	}
	report := Report{Direction: direction}

	var legs [][2]core.Adapter
	switch direction {
	case SQLiteToSupabase:
		legs = [][2]core.Adapter{{local, hosted}}
	case SupabaseToSQLite:
		legs = [][2]core.Adapter{{hosted, local}}
	case Bidirectional:
		legs = [][2]core.Adapter{{local, hosted}, {hosted, local}}
	default:
		_, err := ParseDirection(string(direction))
		return report, err
	}

	for _, pair := range legs {
		leg, err := m.Run(ctx, pair[0], pair[1])
		report.Legs = append(report.Legs, leg)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// ConnectAll connects every adapter, stopping at the first failure
func ConnectAll(ctx context.Context, adapters ...core.Adapter) error {
	for _, a := range adapters {
		if err := a.Connect(ctx); err != nil {
			return fmt.Errorf("connect %s: %w", a.Mode(), err)
		}
	}
	return nil
}

// DisconnectAll disconnects every adapter, logging failures
func DisconnectAll(ctx context.Context, logger *slog.Logger, adapters ...core.Adapter) {
	logger = logging.OrDiscard(logger)
	for _, a := range adapters {
		if err := a.Disconnect(ctx); err != nil {
			logger.Warn("failed to disconnect", "mode", a.Mode(), "error", err)
		}
	}
}

// WriteSummary prints a per-leg table of row counts followed by any warnings
func (r Report) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "direction: %s\n", r.Direction)
	for _, leg := range r.Legs {
		fmt.Fprintf(tw, "\n%s -> %s (%s)\n", leg.From, leg.To, leg.Duration.Round(time.Millisecond))
		fmt.Fprintln(tw, "TABLE\tEXPORTED\tIMPORTED\tFAILED\tDESTINATION")
		for _, t := range leg.Tables {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", t.Table, t.Exported, t.Imported, t.Failed, t.Destination)
		}
		exported, imported, failed := leg.Totals()
		fmt.Fprintf(tw, "total\t%d\t%d\t%d\t\n", exported, imported, failed)
		for _, warning := range leg.Warnings {
			fmt.Fprintf(tw, "warning: %s\n", warning)
		}
	}

	status := "passed"
	if !r.Passed() {
		status = "completed with warnings"
	}
	fmt.Fprintf(tw, "\nsync %s\n", status)
	return tw.Flush()
}
