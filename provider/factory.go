package provider

import (
	"fmt"
	"log/slog"

	"github.com/preslavrachev/sitebase/adapters/sqlite"
	"github.com/preslavrachev/sitebase/adapters/supabase"
	"github.com/preslavrachev/sitebase/config"
	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
)

// Factory builds a disconnected adapter for mode
type Factory func(mode core.Mode) (core.Adapter, error)

// NewFactory returns the factory for the configured backends. When the
// embedded driver is not compiled in, asking for it yields a ConnectionError.
func NewFactory(cfg *config.Config, logger *slog.Logger) Factory {
	logger = logging.OrDiscard(logger)
	return func(mode core.Mode) (core.Adapter, error) {
		switch mode {
		case core.ModeSQLite:
			if !sqlite.Available() {
				logger.Warn("sqlite backend requested but not available in this build")
				return nil, core.NewConnectionError("sqlite backend is not available in this build", sqlite.ErrUnavailable)
			}
			return sqlite.New(sqlite.Config{
				Path:  cfg.SQLite.Path,
				Debug: cfg.DebugEnabled,
			}, logger), nil
		case core.ModeSupabase:
			return supabase.New(supabase.Config{
				URL:            cfg.Supabase.URL,
				AnonKey:        cfg.Supabase.AnonKey,
				ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
				HTTPTimeout:    cfg.Supabase.HTTPTimeout,
			}, logger), nil
		default:
			return nil, core.NewValidationError(fmt.Sprintf("unknown database mode %q", mode), nil)
		}
	}
}
