// Command dbsync copies data between the embedded and hosted backends
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/preslavrachev/sitebase/config"
	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
	"github.com/preslavrachev/sitebase/migrate"
	"github.com/preslavrachev/sitebase/provider"
)

func main() {
	cfg := config.LoadConfig()
	logger, closer := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(provider.NewFactory(cfg, logger), logger).ExecuteContext(ctx)
	stop()
	closer.Close()

	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the dbsync command around factory
func newRootCmd(factory provider.Factory, logger *slog.Logger) *cobra.Command {
	var timeout time.Duration

	directions := make([]string, len(migrate.Directions))
	for i, d := range migrate.Directions {
		directions[i] = string(d)
	}

	cmd := &cobra.Command{
		Use:   "dbsync [direction]",
		Short: "Copy data between the local SQLite file and Supabase",
		Long: `Copy every table between the embedded and hosted backends.

Directions:
  sqlite-to-supabase   push local data to the hosted backend
  supabase-to-sqlite   pull hosted data into the local file
  bidirectional        push, then pull (default); rows are upserted by id,
                       so hosted values win where both sides differ`,
		Args:         cobra.MaximumNArgs(1),
		ValidArgs:    directions,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) > 0 {
				arg = args[0]
			}
			direction, err := migrate.ParseDirection(arg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runSync(ctx, cmd.OutOrStdout(), factory, logger, direction)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the sync after this long (0 means no limit)")
	cmd.SetHelpTemplate(cmd.HelpTemplate() + "\nValid directions: " + strings.Join(directions, ", ") + "\n")
	return cmd
}

// runSync connects both backends, runs the sync and prints the report
func runSync(ctx context.Context, out io.Writer, factory provider.Factory, logger *slog.Logger, direction migrate.Direction) error {
	logger = logging.OrDiscard(logger)

	local, err := factory(core.ModeSQLite)
	if err != nil {
		return err
	}
	hosted, err := factory(core.ModeSupabase)
	if err != nil {
		return err
	}

	defer migrate.DisconnectAll(context.WithoutCancel(ctx), logger, local, hosted)
	if err := migrate.ConnectAll(ctx, local, hosted); err != nil {
		return err
	}

	fmt.Fprintf(out, "syncing %s\n", direction)
	report, err := migrate.New(logger).Sync(ctx, direction, local, hosted)
	if len(report.Legs) > 0 {
		if werr := report.WriteSummary(out); werr != nil {
			logger.Warn("failed to write summary", "error", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("sync %s: %w", direction, err)
	}
	return nil
}
