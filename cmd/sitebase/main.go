// Command sitebase runs the construction data service: the admin API, schema
// bootstrap, and one-shot export, import and status commands
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/preslavrachev/sitebase/config"
	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
	"github.com/preslavrachev/sitebase/provider"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := &cli{}
	err := c.rootCmd().ExecuteContext(ctx)
	stop()
	c.close()

	if err != nil {
		os.Exit(1)
	}
}

// cli holds state shared by the subcommands. Configuration is loaded once
// the command line has been parsed.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer

	mode        string
	preferences string
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sitebase",
		Short:         "Construction management data service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}

	root.PersistentFlags().StringVar(&c.mode, "mode", "", "database mode override: sqlite or supabase")
	root.PersistentFlags().StringVar(&c.preferences, "preferences", "", "preferences file (default: user config dir)")

	root.AddCommand(
		c.serveCmd(),
		c.schemaCmd(),
		c.statusCmd(),
		c.exportCmd(),
		c.importCmd(),
	)
	return root
}

func (c *cli) init() error {
	if c.mode != "" {
		if _, ok := core.ParseMode(c.mode); !ok {
			return core.NewValidationError("unknown --mode "+c.mode+", expected sqlite or supabase", nil)
		}
	}
	c.cfg = config.LoadConfig()
	c.logger, c.closer = logging.New(c.cfg.Log)
	return nil
}

func (c *cli) close() {
	if c.closer != nil {
		c.closer.Close()
	}
}

// preferenceStore returns the file store for the selected mode, falling back
// to memory when no user config directory exists
func (c *cli) preferenceStore() provider.PreferenceStore {
	path := c.preferences
	if path == "" {
		var err error
		path, err = provider.DefaultPreferencesPath()
		if err != nil {
			c.logger.Warn("no preferences directory, mode changes will not persist", "error", err)
			return provider.NewMemoryStore("")
		}
	}
	return provider.NewFileStore(path)
}

func (c *cli) newProvider() *provider.Provider {
	return provider.New(provider.Options{
		Override: c.mode,
		Store:    c.preferenceStore(),
		Factory:  provider.NewFactory(c.cfg, c.logger),
		Logger:   c.logger,
	})
}
