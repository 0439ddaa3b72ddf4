package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/preslavrachev/sitebase/adapters/supabase"
	"github.com/preslavrachev/sitebase/core"
)

func (c *cli) schemaCmd() *cobra.Command {
	var dbURL string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the tables on the hosted Postgres database",
		Long: `Apply the schema to the Postgres database behind Supabase, add every
table to the realtime publication and reload the PostgREST schema cache.
The embedded backend creates its schema on connect and needs no bootstrap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbURL == "" {
				dbURL = c.cfg.Supabase.DBURL
			}
			if err := supabase.Bootstrap(cmd.Context(), dbURL, c.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db-url", "", "Postgres connection string (default $SUPABASE_DB_URL)")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect to the selected backend and report its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := c.newProvider()
			defer p.Close(ctx)

			_, connectErr := p.Adapter(ctx)
			if err := writeJSON(cmd.OutOrStdout(), p.Status(ctx)); err != nil {
				return err
			}
			return connectErr
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every table of the selected backend as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := c.newProvider()
			defer p.Close(ctx)

			adapter, err := p.Adapter(ctx)
			if err != nil {
				return err
			}
			res := adapter.ExportData(ctx)
			if !res.OK() {
				return res.Error
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			if err := writeJSON(out, res.Data); err != nil {
				return fmt.Errorf("write export: %w", err)
			}

			for _, table := range core.ExportTables {
				c.logger.Info("exported", "table", table, "rows", len(res.Data[table]))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Upsert rows from an export file into the selected backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			snapshot, err := readSnapshot(args[0])
			if err != nil {
				return err
			}

			p := c.newProvider()
			defer p.Close(ctx)

			adapter, err := p.Adapter(ctx)
			if err != nil {
				return err
			}
			res := adapter.ImportData(ctx, snapshot)
			if !res.OK() {
				return res.Error
			}
			return writeJSON(cmd.OutOrStdout(), res.Data)
		},
	}
}

// readSnapshot loads an export file, "-" meaning stdin
func readSnapshot(path string) (core.Snapshot, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, core.NewValidationError("cannot open import file", err)
		}
		defer f.Close()
		r = f
	}

	var snapshot core.Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, core.NewValidationError("import file is not a valid export", err)
	}
	return snapshot, nil
}

// writeJSON writes v indented by two spaces
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
