package supabase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
)

// SchemaStatements is the Postgres DDL for the hosted tables. Ids are text
// with a generated uuid default so rows keep their ids across backends.
var SchemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		address TEXT,
		subscription_tier TEXT NOT NULL DEFAULT 'basic',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		company_id TEXT REFERENCES companies(id) ON DELETE CASCADE,
		avatar_url TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'planning',
		start_date TEXT,
		end_date TEXT,
		budget DOUBLE PRECISION NOT NULL DEFAULT 0,
		actual_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		progress INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS rfis (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
		number TEXT,
		subject TEXT NOT NULL,
		question TEXT,
		answer TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		priority TEXT NOT NULL DEFAULT 'normal',
		submitted_by TEXT,
		assigned_to TEXT,
		due_date TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS daily_logs (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
		log_date TEXT NOT NULL,
		weather TEXT,
		workers_count INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS daywork_sheets (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
		sheet_date TEXT NOT NULL,
		description TEXT,
		labour_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		materials TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		company_id TEXT,
		user_id TEXT,
		action TEXT NOT NULL,
		table_name TEXT,
		record_id TEXT,
		details TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_company ON users(company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_company ON projects(company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rfis_project ON rfis(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_logs_project ON daily_logs(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_daywork_sheets_project ON daywork_sheets(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_company ON audit_logs(company_id)`,
}

// updatedAtFunction refreshes updated_at unless the update set it explicitly
const updatedAtFunction = `CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN
	IF NEW.updated_at IS NOT DISTINCT FROM OLD.updated_at THEN
		NEW.updated_at = now();
	END IF;
	RETURN NEW;
END $$ LANGUAGE plpgsql`

// updatedAtTriggerStatements (re)creates the BEFORE UPDATE trigger on table
func updatedAtTriggerStatements(table string) []string {
	name := table + "_set_updated_at"
	return []string{
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, name, table),
		fmt.Sprintf(`CREATE TRIGGER %s BEFORE UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION set_updated_at()`, name, table),
	}
}

// schemaPlan is every statement Bootstrap runs, in order
func schemaPlan() []string {
	statements := append([]string{}, SchemaStatements...)
	statements = append(statements, updatedAtFunction)
	for _, table := range core.ExportTables {
		if core.TracksUpdates(table) {
			statements = append(statements, updatedAtTriggerStatements(table)...)
		}
	}
	for _, table := range core.ExportTables {
		statements = append(statements, publicationStatement(table))
	}
	return append(statements, `NOTIFY pgrst, 'reload schema'`)
}

// publicationStatement adds table to the realtime publication unless it is
// already part of it. Projects without the publication are left alone.
func publicationStatement(table string) string {
	return fmt.Sprintf(`DO $$
BEGIN
	IF EXISTS (SELECT 1 FROM pg_publication WHERE pubname = 'supabase_realtime')
		AND NOT EXISTS (
			SELECT 1 FROM pg_publication_tables
			WHERE pubname = 'supabase_realtime' AND schemaname = 'public' AND tablename = '%s'
		) THEN
		ALTER PUBLICATION supabase_realtime ADD TABLE public.%s;
	END IF;
END $$`, table, table)
}

// Bootstrap creates the hosted tables through a direct Postgres connection.
// PostgREST cannot run DDL, so this needs the database URL rather than the
// REST keys.
func Bootstrap(ctx context.Context, dbURL string, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	if strings.TrimSpace(dbURL) == "" {
		return core.NewValidationError("database url is required for schema bootstrap", nil)
	}

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return core.NewConnectionError("failed to connect to postgres", err)
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return core.NewConnectionError("failed to ping postgres", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return core.NewQueryError("failed to begin schema transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range schemaPlan() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return core.NewQueryError("failed to apply schema", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return core.NewQueryError("failed to commit schema", err)
	}

	logger.Info("schema applied", "tables", len(core.ExportTables))
	return nil
}
