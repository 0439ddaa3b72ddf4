package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const nowText = `(strftime('%Y-%m-%dT%H:%M:%fZ','now'))`

// timestampLayout matches nowText so stamped and defaulted values sort together
const timestampLayout = "2006-01-02T15:04:05.000Z"

// schemaStatements creates the tables in foreign-key order. Ids are text so
// rows move between backends unchanged.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		address TEXT,
		subscription_tier TEXT NOT NULL DEFAULT 'basic',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL DEFAULT ` + nowText + `,
		updated_at TEXT NOT NULL DEFAULT ` + nowText + `
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		company_id TEXT REFERENCES companies(id) ON DELETE CASCADE,
		avatar_url TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL DEFAULT ` + nowText + `,
		updated_at TEXT NOT NULL DEFAULT ` + nowText + `
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL DEFAULT 'planning',
		start_date TEXT,
		end_date TEXT,
		budget REAL NOT NULL DEFAULT 0,
		actual_cost REAL NOT NULL DEFAULT 0,
		progress INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT ` + nowText + `,
		updated_at TEXT NOT NULL DEFAULT ` + nowText + `
	)`,
	`CREATE TABLE IF NOT EXISTS rfis (
		id TEXT PRIMARY KEY,
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
		created_at TEXT NOT NULL DEFAULT ` + nowText + `,
		updated_at TEXT NOT NULL DEFAULT ` + nowText + `
	)`,
	`CREATE TABLE IF NOT EXISTS daily_logs (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
		log_date TEXT NOT NULL,
		weather TEXT,
		workers_count INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL DEFAULT ` + nowText + `,
		updated_at TEXT NOT NULL DEFAULT ` + nowText + `
	)`,
	`CREATE TABLE IF NOT EXISTS daywork_sheets (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
		project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
		sheet_date TEXT NOT NULL,
		description TEXT,
		labour_hours REAL NOT NULL DEFAULT 0,
		materials TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		created_by TEXT,
		created_at TEXT NOT NULL DEFAULT ` + nowText + `,
		updated_at TEXT NOT NULL DEFAULT ` + nowText + `
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		company_id TEXT,
		user_id TEXT,
		action TEXT NOT NULL,
		table_name TEXT,
		record_id TEXT,
		details TEXT,
		created_at TEXT NOT NULL DEFAULT ` + nowText + `
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_company ON users(company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_company ON projects(company_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rfis_project ON rfis(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_logs_project ON daily_logs(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_daywork_sheets_project ON daywork_sheets(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_company ON audit_logs(company_id)`,
}

// applySchema creates any missing tables and indexes
func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
