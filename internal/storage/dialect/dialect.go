// Package dialect provides database dialect abstractions for multi-database support.
package dialect

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name (e.g., "sqlite", "postgres")
	Name() string

	// DriverName returns the database/sql driver name to use
	DriverName() string

	// Rebind converts ? placeholders to the dialect's format.
	// For example, PostgreSQL uses $1, $2, etc.
	Rebind(query string) string

	// UpsertClause returns the ON CONFLICT clause for upserts. With no update
	// columns the clause ignores the conflicting row.
	UpsertClause(conflictColumns []string, updateColumns []string) string

	// PragmaStatements returns dialect-specific initialization statements (e.g., PRAGMA for SQLite)
	PragmaStatements() []string
}

// FromDriverName returns the dialect for a given driver name
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return &sqliteDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return &postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

func onConflict(conflictColumns []string, updateColumns []string, excluded string) string {
	target := strings.Join(conflictColumns, ", ")
	if len(updateColumns) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", target)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = %s.%s", col, excluded, col)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", target, strings.Join(updates, ", "))
}

// sqliteDialect implements Dialect for SQLite
type sqliteDialect struct{}

func (d *sqliteDialect) Name() string {
	return "sqlite"
}

func (d *sqliteDialect) DriverName() string {
	return "sqlite"
}

func (d *sqliteDialect) Rebind(query string) string {
	return sqlx.Rebind(sqlx.QUESTION, query)
}

func (d *sqliteDialect) UpsertClause(conflictColumns []string, updateColumns []string) string {
	return onConflict(conflictColumns, updateColumns, "excluded")
}

func (d *sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
}

// postgresDialect implements Dialect for PostgreSQL
type postgresDialect struct{}

func (d *postgresDialect) Name() string {
	return "postgres"
}

func (d *postgresDialect) DriverName() string {
	return "pgx"
}

func (d *postgresDialect) Rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func (d *postgresDialect) UpsertClause(conflictColumns []string, updateColumns []string) string {
	return onConflict(conflictColumns, updateColumns, "EXCLUDED")
}

func (d *postgresDialect) PragmaStatements() []string {
	return nil // PostgreSQL doesn't use pragmas
}
