package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
	"github.com/stagetrack/stagetrack/internal/storage/dialect"
)

// Store is a SQL implementation of storage.Store that supports multiple
// database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ storage.Store = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Run dialect-specific initialization (e.g., PRAGMA for SQLite)
	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ledgers (
			pipeline_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			created_at_ms BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_commits (
			pipeline_id TEXT NOT NULL,
			environment TEXT NOT NULL,
			revision_id TEXT NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			PRIMARY KEY (pipeline_id, environment, revision_id),
			FOREIGN KEY (pipeline_id) REFERENCES ledgers(pipeline_id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS owners (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS owner_stage_environments (
			owner_id TEXT NOT NULL,
			stage_name TEXT NOT NULL,
			environment TEXT NOT NULL,
			PRIMARY KEY (owner_id, stage_name),
			FOREIGN KEY (owner_id) REFERENCES owners(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS collector_items (
			id TEXT PRIMARY KEY,
			options TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(s.dialect.Rebind(stmt)); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

type ledgerRow struct {
	PipelineID  string `db:"pipeline_id"`
	ID          string `db:"id"`
	CreatedAtMs int64  `db:"created_at_ms"`
}

type commitRow struct {
	Environment string `db:"environment"`
	RevisionID  string `db:"revision_id"`
	TimestampMs int64  `db:"timestamp_ms"`
}

func (s *Store) FindLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error) {
	var row ledgerRow
	query := s.dialect.Rebind(`SELECT pipeline_id, id, created_at_ms FROM ledgers WHERE pipeline_id = ?`)
	err := s.db.GetContext(ctx, &row, query, pipelineID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger for pipeline %s: %w", pipelineID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	var commits []commitRow
	query = s.dialect.Rebind(`SELECT environment, revision_id, timestamp_ms
		FROM ledger_commits WHERE pipeline_id = ?`)
	if err := s.db.SelectContext(ctx, &commits, query, pipelineID); err != nil {
		return nil, fmt.Errorf("failed to query ledger commits: %w", err)
	}

	ledger := domain.NewLedger(row.ID, row.PipelineID)
	ledger.CreatedAt = time.UnixMilli(row.CreatedAtMs).UTC()
	for _, c := range commits {
		ledger.Record(c.Environment, domain.CommitEntry{
			RevisionID: c.RevisionID,
			Timestamp:  time.UnixMilli(c.TimestampMs).UTC(),
		})
	}
	return ledger, nil
}

// insertLedger inserts a ledger row unless one exists and reports whether it
// was written.
func (s *Store) insertLedger(ctx context.Context, ext sqlx.ExtContext, ledger *domain.Ledger) (bool, error) {
	query := s.dialect.Rebind(`INSERT INTO ledgers (pipeline_id, id, created_at_ms) VALUES (?, ?, ?) ` +
		s.dialect.UpsertClause([]string{"pipeline_id"}, nil))
	res, err := ext.ExecContext(ctx, query, ledger.PipelineID, ledger.ID, ledger.CreatedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to insert ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CreateLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error) {
	ledger := domain.NewLedger(uuid.NewString(), pipelineID)
	inserted, err := s.insertLedger(ctx, s.db, ledger)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, fmt.Errorf("ledger for pipeline %s: %w", pipelineID, storage.ErrAlreadyExists)
	}
	return ledger, nil
}

func (s *Store) RecordCommit(ctx context.Context, pipelineID, environment string, entry domain.CommitEntry) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.insertLedger(ctx, tx, domain.NewLedger(uuid.NewString(), pipelineID)); err != nil {
		return false, err
	}

	query := s.dialect.Rebind(`INSERT INTO ledger_commits (pipeline_id, environment, revision_id, timestamp_ms)
		VALUES (?, ?, ?, ?) ` + s.dialect.UpsertClause([]string{"pipeline_id", "environment", "revision_id"}, nil))
	res, err := tx.ExecContext(ctx, query, pipelineID, environment, entry.RevisionID, entry.Timestamp.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to insert commit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n > 0, nil
}

func (s *Store) FindOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	var title string
	query := s.dialect.Rebind(`SELECT title FROM owners WHERE id = ?`)
	err := s.db.GetContext(ctx, &title, query, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("owner %s: %w", ownerID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	var mappings []struct {
		StageName   string `db:"stage_name"`
		Environment string `db:"environment"`
	}
	query = s.dialect.Rebind(`SELECT stage_name, environment FROM owner_stage_environments WHERE owner_id = ?`)
	if err := s.db.SelectContext(ctx, &mappings, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to query stage environments: %w", err)
	}

	owner := &domain.Owner{
		ID:                ownerID,
		Title:             title,
		StageEnvironments: make(map[string]string, len(mappings)),
	}
	for _, m := range mappings {
		owner.StageEnvironments[m.StageName] = m.Environment
	}
	return owner, nil
}

func (s *Store) SaveOwner(ctx context.Context, owner *domain.Owner) error {
	if owner.ID == "" {
		return fmt.Errorf("owner id is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.dialect.Rebind(`INSERT INTO owners (id, title) VALUES (?, ?) ` +
		s.dialect.UpsertClause([]string{"id"}, []string{"title"}))
	if _, err := tx.ExecContext(ctx, query, owner.ID, owner.Title); err != nil {
		return fmt.Errorf("failed to save owner: %w", err)
	}

	query = s.dialect.Rebind(`DELETE FROM owner_stage_environments WHERE owner_id = ?`)
	if _, err := tx.ExecContext(ctx, query, owner.ID); err != nil {
		return fmt.Errorf("failed to clear stage environments: %w", err)
	}

	query = s.dialect.Rebind(`INSERT INTO owner_stage_environments (owner_id, stage_name, environment) VALUES (?, ?, ?)`)
	for stage, env := range owner.StageEnvironments {
		if _, err := tx.ExecContext(ctx, query, owner.ID, stage, env); err != nil {
			return fmt.Errorf("failed to save stage environment %s: %w", stage, err)
		}
	}

	return tx.Commit()
}

func (s *Store) FindCollectorItem(ctx context.Context, id string) (*domain.CollectorItem, error) {
	var optionsJSON string
	query := s.dialect.Rebind(`SELECT options FROM collector_items WHERE id = ?`)
	err := s.db.GetContext(ctx, &optionsJSON, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collector item %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collector item: %w", err)
	}

	item := &domain.CollectorItem{ID: id}
	if err := json.Unmarshal([]byte(optionsJSON), &item.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return item, nil
}

func (s *Store) SaveCollectorItem(ctx context.Context, item *domain.CollectorItem) error {
	if item.ID == "" {
		return fmt.Errorf("collector item id is required")
	}

	options, err := json.Marshal(item.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	query := s.dialect.Rebind(`INSERT INTO collector_items (id, options) VALUES (?, ?) ` +
		s.dialect.UpsertClause([]string{"id"}, []string{"options"}))
	if _, err := s.db.ExecContext(ctx, query, item.ID, string(options)); err != nil {
		return fmt.Errorf("failed to save collector item: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
