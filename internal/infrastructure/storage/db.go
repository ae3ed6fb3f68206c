package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
	id TEXT PRIMARY KEY,
	latin TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'new',
	locked_at TIMESTAMP NULL,
	card_ref TEXT NULL,
	added_at TIMESTAMP NULL,
	updated_at TIMESTAMP NULL
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);

CREATE TABLE IF NOT EXISTS cards (
	id TEXT PRIMARY KEY,
	latin TEXT NOT NULL,
	plant_id TEXT NOT NULL,
	status TEXT NOT NULL,
	cooldown_days INTEGER NULL,
	disabled BOOLEAN NOT NULL DEFAULT FALSE,
	posted_count INTEGER NOT NULL DEFAULT 0,
	last_posted_at TIMESTAMP NULL,
	payload TEXT NOT NULL,
	updated_at TIMESTAMP NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_status ON cards(status);
`

// Store is the keyed record store backing candidates and cards. All
// coordination between concurrent runs goes through conditional UPDATEs here.
type Store struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// Open connects with the given driver, applies pragmas for SQLite and creates
// the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" || driver == "postgresql" {
		driver = DriverPostgres
	}
	if driver == "sqlite" {
		driver = DriverSQLite
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// single connection keeps :memory: databases shared and serialises writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma journal_mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store := New(db, driver)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection; placeholders follow the driver.
func New(db *sql.DB, driver string) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Migrate creates tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Candidates returns the candidate collection view.
func (s *Store) Candidates() *CandidateRepository {
	return &CandidateRepository{store: s}
}

// Cards returns the card collection view.
func (s *Store) Cards() *CardRepository {
	return &CardRepository{store: s}
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
