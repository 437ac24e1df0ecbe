// Package store persists raw transcripts and their pipeline outcome to
// PostgreSQL, grounded on the teacher's internal/trace session/run/span
// persistence — generalized from call-session tracing to one row per
// ingestion request.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// TranscriptRecord is one persisted ingestion request outcome.
type TranscriptRecord struct {
	ID         string
	SourceKind string // "audio", "document", "text"
	RawText    string
	Markdown   string
	ErrorKind  string
	DurationMs float64
	CreatedAt  time.Time
}

// TranscriptStore is the narrow persistence contract the pipeline controller
// depends on. Persistence is optional: a nil *PostgresStore still satisfies
// callers that check for nil before writing.
type TranscriptStore interface {
	Save(ctx context.Context, rec TranscriptRecord) error
	Get(ctx context.Context, id string) (*TranscriptRecord, error)
	List(ctx context.Context, limit, offset int) ([]TranscriptRecord, int, error)
}

// PostgresStore implements TranscriptStore against PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL at connStr and runs pending migrations.
func Open(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Save inserts a transcript record.
func (s *PostgresStore) Save(ctx context.Context, rec TranscriptRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, source_kind, raw_text, markdown, error_kind, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.SourceKind, rec.RawText, rec.Markdown, rec.ErrorKind, rec.DurationMs, time.Now().UTC(),
	)
	return err
}

// Get returns one transcript record by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*TranscriptRecord, error) {
	var rec TranscriptRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_kind, raw_text, markdown, error_kind, duration_ms, created_at
		 FROM transcripts WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.SourceKind, &rec.RawText, &rec.Markdown, &rec.ErrorKind, &rec.DurationMs, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns transcript records newest-first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]TranscriptRecord, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_kind, raw_text, markdown, error_kind, duration_ms, created_at
		 FROM transcripts ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []TranscriptRecord
	for rows.Next() {
		var rec TranscriptRecord
		if err = rows.Scan(&rec.ID, &rec.SourceKind, &rec.RawText, &rec.Markdown, &rec.ErrorKind, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}
