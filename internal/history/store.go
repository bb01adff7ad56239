package history

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store persists sessions and per-file records in PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	preset_id   TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	total_files INTEGER NOT NULL DEFAULT 0,
	successful  INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS records (
	id              BIGSERIAL PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	file_name       TEXT NOT NULL,
	file_size       BIGINT NOT NULL DEFAULT 0,
	file_type       TEXT NOT NULL DEFAULT '',
	timestamp       TIMESTAMPTZ NOT NULL,
	processing_ms   DOUBLE PRECISION NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	detection_count INTEGER NOT NULL DEFAULT 0,
	avg_confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	high_confidence INTEGER NOT NULL DEFAULT 0,
	med_confidence  INTEGER NOT NULL DEFAULT 0,
	low_confidence  INTEGER NOT NULL DEFAULT 0,
	redaction_count INTEGER NOT NULL DEFAULT 0,
	preset_name     TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS records_session_idx ON records(session_id);
`

// NewStore connects to the database and ensures the schema exists.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{db: db, logger: logger}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("History store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// BeginSession creates a new session row and returns it.
func (s *Store) BeginSession(ctx context.Context, presetID string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		PresetID:  presetID,
		StartedAt: time.Now().UTC(),
	}

	query := `INSERT INTO sessions (id, preset_id, started_at) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, session.ID, session.PresetID, session.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	s.logger.Debug("Session started",
		zap.String("session_id", session.ID),
		zap.String("preset", presetID))
	return session, nil
}

// FinishSession records the final counts for a session.
func (s *Store) FinishSession(ctx context.Context, session *Session) error {
	now := time.Now().UTC()
	session.FinishedAt = &now

	query := `
		UPDATE sessions
		SET finished_at = $2, total_files = $3, successful = $4, failed = $5
		WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query,
		session.ID, session.FinishedAt, session.TotalFiles, session.Successful, session.Failed); err != nil {
		return fmt.Errorf("failed to finish session %s: %w", session.ID, err)
	}
	return nil
}

// InsertRecords adds the per-file records of a session in one transaction.
func (s *Store) InsertRecords(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO records (
			session_id, file_name, file_size, file_type, timestamp,
			processing_ms, status, detection_count, avg_confidence,
			high_confidence, med_confidence, low_confidence,
			redaction_count, preset_name, error
		) VALUES (
			:session_id, :file_name, :file_size, :file_type, :timestamp,
			:processing_ms, :status, :detection_count, :avg_confidence,
			:high_confidence, :med_confidence, :low_confidence,
			:redaction_count, :preset_name, :error
		)`

	for _, record := range records {
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("failed to insert record for %s: %w", record.FileName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}

	s.logger.Debug("Records inserted", zap.Int("count", len(records)))
	return nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []*Session
	query := `SELECT * FROM sessions ORDER BY started_at DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &sessions, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// ListRecords returns all records, optionally filtered by session.
func (s *Store) ListRecords(ctx context.Context, sessionID string) ([]*Record, error) {
	var records []*Record
	if sessionID != "" {
		query := `SELECT * FROM records WHERE session_id = $1 ORDER BY id`
		if err := s.db.SelectContext(ctx, &records, query, sessionID); err != nil {
			return nil, fmt.Errorf("failed to list records: %w", err)
		}
		return records, nil
	}
	query := `SELECT * FROM records ORDER BY id`
	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// GetStats aggregates totals across every stored session.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	query := `
		SELECT
			(SELECT COUNT(*) FROM sessions)                    AS total_sessions,
			COUNT(*)                                           AS total_files,
			COALESCE(SUM(detection_count), 0)                  AS total_detections,
			COALESCE(SUM(redaction_count), 0)                  AS total_redactions,
			COALESCE(AVG(detection_count), 0)                  AS avg_detections,
			COALESCE(AVG(NULLIF(avg_confidence, 0)), 0)        AS avg_confidence,
			COALESCE(SUM(high_confidence), 0)                  AS high_confidence,
			COALESCE(SUM(med_confidence), 0)                   AS med_confidence,
			COALESCE(SUM(low_confidence), 0)                   AS low_confidence
		FROM records`
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return &stats, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// maskDatabaseURL hides credentials in the URL for logging
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "postgres://***"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}
