package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure-Go, no CGO).
// It offers durable state with real check-and-increment semantics for
// deployments where the JSON file backend is too loose.
type SQLiteStore struct {
	db           *sql.DB
	candidateTTL time.Duration
}

// OpenSQLite opens or creates a SQLite database at the given DSN and runs
// the schema migration.
func OpenSQLite(dsn string, candidateTTL time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite only supports one writer at a time. Keep the pool small.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if candidateTTL <= 0 {
		candidateTTL = DefaultCandidateTTL
	}
	s := &SQLiteStore{db: db, candidateTTL: candidateTTL}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS route_cursors (
			route_key TEXT PRIMARY KEY,
			value INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS candidate_states (
			candidate_key TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidate_states_expiry ON candidate_states(expires_at)`,
		`CREATE TABLE IF NOT EXISTS bucket_usage (
			bucket_key TEXT NOT NULL,
			window_key TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket_key, window_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bucket_usage_expiry ON bucket_usage(expires_at)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetRouteCursor(ctx context.Context, routeKey string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM route_cursors WHERE route_key = ?`, routeKey).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (s *SQLiteStore) SetRouteCursor(ctx context.Context, routeKey string, v int) error {
	if v < 0 {
		v = 0
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO route_cursors (route_key, value) VALUES (?, ?)
		 ON CONFLICT(route_key) DO UPDATE SET value=excluded.value`, routeKey, v)
	return err
}

func (s *SQLiteStore) GetCandidateState(ctx context.Context, candidateKey string) (*CandidateState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM candidate_states WHERE candidate_key = ?`, candidateKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st CandidateState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("unmarshal candidate state: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) SetCandidateState(ctx context.Context, candidateKey string, st *CandidateState) error {
	if st == nil {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM candidate_states WHERE candidate_key = ?`, candidateKey)
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal candidate state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO candidate_states (candidate_key, state, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(candidate_key) DO UPDATE SET state=excluded.state, expires_at=excluded.expires_at`,
		candidateKey, string(raw), st.expiresAtWithTTL(s.candidateTTL))
	return err
}

func (s *SQLiteStore) ReadBucketUsage(ctx context.Context, bucketKey, windowKey string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM bucket_usage WHERE bucket_key = ? AND window_key = ?`,
		bucketKey, windowKey).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) IncrementBucketUsage(ctx context.Context, bucketKey, windowKey string, amount int, expiresAt, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO bucket_usage (bucket_key, window_key, count, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(bucket_key, window_key) DO UPDATE SET
		   count = bucket_usage.count + excluded.count,
		   updated_at = excluded.updated_at
		 RETURNING count`,
		bucketKey, windowKey, amount, expiresAt.UnixMilli(), now.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) PruneExpired(ctx context.Context, now time.Time) (PruneResult, error) {
	var res PruneResult
	nowMs := now.UnixMilli()
	r, err := s.db.ExecContext(ctx,
		`DELETE FROM bucket_usage WHERE expires_at > 0 AND expires_at <= ?`, nowMs)
	if err != nil {
		return res, err
	}
	if n, err := r.RowsAffected(); err == nil {
		res.PrunedBuckets = int(n)
	}
	r, err = s.db.ExecContext(ctx,
		`DELETE FROM candidate_states WHERE expires_at > 0 AND expires_at <= ?`, nowMs)
	if err != nil {
		return res, err
	}
	if n, err := r.RowsAffected(); err == nil {
		res.PrunedCandidateStates = int(n)
	}
	return res, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
