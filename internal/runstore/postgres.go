package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxIface is the narrow slice of pgxpool.Pool this store exercises,
// grounded on the teacher's execCloser pattern in
// internal/storage/postgres/retrieval_store.go: it lets pgxmock stand in
// for a real pool in tests without depending on the concrete pool type.
type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgx, grounded on the teacher's
// internal/storage/postgres.ProgressStore.
type PostgresStore struct {
	pool pgxIface
}

// NewPostgresStore opens a connection pool against dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool wraps an already-constructed pool, letting
// tests substitute a pgxmock pool.
func NewPostgresStoreWithPool(pool pgxIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// UpsertRunStart inserts a run row with outcome "running". If the run_id
// already exists, only its outcome is reset to "running"; base, mode and
// started_at keep their stored values.
func (s *PostgresStore) UpsertRunStart(ctx context.Context, runID, base, mode string, startedAt time.Time) error {
	query := `
		INSERT INTO run_history (run_id, base, mode, started_at, outcome)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE
		SET outcome = EXCLUDED.outcome
		WHERE run_history.outcome <> EXCLUDED.outcome;
	`
	_, err := s.pool.Exec(ctx, query, runID, base, mode, startedAt, OutcomeRunning)
	if err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with the given outcome and error.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, finishedAt time.Time, outcome Outcome, errMsg *string) error {
	query := `
		UPDATE run_history
		SET finished_at = $1, outcome = $2, error_message = $3
		WHERE run_id = $4;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, outcome, errMsg, runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// UpsertHostCounters applies visit/byte deltas per (run, host, statusClass).
func (s *PostgresStore) UpsertHostCounters(ctx context.Context, runID, host string, deltaVisits, deltaBytes int64, statusClass string, at time.Time) error {
	var query string
	switch statusClass {
	case "2xx":
		query = `UPDATE run_host_counters SET visits = visits + $1, bytes_total = bytes_total + $2, fetch_2xx = fetch_2xx + $1, last_update = $3 WHERE run_id = $4 AND host = $5;`
	case "3xx":
		query = `UPDATE run_host_counters SET visits = visits + $1, bytes_total = bytes_total + $2, fetch_3xx = fetch_3xx + $1, last_update = $3 WHERE run_id = $4 AND host = $5;`
	case "4xx":
		query = `UPDATE run_host_counters SET visits = visits + $1, bytes_total = bytes_total + $2, fetch_4xx = fetch_4xx + $1, last_update = $3 WHERE run_id = $4 AND host = $5;`
	case "5xx":
		query = `UPDATE run_host_counters SET visits = visits + $1, bytes_total = bytes_total + $2, fetch_5xx = fetch_5xx + $1, last_update = $3 WHERE run_id = $4 AND host = $5;`
	default:
		return fmt.Errorf("unknown status class: %s", statusClass)
	}

	res, err := s.pool.Exec(ctx, query, deltaVisits, deltaBytes, at, runID, host)
	if err != nil {
		return fmt.Errorf("update host counters: %w", err)
	}
	if res.RowsAffected() == 0 {
		var f2, f3, f4, f5 int64
		switch statusClass {
		case "2xx":
			f2 = deltaVisits
		case "3xx":
			f3 = deltaVisits
		case "4xx":
			f4 = deltaVisits
		case "5xx":
			f5 = deltaVisits
		}
		insert := `
			INSERT INTO run_host_counters (run_id, host, last_update, visits, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, host) DO NOTHING;
		`
		if _, err := s.pool.Exec(ctx, insert, runID, host, at, deltaVisits, deltaBytes, f2, f3, f4, f5); err != nil {
			return fmt.Errorf("insert host counters: %w", err)
		}
	}
	return nil
}

// GetRun loads a single run summary by ID.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	query := `
		SELECT run_id, base, mode, started_at, finished_at, outcome, error_message
		FROM run_history WHERE run_id = $1;
	`
	var run RunSummary
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.RunID, &run.Base, &run.Mode, &run.StartedAt, &run.FinishedAt, &run.Outcome, &run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunSummary{}, ErrNotFound
		}
		return RunSummary{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns run summaries filtered by optional outcome.
func (s *PostgresStore) ListRuns(ctx context.Context, outcome *Outcome, limit, offset int) ([]RunSummary, error) {
	query := `
		SELECT run_id, base, mode, started_at, finished_at, outcome, error_message
		FROM run_history
		WHERE ($1::text IS NULL OR outcome = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, outcome, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		if err := rows.Scan(&run.RunID, &run.Base, &run.Mode, &run.StartedAt, &run.FinishedAt, &run.Outcome, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListHostCounters returns per-host counters for one run.
func (s *PostgresStore) ListHostCounters(ctx context.Context, runID string, limit, offset int) ([]HostCounters, error) {
	query := `
		SELECT run_id, host, last_update, visits, bytes_total, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx
		FROM run_host_counters
		WHERE run_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list host counters: %w", err)
	}
	defer rows.Close()

	var stats []HostCounters
	for rows.Next() {
		var st HostCounters
		if err := rows.Scan(&st.RunID, &st.Host, &st.LastUpdate, &st.Visits, &st.BytesTotal, &st.Fetch2xx, &st.Fetch3xx, &st.Fetch4xx, &st.Fetch5xx); err != nil {
			return nil, fmt.Errorf("scan host counters row: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, nil
}
