package runstore

import (
	"context"
	"time"
)

// NoopStore discards everything. Selected when CRAWLORCH_DB_DSN is empty
// so callers never special-case "no store configured".
type NoopStore struct{}

// NewNoopStore returns a Store that discards every write; GetRun reports
// ErrNotFound and the list reads return no rows and no error.
func NewNoopStore() *NoopStore { return &NoopStore{} }

func (NoopStore) UpsertRunStart(context.Context, string, string, string, time.Time) error { return nil }
func (NoopStore) CompleteRun(context.Context, string, time.Time, Outcome, *string) error   { return nil }
func (NoopStore) UpsertHostCounters(context.Context, string, string, int64, int64, string, time.Time) error {
	return nil
}

func (NoopStore) GetRun(context.Context, string) (RunSummary, error) { return RunSummary{}, ErrNotFound }
func (NoopStore) ListRuns(context.Context, *Outcome, int, int) ([]RunSummary, error) {
	return nil, nil
}
func (NoopStore) ListHostCounters(context.Context, string, int, int) ([]HostCounters, error) {
	return nil, nil
}

func (NoopStore) Close() {}

// New selects PostgresStore when dsn is non-empty, else NoopStore, so
// call sites never branch on configuration themselves.
func New(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return NewNoopStore(), nil
	}
	return NewPostgresStore(ctx, dsn)
}
