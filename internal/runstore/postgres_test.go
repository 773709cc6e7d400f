package runstore

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreUpsertRunStart(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectExec("INSERT INTO run_history").
		WithArgs("run-1", "https://example.com", "frontier", now, OutcomeRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertRunStart(context.Background(), "run-1", "https://example.com", "frontier", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCompleteRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)
	now := time.Unix(1_700_000_100, 0).UTC()

	mock.ExpectExec("UPDATE run_history").
		WithArgs(now, OutcomeSuccess, (*string)(nil), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.CompleteRun(context.Background(), "run-1", now, OutcomeSuccess, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpsertHostCountersInsertsWhenNoRowsAffected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)
	now := time.Unix(1_700_000_200, 0).UTC()

	mock.ExpectExec("UPDATE run_host_counters").
		WithArgs(int64(1), int64(2048), now, "run-1", "example.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO run_host_counters").
		WithArgs("run-1", "example.com", now, int64(1), int64(2048), int64(1), int64(0), int64(0), int64(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertHostCounters(context.Background(), "run-1", "example.com", 1, 2048, "2xx", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpsertHostCountersRejectsUnknownStatusClass(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)
	err = store.UpsertHostCounters(context.Background(), "run-1", "example.com", 1, 1, "6xx", time.Now())
	require.Error(t, err)
}

func TestStatusClassOf(t *testing.T) {
	require.Equal(t, "2xx", StatusClassOf(200))
	require.Equal(t, "3xx", StatusClassOf(301))
	require.Equal(t, "4xx", StatusClassOf(404))
	require.Equal(t, "5xx", StatusClassOf(503))
	require.Equal(t, "", StatusClassOf(100))
}

func TestNoopStoreDiscardsWrites(t *testing.T) {
	store := NewNoopStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertRunStart(ctx, "r", "b", "m", time.Now()))
	require.NoError(t, store.CompleteRun(ctx, "r", time.Now(), OutcomeSuccess, nil))
	_, err := store.GetRun(ctx, "r")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewSelectsNoopWhenDSNEmpty(t *testing.T) {
	store, err := New(context.Background(), "")
	require.NoError(t, err)
	_, ok := store.(*NoopStore)
	require.True(t, ok)
}
