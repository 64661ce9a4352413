package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealgen/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "seed", "input", "started_at", "completed_at", "summary", "error"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "18446744073709551615", "companies.csv", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), ^uint64(0), "companies.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, ^uint64(0), run.Seed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET summary = \$1, completed_at = \$2 WHERE id = \$3`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), "run-1", model.BatchSummary{Processed: 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET summary`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", model.BatchSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET error = \$1, completed_at = \$2 WHERE id = \$3`).
		WithArgs("engine: boom", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE runs SET error`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.FailRun(context.Background(), "run-1", "engine: boom"))
	err := s.FailRun(context.Background(), "missing", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, seed, input, started_at, completed_at, summary FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(time.Minute)
	var noErr *string
	failed := "write output: disk full"

	mock.ExpectQuery(`SELECT id, seed, input, started_at, completed_at, summary FROM runs ORDER BY started_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 5).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "42", "a.csv", started, &completed, []byte(`{"processed":3,"succeeded":3,"skipped":0,"outcomes":{"won":1}}`), noErr).
			AddRow("run-2", "7", "b.csv", started, &completed, []byte(nil), &failed))

	runs, err := s.ListRuns(context.Background(), RunFilter{Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Empty(t, runs[0].Error)
	assert.Equal(t, failed, runs[1].Error)
	assert.Nil(t, runs[1].Summary)
	assert.Equal(t, uint64(42), runs[0].Seed)
	require.NotNil(t, runs[0].CompletedAt)
	assert.Equal(t, completed, *runs[0].CompletedAt)
	require.NotNil(t, runs[0].Summary)
	assert.Equal(t, 1, runs[0].Summary.Outcomes[model.OutcomeWon])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs ORDER BY started_at DESC LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListRuns(context.Background(), RunFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"decisions"}, decisionColumns).WillReturnResult(3)
	mock.ExpectCopyFrom(pgx.Identifier{"deals"}, dealColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"stage_events"}, eventColumns).WillReturnResult(4)
	mock.ExpectCopyFrom(pgx.Identifier{"billing"}, billingColumns).WillReturnResult(1)
	mock.ExpectCommit()

	n, err := s.SaveResults(context.Background(), "run-1", sampleResults())
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"decisions"}, decisionColumns).WillReturnError(errors.New("violates foreign key"))
	mock.ExpectRollback()

	_, err := s.SaveResults(context.Background(), "run-1", sampleResults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO decisions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
