package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealgen/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sampleResults returns one result per outcome.
func sampleResults() []model.CompanyResult {
	created := day(2025, 1, 6)
	exit := day(2025, 1, 20)
	closed := day(2025, 2, 10)

	won := model.CompanyResult{
		CompanyID: "c1", Name: "Acme Health", Domain: "acme.com",
		Signals:  model.Signals{ICPTier: model.ICPStrong, SizeBand: model.SizeMid, TechBoost: model.TechBoostHigh},
		PCreate:  0.7, PWinBase: 0.45,
		Decision: model.DealAttemptDecision{CompanyID: "c1", Created: true, Probability: 0.7, Draw: 0.2},
		Deal: &model.Deal{
			ID: "d1", CompanyID: "c1", Owner: "Peter", CreatedAt: created,
			History: []model.StageEvent{
				{Stage: model.StageProspecting, EnteredAt: created, ExitedAt: &exit},
				{Stage: model.StageQualification, EnteredAt: exit, ExitedAt: &closed},
				{Stage: model.StageWon, EnteredAt: closed},
			},
			Outcome: model.OutcomeWon, SalesCycleDays: 35, ClosedAt: &closed, WinProbability: 0.5,
		},
		Billing: &model.BillingRecord{
			ID: "b1", DealID: "d1", CompanyID: "c1", SizeBand: model.SizeMid,
			ARR: 120000, MRR: 10000, Term: model.BillingAnnual, TermMonths: 12,
			StartDate: day(2025, 2, 20), EndDate: day(2026, 2, 20), Currency: "USD",
		},
		Outcome: model.OutcomeWon,
	}
	open := model.CompanyResult{
		CompanyID: "c2", Domain: "open.io",
		PCreate:  0.4,
		Decision: model.DealAttemptDecision{CompanyID: "c2", Created: true, Probability: 0.4, Draw: 0.1},
		Deal: &model.Deal{
			ID: "d2", CompanyID: "c2", CreatedAt: created,
			History: []model.StageEvent{{Stage: model.StageProspecting, EnteredAt: created}},
			Outcome: model.OutcomeOpen, SalesCycleDays: 10,
		},
		Outcome: model.OutcomeOpen,
	}
	none := model.CompanyResult{
		CompanyID: "c3", Name: "Nope",
		PCreate:  0.1,
		Decision: model.DealAttemptDecision{CompanyID: "c3", Probability: 0.1, Draw: 0.8},
		Outcome:  model.OutcomeNoOpportunity,
	}
	return []model.CompanyResult{won, open, none}
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 42, "companies.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, uint64(42), got.Seed)
	assert.Equal(t, "companies.csv", got.Input)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Summary)
}

func TestSQLite_LargeSeed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, ^uint64(0), "x.csv")
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), got.Seed)
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 7, "in.xlsx")
	require.NoError(t, err)

	summary := model.BatchSummary{
		Processed: 3, Succeeded: 2, Skipped: 1,
		Outcomes: map[model.Outcome]int{model.OutcomeWon: 1, model.OutcomeNoOpportunity: 1},
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, summary))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Summary)
	assert.Equal(t, summary, *got.Summary)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 7, "in.csv")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, "dataset: write output: disk full"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Summary)
	assert.Equal(t, "dataset: write output: disk full", got.Error)

	err = st.FailRun(ctx, "missing", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "missing", model.BatchSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing")
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := st.CreateRun(ctx, uint64(i), "in.csv")
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")
	assert.Equal(t, ids[0], runs[2].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
}

func TestSQLite_SaveResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 42, "in.csv")
	require.NoError(t, err)

	n, err := st.SaveResults(ctx, run.ID, sampleResults())
	require.NoError(t, err)
	// 3 decisions + 2 deals + 4 stage events + 1 billing record.
	assert.Equal(t, int64(10), n)

	count := func(query string, args ...any) int {
		var c int
		require.NoError(t, st.db.QueryRowContext(ctx, query, args...).Scan(&c))
		return c
	}
	assert.Equal(t, 3, count(`SELECT COUNT(*) FROM decisions WHERE run_id = ?`, run.ID))
	assert.Equal(t, 1, count(`SELECT COUNT(*) FROM decisions WHERE run_id = ? AND created = 0`, run.ID))
	assert.Equal(t, 2, count(`SELECT COUNT(*) FROM deals WHERE run_id = ?`, run.ID))
	assert.Equal(t, 1, count(`SELECT COUNT(*) FROM deals WHERE closed_at IS NULL`))
	assert.Equal(t, 4, count(`SELECT COUNT(*) FROM stage_events WHERE run_id = ?`, run.ID))
	assert.Equal(t, 2, count(`SELECT COUNT(*) FROM stage_events WHERE exited_at IS NULL`))

	var arr int64
	var term string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT arr, term FROM billing WHERE deal_id = ?`, "d1").Scan(&arr, &term))
	assert.Equal(t, int64(120000), arr)
	assert.Equal(t, "annual", term)

	var signals string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT signals FROM decisions WHERE company_id = ?`, "c1").Scan(&signals))
	assert.Contains(t, signals, `"icp_tier":"strong"`)
}

func TestSQLite_SaveResults_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 1, "in.csv")
	require.NoError(t, err)

	n, err := st.SaveResults(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_SaveResults_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.SaveResults(context.Background(), "missing", sampleResults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: insert decisions")
}

func TestSQLite_SaveResults_Duplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, 1, "in.csv")
	require.NoError(t, err)
	_, err = st.SaveResults(ctx, run.ID, sampleResults())
	require.NoError(t, err)

	_, err = st.SaveResults(ctx, run.ID, sampleResults())
	require.Error(t, err)

	var c int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&c))
	assert.Equal(t, 3, c, "failed save is rolled back")
}

func TestResultTables(t *testing.T) {
	tables, err := resultTables("r1", sampleResults())
	require.NoError(t, err)
	require.Len(t, tables, 4)

	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Name
		for _, row := range tbl.Rows {
			assert.Len(t, row, len(tbl.Columns), "table %s", tbl.Name)
			assert.Equal(t, "r1", row[0])
		}
	}
	assert.Equal(t, []string{"decisions", "deals", "stage_events", "billing"}, names)
	assert.Len(t, tables[2].Rows, 4)
	assert.Equal(t, 0, tables[2].Rows[0][2])
	assert.Equal(t, "qualification", tables[2].Rows[1][3])
}
