package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/registry"
	"github.com/sells-group/dealgen/internal/simerr"
)

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(config.DefaultSimulation(), opts)
	require.NoError(t, err)
	return e
}

// sampleCompanies builds a varied batch covering every band, tier and tech mix.
func sampleCompanies(n int) []model.Company {
	bands := []string{"2-10", "11-50", "51-200", "201-500", "1001-5000", "10001+"}
	tiers := []string{"strong", "moderate", "weak", "none", "true", "false", ""}
	tags := [][]model.TechTag{
		{model.TechX12}, {model.TechFHIR}, {model.TechClearinghouse}, {model.TechNoneDetected}, nil,
	}
	industries := []string{"Hospital & Health Care", "Insurance", "Computer Software", "Retail", ""}

	out := make([]model.Company, n)
	for i := range out {
		c := model.Company{
			ID:            fmt.Sprintf("c%04d", i),
			Name:          fmt.Sprintf("Company %d", i),
			Domain:        fmt.Sprintf("company%d.com", i),
			Industry:      industries[i%len(industries)],
			EmployeeBand:  bands[i%len(bands)],
			PriorCustomer: i%11 == 0,
		}
		if i%3 != 0 {
			c.ReferenceDate = time.Date(2024, 10, 1+i%28, 0, 0, 0, 0, time.UTC)
		}
		if tier := tiers[i%len(tiers)]; tier != "" {
			c.Enrichment = &model.Enrichment{
				ICPFit:          tier,
				ICPConfidence:   float64(i%10) / 10,
				TechTags:        tags[i%len(tags)],
				StackConfidence: float64(i%7) / 7,
			}
		}
		out[i] = c
	}
	return out
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultSimulation()
	cfg.Probability.Create.BaseRate = 2
	_, err := New(cfg, Options{})
	require.Error(t, err)
	assert.True(t, simerr.IsRange(err))
}

func TestProcess_NoOpportunity(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultSimulation()
	cfg.Probability.Create.BaseRate = 0
	cfg.Probability.Create.PriorUplift = 0
	cfg.Probability.Min = 0
	e, err := New(cfg, Options{Seed: 1})
	require.NoError(t, err)

	res, err := e.Process(model.Company{ID: "x", Domain: "x.com", EmployeeBand: "11-50"})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoOpportunity, res.Outcome)
	assert.False(t, res.Decision.Created)
	assert.Nil(t, res.Deal)
	assert.Nil(t, res.Billing)
	assert.Zero(t, res.PWinBase)
	assert.Zero(t, res.PCreate)
}

func TestProcess_OutcomeExclusivity(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Seed: 42})
	for _, c := range sampleCompanies(300) {
		res, err := e.Process(c)
		require.NoError(t, err)

		switch res.Outcome {
		case model.OutcomeNoOpportunity:
			assert.False(t, res.Decision.Created)
			assert.Nil(t, res.Deal)
			assert.Nil(t, res.Billing)
		case model.OutcomeWon:
			require.NotNil(t, res.Deal)
			require.NotNil(t, res.Billing)
			assert.Equal(t, res.Deal.ID, res.Billing.DealID)
			assert.Equal(t, float64(res.Billing.ARR)/12, res.Billing.MRR)
			assert.Positive(t, res.Billing.ARR)
			assert.False(t, res.Billing.StartDate.Before(*res.Deal.ClosedAt))
		case model.OutcomeLost:
			require.NotNil(t, res.Deal)
			assert.Nil(t, res.Billing)
			assert.NotNil(t, res.Deal.ClosedAt)
		default:
			t.Fatalf("unexpected outcome %q without snapshot", res.Outcome)
		}

		if res.Deal != nil {
			assert.True(t, res.Decision.Created)
			assert.Equal(t, res.Outcome, res.Deal.Outcome)
			assert.NotEmpty(t, res.Deal.Owner)
			assert.Equal(t, c.ID, res.Deal.CompanyID)
		}
	}
}

func TestProcess_ReferenceDateFallback(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultSimulation()
	// Pin p_create to 1 so every company opens a deal.
	cfg.Probability.Min = 1
	cfg.Probability.Max = 1
	e, err := New(cfg, Options{Seed: 3})
	require.NoError(t, err)
	start, end, err := cfg.Calendar.Window()
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		res, err := e.Process(model.Company{ID: fmt.Sprint(i), Domain: fmt.Sprintf("d%d.org", i), EmployeeBand: "11-50"})
		require.NoError(t, err)
		require.NotNil(t, res.Deal)
		assert.False(t, res.Deal.CreatedAt.Before(start))
		assert.False(t, res.Deal.CreatedAt.After(end))
	}

	explicit := time.Date(2025, 2, 3, 15, 4, 5, 0, time.UTC)
	res, err := e.Process(model.Company{ID: "e", Domain: "e.org", EmployeeBand: "11-50", ReferenceDate: explicit})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), res.Deal.CreatedAt)
}

func TestProcess_ConfigurationError(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultSimulation()
	cfg.Features.DefaultSizeBand = ""
	e, err := New(cfg, Options{Seed: 1})
	require.NoError(t, err)

	_, err = e.Process(model.Company{ID: "x", EmployeeBand: "unknown"})
	assert.True(t, simerr.IsConfiguration(err))
}

func TestRun_DeterministicAcrossConcurrency(t *testing.T) {
	t.Parallel()

	companies := sampleCompanies(200)

	seq := newEngine(t, Options{Seed: 42, Concurrency: 1})
	par := newEngine(t, Options{Seed: 42, Concurrency: 16})

	a, sa, err := seq.Run(context.Background(), companies)
	require.NoError(t, err)
	b, sb, err := par.Run(context.Background(), companies)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, sa, sb)

	for i, res := range a {
		assert.Equal(t, companies[i].ID, res.CompanyID, "results keep input order")
	}
}

func TestRun_SeedChangesOutcome(t *testing.T) {
	t.Parallel()

	companies := sampleCompanies(100)
	a, _, err := newEngine(t, Options{Seed: 1, Concurrency: 4}).Run(context.Background(), companies)
	require.NoError(t, err)
	b, _, err := newEngine(t, Options{Seed: 2, Concurrency: 4}).Run(context.Background(), companies)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRun_Summary(t *testing.T) {
	t.Parallel()

	companies := sampleCompanies(120)
	companies[5].EmployeeBand = "unknown"
	companies[17].EmployeeBand = "n/a"

	cfg := config.DefaultSimulation()
	cfg.Features.DefaultSizeBand = ""
	e, err := New(cfg, Options{Seed: 42, Concurrency: 4})
	require.NoError(t, err)

	results, summary, err := e.Run(context.Background(), companies)
	require.NoError(t, err)

	assert.Equal(t, 120, summary.Processed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 118, summary.Succeeded)
	assert.Len(t, results, 118)

	total := 0
	for _, o := range model.Outcomes {
		total += summary.Outcomes[o]
	}
	assert.Equal(t, summary.Succeeded, total)
	assert.Positive(t, summary.Outcomes[model.OutcomeWon])
	assert.Positive(t, summary.Outcomes[model.OutcomeNoOpportunity])

	for _, res := range results {
		assert.NotEqual(t, companies[5].ID, res.CompanyID)
		assert.NotEqual(t, companies[17].ID, res.CompanyID)
	}
}

func TestRun_PreconditionAborts(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Seed: 42, Concurrency: 2})
	companies := sampleCompanies(10)

	_, _, err := e.runWith(context.Background(), companies, func(c model.Company) (*model.CompanyResult, error) {
		if c.ID == "c0003" {
			return nil, simerr.NewPreconditionError("revenue.Model", "deal outcome is lost, want won")
		}
		return e.Process(c)
	})
	require.Error(t, err)
	assert.True(t, simerr.IsPrecondition(err))
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newEngine(t, Options{Seed: 42}).Run(ctx, sampleCompanies(5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()

	results, summary, err := newEngine(t, Options{}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, summary.Processed)
}

type fakeRecorder struct {
	mu      sync.Mutex
	results int
	skips   map[string]int
}

func (f *fakeRecorder) ObserveResult(*model.CompanyResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results++
}

func (f *fakeRecorder) ObserveSkip(component string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.skips == nil {
		f.skips = map[string]int{}
	}
	f.skips[component]++
}

func TestRun_Recorder(t *testing.T) {
	t.Parallel()

	companies := sampleCompanies(30)
	companies[0].EmployeeBand = "??"

	cfg := config.DefaultSimulation()
	cfg.Features.DefaultSizeBand = ""
	rec := &fakeRecorder{}
	e, err := New(cfg, Options{Seed: 9, Concurrency: 3, Recorder: rec})
	require.NoError(t, err)

	_, _, err = e.Run(context.Background(), companies)
	require.NoError(t, err)
	assert.Equal(t, 29, rec.results)
	assert.Equal(t, map[string]int{"features": 1}, rec.skips)
}

func TestRun_PriorCustomerRegistry(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Seed: 42, Customers: registry.NewCustomers([]string{"company1.com"})})
	res, err := e.Process(sampleCompanies(2)[1])
	require.NoError(t, err)
	assert.True(t, res.Signals.PriorCustomer)
}

func TestRun_Snapshot(t *testing.T) {
	t.Parallel()

	snapshot := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)
	e := newEngine(t, Options{Seed: 42, Concurrency: 4, Snapshot: snapshot})

	results, summary, err := e.Run(context.Background(), sampleCompanies(200))
	require.NoError(t, err)
	assert.Positive(t, summary.Outcomes[model.OutcomeOpen])

	for _, res := range results {
		if res.Deal == nil || res.Deal.ClosedAt == nil {
			continue
		}
		assert.False(t, res.Deal.ClosedAt.After(snapshot))
	}
}

func TestScenarioB_NoOpportunityRate(t *testing.T) {
	t.Parallel()

	company := model.Company{
		ID:           "scenario-b",
		Domain:       "scenario-b.com",
		EmployeeBand: "2-10",
		Enrichment:   &model.Enrichment{ICPFit: "none", TechTags: nil},
	}

	const runs = 1000
	const tolerance = 0.05

	var noOpp int
	var pCreate float64
	for s := uint64(1); s <= runs; s++ {
		e := newEngine(t, Options{Seed: s})
		res, err := e.Process(company)
		require.NoError(t, err)
		require.Equal(t, model.SizeMicro, res.Signals.SizeBand)
		require.Equal(t, model.ICPNone, res.Signals.ICPTier)
		require.Equal(t, model.TechBoostNone, res.Signals.TechBoost)
		pCreate = res.PCreate
		if res.Outcome == model.OutcomeNoOpportunity {
			noOpp++
		}
	}

	rate := float64(noOpp) / runs
	assert.GreaterOrEqual(t, rate, 1-pCreate-tolerance)
}
