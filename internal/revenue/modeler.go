// Package revenue sizes the recurring revenue and billing schedule of won
// deals.
package revenue

import (
	"math"
	"time"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/probability"
	"github.com/sells-group/dealgen/internal/seed"
	"github.com/sells-group/dealgen/internal/simerr"
)

const component = "revenue"

// Modeler derives billing records from won deals.
type Modeler struct {
	cfg config.RevenueConfig
}

// NewModeler creates a Modeler.
func NewModeler(cfg config.RevenueConfig) *Modeler {
	return &Modeler{cfg: cfg}
}

// Model builds the billing record for a won deal. Calling it with a deal
// that is nil, not won, or has no close date is a PreconditionError. The
// caller assigns the record ID.
func (m *Modeler) Model(d *model.Deal, sig model.Signals, rng *seed.Stream) (*model.BillingRecord, error) {
	switch {
	case d == nil:
		return nil, simerr.NewPreconditionError("revenue.Model", "deal is nil")
	case d.Outcome != model.OutcomeWon:
		return nil, simerr.NewPreconditionError("revenue.Model", "deal outcome is "+string(d.Outcome)+", want won")
	case d.ClosedAt == nil:
		return nil, simerr.NewPreconditionError("revenue.Model", "won deal has no close date")
	}

	arr, err := m.ARR(sig, rng)
	if err != nil {
		return nil, err
	}

	term := m.term(rng)
	start := truncateDay(d.ClosedAt.AddDate(0, 0, rng.IntRange(0, m.cfg.StartLagMaxDays)))

	return &model.BillingRecord{
		DealID:     d.ID,
		CompanyID:  d.CompanyID,
		SizeBand:   sig.SizeBand,
		ARR:        arr,
		MRR:        float64(arr) / 12,
		Term:       term,
		TermMonths: m.cfg.TermMonths,
		StartDate:  start,
		EndDate:    start.AddDate(0, m.cfg.TermMonths, 0),
		Currency:   m.cfg.Currency,
	}, nil
}

// ARR draws annual recurring revenue inside the company's size-band range,
// lifted by fit and bounded by guard rails.
func (m *Modeler) ARR(sig model.Signals, rng *seed.Stream) (int64, error) {
	r, ok := m.cfg.ARRRanges[sig.SizeBand]
	if !ok {
		return 0, simerr.NewConfigurationError(component, "revenue.arr_ranges."+string(sig.SizeBand), nil)
	}

	base := r.Min + rng.Beta(m.cfg.BetaAlpha, m.cfg.BetaBeta)*(r.Max-r.Min)

	fit := m.FitScore(sig)
	strong := 1.0
	if sig.ICPTier == model.ICPStrong {
		strong = m.cfg.StrongICPMultiplier
	}
	uplift := (1 + m.cfg.MaxFitUplift*fit) * strong
	uplift *= rng.LogNormal(0, m.cfg.JitterSigma)

	arr := probability.Clamp(base*uplift, r.Min*m.cfg.GuardLow, r.Max*(1+m.cfg.GuardHighFit*fit)*strong)
	return roundTo(arr, m.cfg.RoundTo), nil
}

// FitScore rates how well the company fits, in [0, 1]. ICP confidence only
// counts for moderate or strong tiers.
func (m *Modeler) FitScore(sig model.Signals) float64 {
	var s float64
	if sig.ICPTier.Rank() >= model.ICPModerate.Rank() {
		s += m.cfg.ICPWeight * sig.ICPConfidence
	}
	s += m.cfg.TechWeights[sig.TechBoost]
	if sig.PriorCustomer {
		s += m.cfg.PriorWeight
	}
	s += m.cfg.StackWeight * sig.StackConfidence
	return probability.Clamp(s, 0, 1)
}

// term picks the billing frequency. With no positive weight the default term
// is used and no draw is consumed.
func (m *Modeler) term(rng *seed.Stream) model.BillingTerm {
	terms := []model.BillingTerm{model.BillingMonthly, model.BillingAnnual}
	weights := make([]float64, len(terms))
	for i, t := range terms {
		weights[i] = m.cfg.TermWeights[t]
	}
	if i := rng.Choice(weights); i >= 0 {
		return terms[i]
	}
	if m.cfg.DefaultTerm != "" {
		return m.cfg.DefaultTerm
	}
	return model.BillingAnnual
}

func roundTo(x float64, q int64) int64 {
	if q <= 0 {
		q = 1
	}
	n := int64(math.Round(x/float64(q))) * q
	if n < q {
		return q
	}
	return n
}

func truncateDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
