package funnel

import (
	"math"
	"time"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/probability"
	"github.com/sells-group/dealgen/internal/seed"
	"github.com/sells-group/dealgen/internal/simerr"
)

const component = "funnel"

// Options bounds the win probability and sets an optional snapshot date.
type Options struct {
	MinProbability float64
	MaxProbability float64
	// Snapshot, when non-zero, freezes every deal as of that instant.
	Snapshot time.Time
}

// Simulator runs the funnel state machine for one deal at a time. It holds
// only read-only config and is safe for concurrent use.
type Simulator struct {
	cfg  config.FunnelConfig
	opts Options
}

// NewSimulator creates a Simulator.
func NewSimulator(cfg config.FunnelConfig, opts Options) *Simulator {
	return &Simulator{cfg: cfg, opts: opts}
}

// Attempt takes the single entry draw for a company.
func (s *Simulator) Attempt(companyID string, pCreate float64, entry *seed.Stream) model.DealAttemptDecision {
	u := entry.Float64()
	return model.DealAttemptDecision{
		CompanyID:   companyID,
		Created:     Enter(pCreate, u) == model.StageProspecting,
		Probability: pCreate,
		Draw:        u,
	}
}

// Run advances a freshly created deal until it closes or hits the snapshot.
// The deal must carry CreatedAt and an empty history. A stage that is reached
// but missing from config yields a ConfigurationError and leaves the deal
// incomplete.
func (s *Simulator) Run(d *model.Deal, sig model.Signals, pWinBase float64, rng *seed.Stream) error {
	if d == nil {
		return simerr.NewPreconditionError("funnel.Run", "deal is nil")
	}
	if len(d.History) != 0 {
		return simerr.NewPreconditionError("funnel.Run", "deal history is not empty")
	}

	clock := d.CreatedAt
	if s.pastSnapshot(clock) {
		d.History = append(d.History, model.StageEvent{Stage: model.StageProspecting, EnteredAt: clock})
		d.WinProbability = s.winProbability(pWinBase, 0)
		s.hold(d)
		return nil
	}

	survived := 0
	leakMod := s.leakageModifier(sig)
	durMod := s.durationModifier(sig)

	for _, stage := range model.OpenStages {
		sc, ok := s.cfg.Stages[stage]
		if !ok {
			return simerr.NewConfigurationError(component, "funnel.stages."+string(stage), nil)
		}

		entered := clock
		if Leak(probability.Clamp(sc.Leakage*leakMod, 0, 1), rng.Float64()) {
			exit := entered.AddDate(0, 0, rng.IntRange(1, sc.LossLagMaxDays))
			if s.pastSnapshot(exit) {
				d.History = append(d.History, model.StageEvent{Stage: stage, EnteredAt: entered})
				d.WinProbability = s.winProbability(pWinBase, survived)
				s.hold(d)
				return nil
			}
			d.History = append(d.History,
				model.StageEvent{Stage: stage, EnteredAt: entered, ExitedAt: &exit},
				model.StageEvent{Stage: model.StageLost, EnteredAt: exit},
			)
			d.WinProbability = s.winProbability(pWinBase, survived)
			s.close(d, model.StageLost, exit)
			return nil
		}

		days := stageDays(rng.LogNormal(sc.DurationMu, sc.DurationSigma) * durMod * multiplier(sc.TechMultiplier, sig.TechBoost))
		exit := entered.AddDate(0, 0, days)
		if s.pastSnapshot(exit) {
			d.History = append(d.History, model.StageEvent{Stage: stage, EnteredAt: entered})
			d.WinProbability = s.winProbability(pWinBase, survived)
			s.hold(d)
			return nil
		}
		d.History = append(d.History, model.StageEvent{Stage: stage, EnteredAt: entered, ExitedAt: &exit})
		clock = exit
		survived++
	}

	pWin := s.winProbability(pWinBase, survived)
	d.WinProbability = pWin
	terminal := Decide(pWin, rng.Float64())
	d.History = append(d.History, model.StageEvent{Stage: terminal, EnteredAt: clock})
	s.close(d, terminal, clock)
	return nil
}

// leakageModifier combines the ICP, tech and prior-customer leakage
// multipliers.
func (s *Simulator) leakageModifier(sig model.Signals) float64 {
	m := multiplier(s.cfg.ICPLeakage, sig.ICPTier) * multiplier(s.cfg.TechLeakage, sig.TechBoost)
	if sig.PriorCustomer {
		m *= s.cfg.PriorLeakage
	}
	return m
}

func (s *Simulator) durationModifier(sig model.Signals) float64 {
	m := multiplier(s.cfg.SizeDurationScale, sig.SizeBand)
	if sig.PriorCustomer {
		m *= s.cfg.PriorDuration
	}
	return m
}

func (s *Simulator) winProbability(pWinBase float64, survived int) float64 {
	return probability.Clamp(pWinBase*(1+s.cfg.SurvivorshipUplift*float64(survived)),
		s.opts.MinProbability, s.opts.MaxProbability)
}

func (s *Simulator) pastSnapshot(t time.Time) bool {
	return !s.opts.Snapshot.IsZero() && t.After(s.opts.Snapshot)
}

func (s *Simulator) close(d *model.Deal, terminal model.Stage, at time.Time) {
	closed := at
	d.ClosedAt = &closed
	d.Outcome = OutcomeOf(terminal)
	d.SalesCycleDays = daysBetween(d.CreatedAt, at)
}

func (s *Simulator) hold(d *model.Deal) {
	d.ClosedAt = nil
	d.Outcome = model.OutcomeOpen
	d.SalesCycleDays = daysBetween(d.CreatedAt, s.opts.Snapshot)
}

// multiplier looks up an optional modifier; absent keys are neutral.
func multiplier[K comparable](m map[K]float64, k K) float64 {
	if v, ok := m[k]; ok {
		return v
	}
	return 1
}

func stageDays(x float64) int {
	if math.IsNaN(x) || x < 1 {
		return 1
	}
	if x > 3650 {
		return 3650
	}
	return int(math.Floor(x))
}

func daysBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a) / (24 * time.Hour))
}
