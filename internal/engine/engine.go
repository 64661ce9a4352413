// Package engine runs the per-company simulation pipeline (features,
// probabilities, funnel, revenue) over a batch of companies.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/features"
	"github.com/sells-group/dealgen/internal/funnel"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/probability"
	"github.com/sells-group/dealgen/internal/registry"
	"github.com/sells-group/dealgen/internal/revenue"
	"github.com/sells-group/dealgen/internal/seed"
	"github.com/sells-group/dealgen/internal/simerr"
)

// Recorder observes engine activity. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveResult(res *model.CompanyResult)
	ObserveSkip(component string)
}

// Options configures an Engine.
type Options struct {
	Seed        uint64
	Concurrency int
	// Snapshot, when non-zero, freezes deals as of that date.
	Snapshot  time.Time
	Customers features.CustomerLookup
	Recorder  Recorder
}

// Engine simulates companies. It is immutable after New and safe for
// concurrent use.
type Engine struct {
	cfg         config.SimulationConfig
	concurrency int
	seeds       *seed.Controller
	extractor   *features.Extractor
	composer    *probability.Composer
	funnel      *funnel.Simulator
	revenue     *revenue.Modeler
	recorder    Recorder
	calStart    time.Time
	calDays     int
}

// New validates cfg and wires the pipeline components.
func New(cfg config.SimulationConfig, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "engine: invalid simulation config")
	}
	start, end, err := cfg.Calendar.Window()
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Engine{
		cfg:         cfg,
		concurrency: concurrency,
		seeds:       seed.NewController(opts.Seed),
		extractor:   features.NewExtractor(cfg.Features, opts.Customers),
		composer:    probability.NewComposer(cfg.Probability),
		funnel: funnel.NewSimulator(cfg.Funnel, funnel.Options{
			MinProbability: cfg.Probability.Min,
			MaxProbability: cfg.Probability.Max,
			Snapshot:       opts.Snapshot,
		}),
		revenue:  revenue.NewModeler(cfg.Revenue),
		recorder: opts.Recorder,
		calStart: start,
		calDays:  int(end.Sub(start) / (24 * time.Hour)),
	}, nil
}

// Process simulates one company. It returns a ConfigurationError when the
// company reaches a feature or stage the config does not cover.
func (e *Engine) Process(c model.Company) (*model.CompanyResult, error) {
	key := registry.CompanyKey(c)
	streams := e.seeds.Streams(key)

	sig, err := e.extractor.ExtractWithSize(c, e.cfg.Features.DefaultSizeBand)
	if err != nil {
		return nil, err
	}

	pCreate, _, err := e.composer.Create(sig)
	if err != nil {
		return nil, err
	}

	res := &model.CompanyResult{
		CompanyID: c.ID,
		Name:      c.Name,
		Domain:    c.Domain,
		Signals:   sig,
		PCreate:   pCreate,
		Decision:  e.funnel.Attempt(c.ID, pCreate, streams.Entry),
	}
	if !res.Decision.Created {
		res.Outcome = model.OutcomeNoOpportunity
		return res, nil
	}

	pWin, _, err := e.composer.Win(sig)
	if err != nil {
		return nil, err
	}
	res.PWinBase = pWin

	deal := &model.Deal{
		ID:        e.seeds.ID(key, "deal"),
		CompanyID: c.ID,
		Owner:     e.owner(streams.Profile),
		CreatedAt: e.referenceDate(c, streams.Profile),
	}
	if err := e.funnel.Run(deal, sig, pWin, streams.Funnel); err != nil {
		return nil, err
	}
	res.Deal = deal
	res.Outcome = deal.Outcome

	if deal.Outcome == model.OutcomeWon {
		rec, err := e.revenue.Model(deal, sig, streams.Revenue)
		if err != nil {
			return nil, err
		}
		rec.ID = e.seeds.ID(key, "billing")
		res.Billing = rec
	}

	return res, nil
}

// Run processes companies with bounded concurrency. Results keep input
// order. Companies failing with a ConfigurationError are logged and skipped;
// any other error aborts the batch.
func (e *Engine) Run(ctx context.Context, companies []model.Company) ([]model.CompanyResult, model.BatchSummary, error) {
	return e.runWith(ctx, companies, e.Process)
}

// processFunc simulates one company.
type processFunc func(c model.Company) (*model.CompanyResult, error)

func (e *Engine) runWith(ctx context.Context, companies []model.Company, process processFunc) ([]model.CompanyResult, model.BatchSummary, error) {
	zap.L().Info("engine: processing batch",
		zap.Int("companies", len(companies)),
		zap.Int("concurrency", e.concurrency),
		zap.Uint64("seed", e.seeds.RunSeed()),
	)

	slots := make([]*model.CompanyResult, len(companies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	var processed, skipped atomic.Int64

	for i, company := range companies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			processed.Add(1)
			log := zap.L().With(zap.String("company", company.Label()), zap.String("company_id", company.ID))

			res, err := process(company)
			if err != nil {
				var ce *simerr.ConfigurationError
				if eris.As(err, &ce) {
					skipped.Add(1)
					log.Warn("engine: skipping company", zap.String("component", ce.Component), zap.String("key", ce.Key), zap.Error(err))
					if e.recorder != nil {
						e.recorder.ObserveSkip(ce.Component)
					}
					return nil
				}
				return eris.Wrapf(err, "engine: process company %s", company.Label())
			}

			slots[i] = res
			if e.recorder != nil {
				e.recorder.ObserveResult(res)
			}
			log.Debug("engine: company simulated",
				zap.String("outcome", string(res.Outcome)),
				zap.Float64("p_create", res.PCreate),
				zap.String("stage", string(res.Deal.CurrentStage())),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, model.BatchSummary{}, eris.Wrap(err, "engine: batch aborted")
	}

	results := make([]model.CompanyResult, 0, len(companies))
	summary := model.BatchSummary{Outcomes: make(map[model.Outcome]int, len(model.Outcomes))}
	for _, o := range model.Outcomes {
		summary.Outcomes[o] = 0
	}
	for _, res := range slots {
		if res == nil {
			continue
		}
		results = append(results, *res)
		summary.Outcomes[res.Outcome]++
	}
	summary.Processed = int(processed.Load())
	summary.Skipped = int(skipped.Load())
	summary.Succeeded = len(results)

	zap.L().Info("engine: batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("won", summary.Outcomes[model.OutcomeWon]),
		zap.Int("lost", summary.Outcomes[model.OutcomeLost]),
		zap.Int("open", summary.Outcomes[model.OutcomeOpen]),
		zap.Int("no_opportunity", summary.Outcomes[model.OutcomeNoOpportunity]),
	)

	return results, summary, nil
}

func (e *Engine) owner(profile *seed.Stream) string {
	if len(e.cfg.Owners) == 0 {
		return ""
	}
	return e.cfg.Owners[profile.IntRange(0, len(e.cfg.Owners)-1)]
}

// referenceDate returns the company's reference date truncated to the day,
// or a deterministic day inside the calendar window when it is missing.
func (e *Engine) referenceDate(c model.Company, profile *seed.Stream) time.Time {
	if !c.ReferenceDate.IsZero() {
		y, m, d := c.ReferenceDate.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return e.calStart.AddDate(0, 0, profile.IntRange(0, e.calDays))
}
