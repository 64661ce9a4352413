package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/simerr"
)

// DateLayout is the calendar date format used in simulation config and outputs.
const DateLayout = "2006-01-02"

// SimulationConfig is the single immutable parameter set of a generation run.
// It is validated once at load time and shared read-only by every worker.
type SimulationConfig struct {
	Calendar    CalendarConfig    `yaml:"calendar"`
	Features    FeatureConfig     `yaml:"features"`
	Probability ProbabilityConfig `yaml:"probability"`
	Funnel      FunnelConfig      `yaml:"funnel"`
	Revenue     RevenueConfig     `yaml:"revenue"`
	Owners      []string          `yaml:"owners"`
}

// CalendarConfig bounds the window used when a company has no reference date.
type CalendarConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Window parses the calendar bounds.
func (c CalendarConfig) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrap(err, "config: parse calendar.start")
	}
	end, err := time.Parse(DateLayout, c.End)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrap(err, "config: parse calendar.end")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, eris.Errorf("config: calendar.end %s before calendar.start %s", c.End, c.Start)
	}
	return start, end, nil
}

// SizeBandRange maps an employee-count interval to a size band. Max 0 means
// unbounded.
type SizeBandRange struct {
	Band model.SizeBand `yaml:"band"`
	Min  int            `yaml:"min"`
	Max  int            `yaml:"max"`
}

// Contains reports whether n employees fall inside the range.
func (r SizeBandRange) Contains(n int) bool {
	return n >= r.Min && (r.Max == 0 || n <= r.Max)
}

// IndustrySegment groups free-text industries by keyword.
type IndustrySegment struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// FeatureConfig drives the feature extractor.
type FeatureConfig struct {
	ICPAliases           map[string]model.ICPFit `yaml:"icp_aliases"`
	ICPStrongThreshold   float64                 `yaml:"icp_strong_threshold"`
	ICPModerateThreshold float64                 `yaml:"icp_moderate_threshold"`
	SizeBands            []SizeBandRange         `yaml:"size_bands"`
	DefaultSizeBand      model.SizeBand          `yaml:"default_size_band"`
	IndustrySegments     []IndustrySegment       `yaml:"industry_segments"`
	DefaultIndustry      string                  `yaml:"default_industry"`
}

// ProbabilityTable holds the multiplicative factors for one probability.
type ProbabilityTable struct {
	BaseRate        float64                     `yaml:"base_rate"`
	ICP             map[model.ICPFit]float64    `yaml:"icp"`
	Tech            map[model.TechBoost]float64 `yaml:"tech"`
	Size            map[model.SizeBand]float64  `yaml:"size"`
	Industry        map[string]float64          `yaml:"industry"`
	PriorMultiplier float64                     `yaml:"prior_multiplier"`
	PriorUplift     float64                     `yaml:"prior_uplift"`
	// StackWeight w scales the probability by (1 - w + w*stack_confidence).
	// Zero disables the factor.
	StackWeight float64 `yaml:"stack_weight"`
}

// ProbabilityConfig holds the create and win tables plus the output clamp.
type ProbabilityConfig struct {
	Create ProbabilityTable `yaml:"create"`
	Win    ProbabilityTable `yaml:"win"`
	Min    float64          `yaml:"min"`
	Max    float64          `yaml:"max"`
}

// StageConfig parameterizes one open funnel stage. Entries in the stages map
// are replaced whole when overridden from YAML.
type StageConfig struct {
	Leakage        float64                     `yaml:"leakage"`
	DurationMu     float64                     `yaml:"duration_mu"`
	DurationSigma  float64                     `yaml:"duration_sigma"`
	LossLagMaxDays int                         `yaml:"loss_lag_max_days"`
	TechMultiplier map[model.TechBoost]float64 `yaml:"tech_multiplier"`
}

// FunnelConfig parameterizes the stage progression simulator. Absent modifier
// entries are neutral (1.0).
type FunnelConfig struct {
	Stages             map[model.Stage]StageConfig `yaml:"stages"`
	ICPLeakage         map[model.ICPFit]float64    `yaml:"icp_leakage"`
	TechLeakage        map[model.TechBoost]float64 `yaml:"tech_leakage"`
	PriorLeakage       float64                     `yaml:"prior_leakage"`
	PriorDuration      float64                     `yaml:"prior_duration"`
	SizeDurationScale  map[model.SizeBand]float64  `yaml:"size_duration_scale"`
	SurvivorshipUplift float64                     `yaml:"survivorship_uplift"`
}

// ARRRange is the annual recurring revenue interval of a size band.
type ARRRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// RevenueConfig parameterizes the revenue modeler.
type RevenueConfig struct {
	ARRRanges           map[model.SizeBand]ARRRange   `yaml:"arr_ranges"`
	BetaAlpha           float64                       `yaml:"beta_alpha"`
	BetaBeta            float64                       `yaml:"beta_beta"`
	ICPWeight           float64                       `yaml:"icp_weight"`
	TechWeights         map[model.TechBoost]float64   `yaml:"tech_weights"`
	PriorWeight         float64                       `yaml:"prior_weight"`
	StackWeight         float64                       `yaml:"stack_weight"`
	MaxFitUplift        float64                       `yaml:"max_fit_uplift"`
	StrongICPMultiplier float64                       `yaml:"strong_icp_multiplier"`
	JitterSigma         float64                       `yaml:"jitter_sigma"`
	GuardLow            float64                       `yaml:"guard_low"`
	GuardHighFit        float64                       `yaml:"guard_high_fit"`
	RoundTo             int64                         `yaml:"round_to"`
	TermWeights         map[model.BillingTerm]float64 `yaml:"term_weights"`
	DefaultTerm         model.BillingTerm             `yaml:"default_term"`
	TermMonths          int                           `yaml:"term_months"`
	StartLagMaxDays     int                           `yaml:"start_lag_max_days"`
	Currency            string                        `yaml:"currency"`
}

// DefaultSimulation returns the built-in simulation parameters.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		Calendar: CalendarConfig{Start: "2024-09-01", End: "2025-08-31"},
		Features: FeatureConfig{
			ICPAliases: map[string]model.ICPFit{
				"strong":   model.ICPStrong,
				"high":     model.ICPStrong,
				"moderate": model.ICPModerate,
				"medium":   model.ICPModerate,
				"weak":     model.ICPWeak,
				"low":      model.ICPWeak,
				"none":     model.ICPNone,
				"no":       model.ICPNone,
			},
			ICPStrongThreshold:   0.75,
			ICPModerateThreshold: 0.5,
			SizeBands: []SizeBandRange{
				{Band: model.SizeMicro, Min: 1, Max: 10},
				{Band: model.SizeSmall, Min: 11, Max: 50},
				{Band: model.SizeMid, Min: 51, Max: 1000},
				{Band: model.SizeEnterprise, Min: 1001},
			},
			DefaultSizeBand: model.SizeSmall,
			IndustrySegments: []IndustrySegment{
				{Name: "provider", Keywords: []string{"hospital", "health care", "healthcare", "medical", "clinic", "physician"}},
				{Name: "payer", Keywords: []string{"insurance", "payer", "health plan"}},
				{Name: "health_it", Keywords: []string{"software", "information technology", "health it", "internet"}},
			},
			DefaultIndustry: "other",
		},
		Probability: ProbabilityConfig{
			Create: ProbabilityTable{
				BaseRate: 0.35,
				ICP: map[model.ICPFit]float64{
					model.ICPStrong: 1.6, model.ICPModerate: 1.25, model.ICPWeak: 0.9, model.ICPNone: 0.6,
				},
				Tech: map[model.TechBoost]float64{
					model.TechBoostHigh: 1.2, model.TechBoostMedium: 1.1, model.TechBoostNone: 1.0,
				},
				Size: map[model.SizeBand]float64{
					model.SizeMicro: 0.9, model.SizeSmall: 1.0, model.SizeMid: 1.05, model.SizeEnterprise: 1.1,
				},
				Industry: map[string]float64{
					"provider": 1.0, "payer": 1.05, "health_it": 1.0, "other": 0.9,
				},
				PriorMultiplier: 1.0,
				PriorUplift:     0.4,
			},
			Win: ProbabilityTable{
				BaseRate: 0.25,
				ICP: map[model.ICPFit]float64{
					model.ICPStrong: 1.5, model.ICPModerate: 1.2, model.ICPWeak: 0.9, model.ICPNone: 0.7,
				},
				Tech: map[model.TechBoost]float64{
					model.TechBoostHigh: 1.25, model.TechBoostMedium: 1.1, model.TechBoostNone: 1.0,
				},
				Size: map[model.SizeBand]float64{
					model.SizeMicro: 1.0, model.SizeSmall: 1.0, model.SizeMid: 0.97, model.SizeEnterprise: 0.9,
				},
				Industry: map[string]float64{
					"provider": 1.0, "payer": 1.0, "health_it": 1.0, "other": 0.95,
				},
				PriorMultiplier: 1.0,
				PriorUplift:     0.3,
			},
			Min: 0.01,
			Max: 0.95,
		},
		Funnel: FunnelConfig{
			Stages: map[model.Stage]StageConfig{
				model.StageProspecting: {
					Leakage: 0.20, DurationMu: 2.3, DurationSigma: 0.5, LossLagMaxDays: 5,
				},
				model.StageQualification: {
					Leakage: 0.15, DurationMu: 2.6, DurationSigma: 0.5, LossLagMaxDays: 7,
					TechMultiplier: map[model.TechBoost]float64{model.TechBoostHigh: 1.1, model.TechBoostMedium: 1.1},
				},
				model.StageProposal: {
					Leakage: 0.10, DurationMu: 2.4, DurationSigma: 0.5, LossLagMaxDays: 10,
				},
				model.StageNegotiation: {
					Leakage: 0.07, DurationMu: 2.5, DurationSigma: 0.5, LossLagMaxDays: 10,
					TechMultiplier: map[model.TechBoost]float64{model.TechBoostHigh: 1.15, model.TechBoostMedium: 1.05},
				},
			},
			ICPLeakage: map[model.ICPFit]float64{
				model.ICPStrong: 0.85, model.ICPModerate: 0.95,
			},
			TechLeakage: map[model.TechBoost]float64{
				model.TechBoostHigh: 0.9,
			},
			PriorLeakage:  0.7,
			PriorDuration: 0.85,
			SizeDurationScale: map[model.SizeBand]float64{
				model.SizeMicro: 0.9, model.SizeSmall: 1.0, model.SizeMid: 1.15, model.SizeEnterprise: 1.4,
			},
			SurvivorshipUplift: 0.05,
		},
		Revenue: RevenueConfig{
			ARRRanges: map[model.SizeBand]ARRRange{
				model.SizeMicro:      {Min: 6000, Max: 14000},
				model.SizeSmall:      {Min: 12000, Max: 28000},
				model.SizeMid:        {Min: 28000, Max: 210000},
				model.SizeEnterprise: {Min: 150000, Max: 880000},
			},
			BetaAlpha: 2.2,
			BetaBeta:  2.2,
			ICPWeight: 0.45,
			TechWeights: map[model.TechBoost]float64{
				model.TechBoostHigh: 0.35, model.TechBoostMedium: 0.175, model.TechBoostNone: 0,
			},
			PriorWeight:         0.15,
			StackWeight:         0.05,
			MaxFitUplift:        0.25,
			StrongICPMultiplier: 1.1,
			JitterSigma:         0.06,
			GuardLow:            0.95,
			GuardHighFit:        0.30,
			RoundTo:             100,
			TermWeights: map[model.BillingTerm]float64{
				model.BillingMonthly: 0.3, model.BillingAnnual: 0.7,
			},
			DefaultTerm:     model.BillingAnnual,
			TermMonths:      12,
			StartLagMaxDays: 30,
			Currency:        "USD",
		},
		Owners: []string{
			"Marissa", "Maria", "Henry", "Isabella", "Jack", "Katherine", "Luke", "Mary",
			"Noah", "Olivia", "Peter", "Quinn", "Rachel", "Samuel", "Taylor", "William", "Zachary",
		},
	}
}

// LoadSimulation reads a YAML simulation config layered over the defaults and
// validates it. An empty path returns the validated defaults.
func LoadSimulation(path string) (SimulationConfig, error) {
	cfg := DefaultSimulation()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return SimulationConfig{}, eris.Wrapf(err, "config: read simulation config %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return SimulationConfig{}, eris.Wrapf(err, "config: parse simulation config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return SimulationConfig{}, err
	}
	return cfg, nil
}

// Validate checks every probability, rate and weight. It returns the first
// out-of-range value as a *simerr.RangeError, or an eris error for
// structurally broken config.
func (c SimulationConfig) Validate() error {
	v := &validator{}

	if _, _, err := c.Calendar.Window(); err != nil {
		return err
	}

	f := c.Features
	v.unit("features.icp_moderate_threshold", f.ICPModerateThreshold)
	v.between("features.icp_strong_threshold", f.ICPStrongThreshold, f.ICPModerateThreshold, 1)
	for i, r := range f.SizeBands {
		if !r.Band.Valid() {
			return eris.Errorf("config: features.size_bands[%d] has unknown band %q", i, r.Band)
		}
		v.between(fmt.Sprintf("features.size_bands[%d].min", i), float64(r.Min), 0, math.MaxInt32)
		if r.Max != 0 {
			v.between(fmt.Sprintf("features.size_bands[%d].max", i), float64(r.Max), float64(r.Min), math.MaxInt32)
		}
	}
	if f.DefaultSizeBand != "" && !f.DefaultSizeBand.Valid() {
		return eris.Errorf("config: features.default_size_band %q is not a size band", f.DefaultSizeBand)
	}

	p := c.Probability
	v.unit("probability.min", p.Min)
	v.between("probability.max", p.Max, p.Min, 1)
	v.table("probability.create", p.Create)
	v.table("probability.win", p.Win)

	fn := c.Funnel
	for stage, sc := range fn.Stages {
		if !slices.Contains(model.OpenStages, stage) {
			return eris.Errorf("config: funnel.stages has unknown stage %q", stage)
		}
		key := "funnel.stages." + string(stage)
		v.unit(key+".leakage", sc.Leakage)
		v.finite(key+".duration_mu", sc.DurationMu)
		v.weight(key+".duration_sigma", sc.DurationSigma)
		v.between(key+".loss_lag_max_days", float64(sc.LossLagMaxDays), 1, 365)
		for tb, w := range sc.TechMultiplier {
			v.weight(key+".tech_multiplier."+string(tb), w)
		}
	}
	for k, w := range fn.ICPLeakage {
		v.weight("funnel.icp_leakage."+string(k), w)
	}
	for k, w := range fn.TechLeakage {
		v.weight("funnel.tech_leakage."+string(k), w)
	}
	for k, w := range fn.SizeDurationScale {
		v.weight("funnel.size_duration_scale."+string(k), w)
	}
	v.weight("funnel.prior_leakage", fn.PriorLeakage)
	v.weight("funnel.prior_duration", fn.PriorDuration)
	v.weight("funnel.survivorship_uplift", fn.SurvivorshipUplift)

	r := c.Revenue
	for band, ar := range r.ARRRanges {
		key := "revenue.arr_ranges." + string(band)
		v.weight(key+".min", ar.Min)
		v.between(key+".max", ar.Max, ar.Min, math.MaxFloat64)
	}
	v.positive("revenue.beta_alpha", r.BetaAlpha)
	v.positive("revenue.beta_beta", r.BetaBeta)
	v.weight("revenue.icp_weight", r.ICPWeight)
	for k, w := range r.TechWeights {
		v.weight("revenue.tech_weights."+string(k), w)
	}
	v.weight("revenue.prior_weight", r.PriorWeight)
	v.weight("revenue.stack_weight", r.StackWeight)
	v.weight("revenue.max_fit_uplift", r.MaxFitUplift)
	v.weight("revenue.strong_icp_multiplier", r.StrongICPMultiplier)
	v.weight("revenue.jitter_sigma", r.JitterSigma)
	v.unit("revenue.guard_low", r.GuardLow)
	v.weight("revenue.guard_high_fit", r.GuardHighFit)
	v.between("revenue.round_to", float64(r.RoundTo), 1, math.MaxInt32)
	for k, w := range r.TermWeights {
		v.weight("revenue.term_weights."+string(k), w)
	}
	v.between("revenue.term_months", float64(r.TermMonths), 1, 120)
	v.between("revenue.start_lag_max_days", float64(r.StartLagMaxDays), 0, 365)

	return v.err
}

// validator records the first RangeError it sees.
type validator struct {
	err error
}

func (v *validator) between(field string, value, lo, hi float64) {
	if v.err != nil {
		return
	}
	if math.IsNaN(value) || value < lo || value > hi {
		v.err = &simerr.RangeError{Field: field, Value: value, Min: lo, Max: hi}
	}
}

func (v *validator) unit(field string, value float64) { v.between(field, value, 0, 1) }

func (v *validator) weight(field string, value float64) {
	v.between(field, value, 0, math.MaxFloat64)
}

func (v *validator) positive(field string, value float64) {
	v.between(field, value, math.SmallestNonzeroFloat64, math.MaxFloat64)
}

func (v *validator) finite(field string, value float64) {
	v.between(field, value, -math.MaxFloat64, math.MaxFloat64)
}

func (v *validator) table(prefix string, t ProbabilityTable) {
	v.unit(prefix+".base_rate", t.BaseRate)
	v.unit(prefix+".stack_weight", t.StackWeight)
	for k, w := range t.ICP {
		v.weight(prefix+".icp."+string(k), w)
	}
	for k, w := range t.Tech {
		v.weight(prefix+".tech."+string(k), w)
	}
	for k, w := range t.Size {
		v.weight(prefix+".size."+string(k), w)
	}
	for k, w := range t.Industry {
		v.weight(prefix+".industry."+k, w)
	}
	v.weight(prefix+".prior_multiplier", t.PriorMultiplier)
	v.unit(prefix+".prior_uplift", t.PriorUplift)
}
