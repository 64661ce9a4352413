// Package probability composes deal-creation and win probabilities from
// company signals. Every function here is pure.
package probability

import (
	"math"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/simerr"
)

const component = "probability"

// Factors records each multiplier applied to reach a probability.
type Factors struct {
	BaseRate            float64 `json:"base_rate"`
	ICPWeight           float64 `json:"icp_weight"`
	TechstackWeight     float64 `json:"techstack_weight"`
	SizeWeight          float64 `json:"size_weight"`
	IndustryWeight      float64 `json:"industry_weight"`
	PriorCustomerWeight float64 `json:"prior_customer_weight"`
	StackWeight         float64 `json:"stack_weight"`
	Raw                 float64 `json:"raw"`
}

// Composer turns signals into probabilities using one validated config.
type Composer struct {
	cfg config.ProbabilityConfig
}

// NewComposer creates a Composer.
func NewComposer(cfg config.ProbabilityConfig) *Composer {
	return &Composer{cfg: cfg}
}

// Create returns p_create for the signals.
func (c *Composer) Create(sig model.Signals) (float64, Factors, error) {
	return c.compose("create", c.cfg.Create, sig)
}

// Win returns p_win_base for the signals.
func (c *Composer) Win(sig model.Signals) (float64, Factors, error) {
	return c.compose("win", c.cfg.Win, sig)
}

// Bounds returns the configured output clamp.
func (c *Composer) Bounds() (lo, hi float64) {
	return c.cfg.Min, c.cfg.Max
}

// Clamp limits p to the configured bounds.
func (c *Composer) Clamp(p float64) float64 {
	return Clamp(p, c.cfg.Min, c.cfg.Max)
}

func (c *Composer) compose(name string, t config.ProbabilityTable, sig model.Signals) (float64, Factors, error) {
	prefix := "probability." + name

	icp, ok := t.ICP[sig.ICPTier]
	if !ok {
		return 0, Factors{}, simerr.NewConfigurationError(component, prefix+".icp."+string(sig.ICPTier), nil)
	}
	tech, ok := t.Tech[sig.TechBoost]
	if !ok {
		return 0, Factors{}, simerr.NewConfigurationError(component, prefix+".tech."+string(sig.TechBoost), nil)
	}
	size, ok := t.Size[sig.SizeBand]
	if !ok {
		return 0, Factors{}, simerr.NewConfigurationError(component, prefix+".size."+string(sig.SizeBand), nil)
	}
	industry := 1.0
	if sig.Industry != "" {
		industry, ok = t.Industry[sig.Industry]
		if !ok {
			return 0, Factors{}, simerr.NewConfigurationError(component, prefix+".industry."+sig.Industry, nil)
		}
	}

	f := Factors{
		BaseRate:            t.BaseRate,
		ICPWeight:           icp,
		TechstackWeight:     tech,
		SizeWeight:          size,
		IndustryWeight:      industry,
		PriorCustomerWeight: 1,
		StackWeight:         1 - t.StackWeight + t.StackWeight*sig.StackConfidence,
	}
	raw := t.BaseRate * icp * tech * size * industry * f.StackWeight
	if sig.PriorCustomer {
		f.PriorCustomerWeight = t.PriorMultiplier
		raw = raw*t.PriorMultiplier + t.PriorUplift
	}
	f.Raw = raw

	return Clamp(raw, c.cfg.Min, c.cfg.Max), f, nil
}

// Clamp limits x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
