// Package features turns a raw company and its enrichment into the normalized
// categorical signals the probability model consumes.
package features

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/registry"
	"github.com/sells-group/dealgen/internal/simerr"
)

const component = "features"

// CustomerLookup reports whether a domain belongs to a previous customer.
type CustomerLookup interface {
	Contains(domain string) bool
}

// Extractor derives Signals from companies. It is read-only after
// construction and safe for concurrent use.
type Extractor struct {
	cfg       config.FeatureConfig
	customers CustomerLookup
	keywords  [][]string
}

// NewExtractor creates an Extractor. customers may be nil.
func NewExtractor(cfg config.FeatureConfig, customers CustomerLookup) *Extractor {
	keywords := make([][]string, len(cfg.IndustrySegments))
	for i, seg := range cfg.IndustrySegments {
		for _, kw := range seg.Keywords {
			if f := registry.FoldName(kw); f != "" {
				keywords[i] = append(keywords[i], f)
			}
		}
	}
	return &Extractor{cfg: cfg, customers: customers, keywords: keywords}
}

// Extract derives the signals for c. An employee band that maps to no
// configured size band is a ConfigurationError.
func (e *Extractor) Extract(c model.Company) (model.Signals, error) {
	return e.ExtractWithSize(c, "")
}

// ExtractWithSize is Extract with a fallback band used when the employee band
// cannot be mapped. An empty fallback disables the fallback.
func (e *Extractor) ExtractWithSize(c model.Company, fallback model.SizeBand) (model.Signals, error) {
	tier, conf := e.ICP(c.Enrichment)

	var tags []model.TechTag
	var stackConf float64
	if c.Enrichment != nil {
		tags = c.Enrichment.TechTags
		stackConf = clampUnit(c.Enrichment.StackConfidence)
	}

	band, err := e.SizeBand(c.EmployeeBand)
	if err != nil {
		if !fallback.Valid() {
			return model.Signals{}, err
		}
		zap.L().Debug("features: using fallback size band",
			zap.String("company", c.Label()),
			zap.String("employee_band", c.EmployeeBand),
			zap.String("fallback", string(fallback)),
		)
		band = fallback
	}

	industry, err := e.Industry(c.Industry)
	if err != nil {
		return model.Signals{}, err
	}

	return model.Signals{
		ICPTier:         tier,
		ICPConfidence:   conf,
		TechBoost:       TechBoost(tags),
		SizeBand:        band,
		Industry:        industry,
		PriorCustomer:   e.PriorCustomer(c),
		StackConfidence: stackConf,
	}, nil
}

// ICP maps the enrichment's raw label to a tier and clamped confidence.
// Missing enrichment and unknown labels yield none with zero confidence.
func (e *Extractor) ICP(enr *model.Enrichment) (model.ICPFit, float64) {
	if enr == nil {
		return model.ICPNone, 0
	}

	label := strings.ToLower(strings.TrimSpace(enr.ICPFit))
	conf := clampUnit(enr.ICPConfidence)

	if tier, ok := e.cfg.ICPAliases[label]; ok && tier.Valid() {
		return tier, conf
	}

	switch label {
	case "true", "yes", "1":
		switch {
		case conf >= e.cfg.ICPStrongThreshold:
			return model.ICPStrong, conf
		case conf >= e.cfg.ICPModerateThreshold:
			return model.ICPModerate, conf
		default:
			return model.ICPWeak, conf
		}
	case "false", "0":
		return model.ICPNone, conf
	}

	return model.ICPNone, 0
}

// TechBoost collapses tech tags into a single boost level: X12 or a
// clearinghouse is high, FHIR/HL7 alone is medium.
func TechBoost(tags []model.TechTag) model.TechBoost {
	var fhir bool
	for _, t := range tags {
		switch t {
		case model.TechX12, model.TechClearinghouse:
			return model.TechBoostHigh
		case model.TechFHIR:
			fhir = true
		}
	}
	if fhir {
		return model.TechBoostMedium
	}
	return model.TechBoostNone
}

// SizeBand maps a raw employee band label to a configured size band using the
// label's lower bound.
func (e *Extractor) SizeBand(label string) (model.SizeBand, error) {
	n, ok := ParseEmployeeCount(label)
	if !ok {
		return "", simerr.NewConfigurationError(component, "size_bands",
			eris.Errorf("features: unparseable employee band %q", label))
	}
	for _, r := range e.cfg.SizeBands {
		if r.Contains(n) {
			return r.Band, nil
		}
	}
	return "", simerr.NewConfigurationError(component, "size_bands",
		eris.Errorf("features: no size band covers %d employees", n))
}

// Industry resolves a free-text industry to a configured segment. With no
// segments configured the result is empty and carries no weight.
func (e *Extractor) Industry(raw string) (string, error) {
	if len(e.cfg.IndustrySegments) == 0 {
		return "", nil
	}

	folded := registry.FoldName(raw)
	if folded != "" {
		for i, seg := range e.cfg.IndustrySegments {
			for _, kw := range e.keywords[i] {
				if strings.Contains(folded, kw) {
					return seg.Name, nil
				}
			}
		}
	}

	if e.cfg.DefaultIndustry != "" {
		return e.cfg.DefaultIndustry, nil
	}
	return "", simerr.NewConfigurationError(component, "industry_segments",
		eris.Errorf("features: no segment matches industry %q", raw))
}

// PriorCustomer combines the input flag with a registry lookup.
func (e *Extractor) PriorCustomer(c model.Company) bool {
	if c.PriorCustomer {
		return true
	}
	return e.customers != nil && e.customers.Contains(c.Domain)
}

// ParseEmployeeCount extracts the lower bound from labels such as "51-200",
// "10,001+", "250" or "51-200 employees".
func ParseEmployeeCount(label string) (int, bool) {
	s := strings.ReplaceAll(label, ",", "")
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}
