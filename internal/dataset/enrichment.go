package dataset

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealgen/internal/features"
	"github.com/sells-group/dealgen/internal/model"
)

// cacheEntry is the on-disk enrichment record, one <domain>.json per company.
type cacheEntry struct {
	Stack struct {
		HealthTech []string `json:"health_tech"`
		TechTags   []string `json:"tech_tags"`
		Confidence float64  `json:"tech_stack_confidence"`
	} `json:"stack"`
	ICP struct {
		IsICP      *bool   `json:"is_icp"`
		Fit        string  `json:"icp_fit"`
		Confidence float64 `json:"icp_confidence"`
	} `json:"icp"`
}

// EnrichmentCache reads cached enrichment output from a directory. It never
// writes.
type EnrichmentCache struct {
	dir string
}

// NewEnrichmentCache returns a cache rooted at dir.
func NewEnrichmentCache(dir string) *EnrichmentCache {
	return &EnrichmentCache{dir: dir}
}

// Lookup returns the cached enrichment for a normalized domain. A missing
// entry is not an error.
func (c *EnrichmentCache) Lookup(domain string) (*model.Enrichment, bool, error) {
	if c == nil || c.dir == "" || domain == "" || strings.ContainsAny(domain, `/\`) {
		return nil, false, nil
	}

	path := filepath.Join(c.dir, domain+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "dataset: read enrichment %s", path)
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, eris.Wrapf(err, "dataset: parse enrichment %s", path)
	}
	return entry.enrichment(), true, nil
}

func (e cacheEntry) enrichment() *model.Enrichment {
	fit := e.ICP.Fit
	if fit == "" && e.ICP.IsICP != nil {
		if *e.ICP.IsICP {
			fit = "true"
		} else {
			fit = "false"
		}
	}

	var tags []model.TechTag
	switch {
	case len(e.Stack.TechTags) > 0:
		tags = features.ParseTechTags(strings.Join(e.Stack.TechTags, ";"))
	case len(e.Stack.HealthTech) > 0:
		tags = features.ParseHealthTech(strings.Join(e.Stack.HealthTech, " | "))
	default:
		tags = []model.TechTag{model.TechNoneDetected}
	}

	return &model.Enrichment{
		ICPFit:          fit,
		ICPConfidence:   e.ICP.Confidence,
		TechTags:        tags,
		StackConfidence: e.Stack.Confidence,
	}
}

// Attach fills in enrichment for companies that have none and returns how
// many were attached.
func (c *EnrichmentCache) Attach(companies []model.Company) (int, error) {
	var attached int
	for i := range companies {
		if companies[i].Enrichment != nil {
			continue
		}
		enr, ok, err := c.Lookup(companies[i].Domain)
		if err != nil {
			return attached, err
		}
		if ok {
			companies[i].Enrichment = enr
			attached++
		}
	}
	if c != nil && c.dir != "" {
		zap.L().Info("dataset: enrichment cache applied", zap.String("dir", c.dir), zap.Int("attached", attached))
	}
	return attached, nil
}
