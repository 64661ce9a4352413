// Package registry holds company identity helpers and the previous-customer
// registry.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Customers is an immutable set of previous-customer registrable domains.
type Customers struct {
	domains map[string]struct{}
}

// NewCustomers builds a registry from raw domains, websites or emails.
// Entries that do not normalize to a domain are dropped.
func NewCustomers(raw []string) *Customers {
	c := &Customers{domains: make(map[string]struct{}, len(raw))}
	for _, r := range raw {
		if d := NormalizeDomain(r); d != "" {
			c.domains[d] = struct{}{}
		}
	}
	return c
}

// Contains reports whether the domain belongs to a previous customer. A nil
// registry contains nothing.
func (c *Customers) Contains(domain string) bool {
	if c == nil {
		return false
	}
	d := NormalizeDomain(domain)
	if d == "" {
		return false
	}
	_, ok := c.domains[d]
	return ok
}

// Len returns the number of distinct domains.
func (c *Customers) Len() int {
	if c == nil {
		return 0
	}
	return len(c.domains)
}

// Domains returns the sorted domain list.
func (c *Customers) Domains() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.domains))
	for d := range c.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// LoadCustomersFromFile reads a previous-customer list. JSON and YAML files
// hold an array of strings; any other extension is read as one entry per
// line, with '#' starting a comment.
func LoadCustomersFromFile(path string) (*Customers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read customers file")
	}

	var raw []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrap(err, "registry: unmarshal customers json")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrap(err, "registry: unmarshal customers yaml")
		}
	default:
		for _, line := range strings.Split(string(data), "\n") {
			if i := strings.IndexByte(line, '#'); i >= 0 {
				line = line[:i]
			}
			if line = strings.TrimSpace(line); line != "" {
				raw = append(raw, line)
			}
		}
	}

	c := NewCustomers(raw)
	zap.L().Debug("registry: loaded previous customers",
		zap.String("path", path),
		zap.Int("entries", len(raw)),
		zap.Int("domains", c.Len()),
	)
	return c, nil
}
