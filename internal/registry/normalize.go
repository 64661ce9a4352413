package registry

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/dealgen/internal/model"
)

// NormalizeDomain reduces a website, URL, hostname or email address to its
// lowercase registrable domain ("https://www.Portal.Acme.co.uk/x" becomes
// "acme.co.uk"). It returns "" when nothing host-like is present.
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if at := strings.LastIndex(s, "@"); at >= 0 && !strings.Contains(s, "://") {
		s = s[at+1:]
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") {
		return host
	}

	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// FoldName returns a Unicode-normalized, case-folded form of a company name
// with runs of whitespace collapsed.
func FoldName(name string) string {
	folded := cases.Fold().String(norm.NFKC.String(name))
	return strings.Join(strings.Fields(folded), " ")
}

// CompanyKey returns the stable identity used to seed a company's random
// streams: its registrable domain, else its folded name, else its ID.
func CompanyKey(c model.Company) string {
	if d := NormalizeDomain(c.Domain); d != "" {
		return d
	}
	if n := FoldName(c.Name); n != "" {
		return "name:" + n
	}
	return "id:" + strings.TrimSpace(c.ID)
}
