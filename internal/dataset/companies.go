// Package dataset reads company inputs and writes the simulated sales and
// billing tables.
package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealgen/internal/features"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/registry"
)

// CompanyRow is one raw input row. Every field is kept as text so a bad
// value can be reported with its row number.
type CompanyRow struct {
	ID              string `csv:"account_id"`
	Name            string `csv:"account_name"`
	Domain          string `csv:"account_domain"`
	Industry        string `csv:"industry"`
	Country         string `csv:"country"`
	EmployeeBand    string `csv:"employee_band"`
	CreatedDate     string `csv:"created_date"`
	PriorCustomer   string `csv:"is_prev_customer"`
	ICP             string `csv:"icp"`
	ICPConfidence   string `csv:"icp_confidence"`
	TechTags        string `csv:"tech_tags"`
	HealthTech      string `csv:"health_tech"`
	StackConfidence string `csv:"tech_stack_confidence"`
}

// headerAliases maps accepted input headers onto CompanyRow columns.
var headerAliases = map[string]string{
	"id":                     "account_id",
	"company_id":             "account_id",
	"name":                   "account_name",
	"company":                "account_name",
	"domain":                 "account_domain",
	"primary_industry":       "industry",
	"size":                   "employee_band",
	"employees":              "employee_band",
	"employee_count":         "employee_band",
	"reference_date":         "created_date",
	"prior_customer":         "is_prev_customer",
	"is_prev_stedi_customer": "is_prev_customer",
	"icp_fit":                "icp",
	"stack_confidence":       "tech_stack_confidence",
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// padReader pads short records to the header width so sparse spreadsheet
// rows decode.
type padReader struct {
	r     csvutil.Reader
	width int
}

func (p *padReader) Read() ([]string, error) {
	rec, err := p.r.Read()
	if err != nil {
		return nil, err
	}
	for len(rec) < p.width {
		rec = append(rec, "")
	}
	return rec, nil
}

// rowReader adapts pre-split rows to csvutil.Reader.
type rowReader struct {
	rows [][]string
	pos  int
}

func (r *rowReader) Read() ([]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		out[i] = h
	}
	return out
}

// decodeRows decodes a header row followed by data rows into companies.
func decodeRows(r csvutil.Reader, header []string) ([]model.Company, error) {
	dec, err := csvutil.NewDecoder(&padReader{r: r, width: len(header)}, normalizeHeader(header)...)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: create decoder")
	}

	var companies []model.Company
	for line := 2; ; line++ {
		var row CompanyRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "dataset: decode row %d", line)
		}
		c, err := row.Company()
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: row %d", line)
		}
		companies = append(companies, c)
	}
	return companies, nil
}

// ReadCompaniesCSV reads companies from CSV with a header row.
func ReadCompaniesCSV(r io.Reader) ([]model.Company, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv header")
	}
	return decodeRows(cr, header)
}

// ReadCompaniesXLSX reads companies from a worksheet whose first row is the
// header.
func ReadCompaniesXLSX(path string, opts XLSXOptions) ([]model.Company, error) {
	rows, err := ReadXLSX(path, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeRows(&rowReader{rows: rows[1:]}, rows[0])
}

// LoadCompanies reads companies from a .csv or .xlsx file.
func LoadCompanies(path string) ([]model.Company, error) {
	var (
		companies []model.Company
		err       error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "dataset: open %s", path)
		}
		defer f.Close()
		companies, err = ReadCompaniesCSV(f)
	case ".xlsx":
		companies, err = ReadCompaniesXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("dataset: unsupported input %s (want .csv or .xlsx)", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: load %s", path)
	}

	zap.L().Info("dataset: companies loaded", zap.String("path", path), zap.Int("count", len(companies)))
	return companies, nil
}

// Company converts the raw row into a company.
func (r CompanyRow) Company() (model.Company, error) {
	c := model.Company{
		ID:           strings.TrimSpace(r.ID),
		Name:         strings.TrimSpace(r.Name),
		Domain:       registry.NormalizeDomain(r.Domain),
		Industry:     strings.TrimSpace(r.Industry),
		Country:      strings.TrimSpace(r.Country),
		EmployeeBand: strings.TrimSpace(r.EmployeeBand),
	}
	if c.ID == "" && c.Name == "" && c.Domain == "" {
		return model.Company{}, eris.New("company has no id, name or domain")
	}
	if c.ID == "" {
		c.ID = registry.CompanyKey(c)
	}

	var err error
	if c.ReferenceDate, err = parseDate(r.CreatedDate); err != nil {
		return model.Company{}, err
	}
	if c.PriorCustomer, err = parseBool("is_prev_customer", r.PriorCustomer); err != nil {
		return model.Company{}, err
	}
	if c.Enrichment, err = r.enrichment(); err != nil {
		return model.Company{}, err
	}
	return c, nil
}

func (r CompanyRow) enrichment() (*model.Enrichment, error) {
	if strings.TrimSpace(r.ICP+r.ICPConfidence+r.TechTags+r.HealthTech+r.StackConfidence) == "" {
		return nil, nil
	}

	icpConf, err := parseFloat("icp_confidence", r.ICPConfidence)
	if err != nil {
		return nil, err
	}
	stackConf, err := parseFloat("tech_stack_confidence", r.StackConfidence)
	if err != nil {
		return nil, err
	}

	var tags []model.TechTag
	switch {
	case strings.TrimSpace(r.TechTags) != "":
		tags = features.ParseTechTags(r.TechTags)
	case strings.TrimSpace(r.HealthTech) != "":
		tags = features.ParseHealthTech(r.HealthTech)
	}

	return &model.Enrichment{
		ICPFit:          strings.TrimSpace(r.ICP),
		ICPConfidence:   icpConf,
		TechTags:        tags,
		StackConfidence: stackConf,
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("created_date %q is not a recognized date", raw)
}

func parseBool(field, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "false", "no", "n":
		return false, nil
	case "1", "true", "yes", "y":
		return true, nil
	default:
		return false, eris.Errorf("%s %q is not a boolean", field, raw)
	}
}

func parseFloat(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "%s %q is not a number", field, raw)
	}
	return f, nil
}

// Dedupe keeps the first company for each company key and reports how many
// were dropped.
func Dedupe(companies []model.Company) ([]model.Company, int) {
	seen := make(map[string]bool, len(companies))
	out := make([]model.Company, 0, len(companies))
	for _, c := range companies {
		key := registry.CompanyKey(c)
		if seen[key] {
			zap.L().Debug("dataset: duplicate company dropped", zap.String("key", key), zap.String("company_id", c.ID))
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, len(companies) - len(out)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}
