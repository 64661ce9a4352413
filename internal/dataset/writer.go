package dataset

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealgen/internal/model"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Output file names.
const (
	FileDecisions   = "decisions.csv"
	FileDeals       = "deals.csv"
	FileStageEvents = "stage_events.csv"
	FileBilling     = "billing.csv"
	FileJSON        = "results.json"
	FileXLSX        = "dealgen.xlsx"
)

// DecisionRow is one company's deal-attempt decision with its signals.
type DecisionRow struct {
	AccountID     string  `csv:"account_id"`
	Name          string  `csv:"account_name"`
	Domain        string  `csv:"account_domain"`
	ICPTier       string  `csv:"icp_tier"`
	ICPConfidence float64 `csv:"icp_confidence"`
	TechBoost     string  `csv:"tech_boost"`
	SizeBand      string  `csv:"size_band"`
	Industry      string  `csv:"industry"`
	PriorCustomer bool    `csv:"prior_customer"`
	PCreate       float64 `csv:"p_create"`
	Draw          float64 `csv:"draw"`
	Created       bool    `csv:"deal_created"`
	PWinBase      float64 `csv:"p_win_base"`
	Outcome       string  `csv:"outcome"`
}

// DealRow is the wide view of a deal with one date column per stage.
type DealRow struct {
	DealID             string  `csv:"deal_id"`
	AccountID          string  `csv:"account_id"`
	Owner              string  `csv:"owner"`
	CreatedDate        string  `csv:"created_date"`
	Outcome            string  `csv:"outcome"`
	CurrentStage       string  `csv:"current_stage"`
	SalesCycleDays     int     `csv:"sales_cycle_days"`
	WinProbability     float64 `csv:"win_probability"`
	ClosedDate         string  `csv:"closed_date"`
	StageProspecting   string  `csv:"stage_date_prospecting"`
	StageQualification string  `csv:"stage_date_qualification"`
	StageProposal      string  `csv:"stage_date_proposal"`
	StageNegotiation   string  `csv:"stage_date_negotiation"`
	StageWon           string  `csv:"stage_date_closed_won"`
	StageLost          string  `csv:"stage_date_closed_lost"`
}

// StageEventRow is one entry of a deal's stage history.
type StageEventRow struct {
	DealID    string `csv:"deal_id"`
	Seq       int    `csv:"seq"`
	Stage     string `csv:"stage"`
	EnteredAt string `csv:"entered_at"`
	ExitedAt  string `csv:"exited_at"`
}

// BillingRow is the billing record of a won deal.
type BillingRow struct {
	BillingID  string `csv:"billing_id"`
	DealID     string `csv:"deal_id"`
	AccountID  string `csv:"account_id"`
	SizeBand   string `csv:"size_band"`
	ARR        int64  `csv:"arr"`
	MRR        string `csv:"mrr"`
	Term       string `csv:"billing_term"`
	TermMonths int    `csv:"term_months"`
	StartDate  string `csv:"start_date"`
	EndDate    string `csv:"end_date"`
	Currency   string `csv:"currency"`
}

// Rows holds the flattened output tables.
type Rows struct {
	Decisions   []DecisionRow
	Deals       []DealRow
	StageEvents []StageEventRow
	Billing     []BillingRow
}

// Flatten converts results into output rows, preserving result order.
func Flatten(results []model.CompanyResult) Rows {
	var out Rows
	for _, res := range results {
		out.Decisions = append(out.Decisions, DecisionRow{
			AccountID:     res.CompanyID,
			Name:          res.Name,
			Domain:        res.Domain,
			ICPTier:       string(res.Signals.ICPTier),
			ICPConfidence: res.Signals.ICPConfidence,
			TechBoost:     string(res.Signals.TechBoost),
			SizeBand:      string(res.Signals.SizeBand),
			Industry:      res.Signals.Industry,
			PriorCustomer: res.Signals.PriorCustomer,
			PCreate:       res.PCreate,
			Draw:          res.Decision.Draw,
			Created:       res.Decision.Created,
			PWinBase:      res.PWinBase,
			Outcome:       string(res.Outcome),
		})

		if d := res.Deal; d != nil {
			out.Deals = append(out.Deals, dealRow(d))
			for i, ev := range d.History {
				out.StageEvents = append(out.StageEvents, StageEventRow{
					DealID:    d.ID,
					Seq:       i,
					Stage:     string(ev.Stage),
					EnteredAt: formatDate(ev.EnteredAt),
					ExitedAt:  formatDatePtr(ev.ExitedAt),
				})
			}
		}

		if b := res.Billing; b != nil {
			out.Billing = append(out.Billing, BillingRow{
				BillingID:  b.ID,
				DealID:     b.DealID,
				AccountID:  b.CompanyID,
				SizeBand:   string(b.SizeBand),
				ARR:        b.ARR,
				MRR:        strconv.FormatFloat(b.MRR, 'f', 2, 64),
				Term:       string(b.Term),
				TermMonths: b.TermMonths,
				StartDate:  formatDate(b.StartDate),
				EndDate:    formatDate(b.EndDate),
				Currency:   b.Currency,
			})
		}
	}
	return out
}

func dealRow(d *model.Deal) DealRow {
	stageDate := func(s model.Stage) string {
		t, ok := d.StageDate(s)
		if !ok {
			return ""
		}
		return formatDate(t)
	}
	return DealRow{
		DealID:             d.ID,
		AccountID:          d.CompanyID,
		Owner:              d.Owner,
		CreatedDate:        formatDate(d.CreatedAt),
		Outcome:            string(d.Outcome),
		CurrentStage:       string(d.CurrentStage()),
		SalesCycleDays:     d.SalesCycleDays,
		WinProbability:     d.WinProbability,
		ClosedDate:         formatDatePtr(d.ClosedAt),
		StageProspecting:   stageDate(model.StageProspecting),
		StageQualification: stageDate(model.StageQualification),
		StageProposal:      stageDate(model.StageProposal),
		StageNegotiation:   stageDate(model.StageNegotiation),
		StageWon:           stageDate(model.StageWon),
		StageLost:          stageDate(model.StageLost),
	}
}

// Table is a named set of records, header first.
type Table struct {
	Name    string
	Records [][]string
}

type recordWriter struct {
	records [][]string
}

func (w *recordWriter) Write(record []string) error {
	w.records = append(w.records, append([]string(nil), record...))
	return nil
}

// encodeTable encodes rows with csvutil. The header is written even when
// there are no rows.
func encodeTable[T any](name string, rows []T) (Table, error) {
	w := &recordWriter{}
	enc := csvutil.NewEncoder(w)

	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return Table{}, eris.Wrapf(err, "dataset: encode %s header", name)
	}
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return Table{}, eris.Wrapf(err, "dataset: encode %s", name)
		}
	}
	return Table{Name: name, Records: w.records}, nil
}

// Tables encodes the output rows into decisions, deals, stage_events and
// billing tables.
func (r Rows) Tables() ([]Table, error) {
	decisions, err := encodeTable("decisions", r.Decisions)
	if err != nil {
		return nil, err
	}
	deals, err := encodeTable("deals", r.Deals)
	if err != nil {
		return nil, err
	}
	events, err := encodeTable("stage_events", r.StageEvents)
	if err != nil {
		return nil, err
	}
	billing, err := encodeTable("billing", r.Billing)
	if err != nil {
		return nil, err
	}
	return []Table{decisions, deals, events, billing}, nil
}

// Write writes results to dir in the given format and returns the paths
// written.
func Write(dir string, format Format, results []model.CompanyResult, summary model.BatchSummary) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "dataset: create output dir %s", dir)
	}

	var paths []string
	switch format {
	case FormatCSV, "":
		tables, err := Flatten(results).Tables()
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			path := filepath.Join(dir, t.Name+".csv")
			if err := writeCSV(path, t.Records); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	case FormatJSON:
		path := filepath.Join(dir, FileJSON)
		if err := writeJSON(path, results, summary); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	case FormatXLSX:
		tables, err := Flatten(results).Tables()
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, FileXLSX)
		if err := WriteXLSX(path, tables); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	default:
		return nil, eris.Errorf("dataset: unsupported output format %q", format)
	}

	zap.L().Info("dataset: output written",
		zap.String("dir", dir),
		zap.String("format", string(format)),
		zap.Strings("files", paths),
	)
	return paths, nil
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return eris.Wrapf(err, "dataset: write %s", path)
	}
	return eris.Wrapf(f.Close(), "dataset: close %s", path)
}

type jsonOutput struct {
	Summary model.BatchSummary    `json:"summary"`
	Results []model.CompanyResult `json:"results"`
}

func writeJSON(path string, results []model.CompanyResult, summary model.BatchSummary) error {
	if results == nil {
		results = []model.CompanyResult{}
	}
	data, err := json.MarshalIndent(jsonOutput{Summary: summary, Results: results}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "dataset: marshal results")
	}
	return eris.Wrapf(os.WriteFile(path, append(data, '\n'), 0o644), "dataset: write %s", path)
}
