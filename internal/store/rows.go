package store

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealgen/internal/db"
	"github.com/sells-group/dealgen/internal/model"
)

var (
	decisionColumns = []string{"run_id", "company_id", "name", "domain", "created", "probability", "draw", "p_win_base", "outcome", "signals"}
	dealColumns     = []string{"run_id", "id", "company_id", "owner", "created_at", "outcome", "sales_cycle_days", "closed_at", "win_probability"}
	eventColumns    = []string{"run_id", "deal_id", "seq", "stage", "entered_at", "exited_at"}
	billingColumns  = []string{"run_id", "id", "deal_id", "company_id", "size_band", "arr", "mrr", "term", "term_months", "start_date", "end_date", "currency"}
)

// resultTables flattens results into one row set per table, in insert order.
func resultTables(runID string, results []model.CompanyResult) ([]db.Table, error) {
	decisions := db.Table{Name: "decisions", Columns: decisionColumns}
	deals := db.Table{Name: "deals", Columns: dealColumns}
	events := db.Table{Name: "stage_events", Columns: eventColumns}
	billing := db.Table{Name: "billing", Columns: billingColumns}

	for _, res := range results {
		signals, err := json.Marshal(res.Signals)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal signals for %s", res.CompanyID)
		}
		decisions.Rows = append(decisions.Rows, []any{
			runID, res.CompanyID, res.Name, res.Domain, res.Decision.Created,
			res.Decision.Probability, res.Decision.Draw, res.PWinBase, string(res.Outcome), signals,
		})

		if d := res.Deal; d != nil {
			deals.Rows = append(deals.Rows, []any{
				runID, d.ID, d.CompanyID, d.Owner, d.CreatedAt, string(d.Outcome),
				d.SalesCycleDays, nullableTime(d.ClosedAt), d.WinProbability,
			})
			for i, ev := range d.History {
				events.Rows = append(events.Rows, []any{runID, d.ID, i, string(ev.Stage), ev.EnteredAt, nullableTime(ev.ExitedAt)})
			}
		}

		if b := res.Billing; b != nil {
			billing.Rows = append(billing.Rows, []any{
				runID, b.ID, b.DealID, b.CompanyID, string(b.SizeBand), b.ARR, b.MRR,
				string(b.Term), b.TermMonths, b.StartDate, b.EndDate, b.Currency,
			})
		}
	}

	return []db.Table{decisions, deals, events, billing}, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// Seeds are stored as decimal text since uint64 does not fit a signed column.
func formatSeed(seed uint64) string { return strconv.FormatUint(seed, 10) }

func parseSeed(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, eris.Wrapf(err, "store: parse seed %q", s)
}

func unmarshalSummary(data []byte) (*model.BatchSummary, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s model.BatchSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal summary")
	}
	return &s, nil
}
