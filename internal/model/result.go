package model

import "time"

// Signals is the normalized categorical feature set derived for a company.
type Signals struct {
	ICPTier         ICPFit    `json:"icp_tier"`
	ICPConfidence   float64   `json:"icp_confidence"`
	TechBoost       TechBoost `json:"tech_boost"`
	SizeBand        SizeBand  `json:"size_band"`
	Industry        string    `json:"industry,omitempty"`
	PriorCustomer   bool      `json:"prior_customer"`
	StackConfidence float64   `json:"tech_stack_confidence"`
}

// CompanyResult is everything the engine produced for one company.
// Deal is nil for no_opportunity; Billing is non-nil only for won deals.
type CompanyResult struct {
	CompanyID string              `json:"company_id"`
	Name      string              `json:"name"`
	Domain    string              `json:"domain"`
	Signals   Signals             `json:"signals"`
	PCreate   float64             `json:"p_create"`
	PWinBase  float64             `json:"p_win_base"`
	Decision  DealAttemptDecision `json:"decision"`
	Deal      *Deal               `json:"deal,omitempty"`
	Billing   *BillingRecord      `json:"billing,omitempty"`
	Outcome   Outcome             `json:"outcome"`
}

// BatchSummary counts what happened during a batch run.
type BatchSummary struct {
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Skipped   int             `json:"skipped"`
	Outcomes  map[Outcome]int `json:"outcomes"`
}

// Run is the stored bookkeeping record of one generation run.
type Run struct {
	ID          string        `json:"id"`
	Seed        uint64        `json:"seed"`
	Input       string        `json:"input"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Summary     *BatchSummary `json:"summary,omitempty"`
	Error       string        `json:"error,omitempty"`
}
