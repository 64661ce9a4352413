package model

import "time"

// BillingTerm is the invoicing frequency of a won deal.
type BillingTerm string

const (
	BillingMonthly BillingTerm = "monthly"
	BillingAnnual  BillingTerm = "annual"
)

// BillingRecord is the recurring revenue booked for a won deal.
type BillingRecord struct {
	ID         string      `json:"id"`
	DealID     string      `json:"deal_id"`
	CompanyID  string      `json:"company_id"`
	SizeBand   SizeBand    `json:"size_band"`
	ARR        int64       `json:"arr"`
	MRR        float64     `json:"mrr"`
	Term       BillingTerm `json:"billing_term"`
	TermMonths int         `json:"term_months"`
	StartDate  time.Time   `json:"start_date"`
	EndDate    time.Time   `json:"end_date"`
	Currency   string      `json:"currency"`
}
