package model

import "time"

// Stage is a state in the sales funnel.
type Stage string

const (
	StageNotStarted    Stage = "not_started"
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageWon           Stage = "won"
	StageLost          Stage = "lost"
	StageNoOpportunity Stage = "no_opportunity"
)

// OpenStages is the fixed ordering of non-terminal pipeline stages.
var OpenStages = []Stage{StageProspecting, StageQualification, StageProposal, StageNegotiation}

// Order returns the position of the stage in the fixed stage ordering.
// Won and Lost share the closing position. Unknown stages return -1.
func (s Stage) Order() int {
	switch s {
	case StageNotStarted:
		return 0
	case StageProspecting:
		return 1
	case StageQualification:
		return 2
	case StageProposal:
		return 3
	case StageNegotiation:
		return 4
	case StageWon, StageLost:
		return 5
	default:
		return -1
	}
}

// Terminal reports whether no further transition is possible from s.
func (s Stage) Terminal() bool {
	return s == StageWon || s == StageLost || s == StageNoOpportunity
}

// Outcome is the final classification of a company's simulation.
type Outcome string

const (
	OutcomeWon           Outcome = "won"
	OutcomeLost          Outcome = "lost"
	OutcomeOpen          Outcome = "open"
	OutcomeNoOpportunity Outcome = "no_opportunity"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{OutcomeWon, OutcomeLost, OutcomeOpen, OutcomeNoOpportunity}

// DealAttemptDecision records whether a deal was opened for a company.
type DealAttemptDecision struct {
	CompanyID   string  `json:"company_id"`
	Created     bool    `json:"created"`
	Probability float64 `json:"probability"`
	Draw        float64 `json:"draw"`
}

// StageEvent is one entry in a deal's stage history. ExitedAt is nil for
// terminal events and for the stage an open deal currently sits in.
type StageEvent struct {
	Stage     Stage      `json:"stage"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

// Deal is a simulated sales opportunity.
type Deal struct {
	ID             string       `json:"id"`
	CompanyID      string       `json:"company_id"`
	Owner          string       `json:"owner,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	History        []StageEvent `json:"history"`
	Outcome        Outcome      `json:"outcome"`
	SalesCycleDays int          `json:"sales_cycle_days"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	WinProbability float64      `json:"win_probability"`
}

// CurrentStage returns the stage of the last history event.
func (d *Deal) CurrentStage() Stage {
	if d == nil || len(d.History) == 0 {
		return StageNotStarted
	}
	return d.History[len(d.History)-1].Stage
}

// Reached reports whether the deal's history includes stage s.
func (d *Deal) Reached(s Stage) bool {
	if d == nil {
		return false
	}
	for _, ev := range d.History {
		if ev.Stage == s {
			return true
		}
	}
	return false
}

// StageDate returns the entry time of stage s, if reached.
func (d *Deal) StageDate(s Stage) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	for _, ev := range d.History {
		if ev.Stage == s {
			return ev.EnteredAt, true
		}
	}
	return time.Time{}, false
}
