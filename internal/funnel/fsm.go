// Package funnel simulates a deal's progression through the sales pipeline as
// an explicit state machine: entry, per-stage leakage and duration, and a
// final win decision.
package funnel

import "github.com/sells-group/dealgen/internal/model"

// Enter returns the state reached by an entry draw: prospecting when the draw
// falls below p, no_opportunity otherwise.
func Enter(p, draw float64) model.Stage {
	if draw < p {
		return model.StageProspecting
	}
	return model.StageNoOpportunity
}

// Leak reports whether a stage with leakage probability p loses the deal on
// this draw.
func Leak(p, draw float64) bool {
	return draw < p
}

// Next returns the open stage after s. ok is false after negotiation and for
// terminal or unknown stages.
func Next(s model.Stage) (next model.Stage, ok bool) {
	for i, st := range model.OpenStages {
		if st == s && i+1 < len(model.OpenStages) {
			return model.OpenStages[i+1], true
		}
	}
	return "", false
}

// Decide returns the terminal stage for the closing draw.
func Decide(p, draw float64) model.Stage {
	if draw < p {
		return model.StageWon
	}
	return model.StageLost
}

// OutcomeOf maps a terminal stage to its outcome.
func OutcomeOf(s model.Stage) model.Outcome {
	switch s {
	case model.StageWon:
		return model.OutcomeWon
	case model.StageLost:
		return model.OutcomeLost
	case model.StageNoOpportunity:
		return model.OutcomeNoOpportunity
	default:
		return model.OutcomeOpen
	}
}
