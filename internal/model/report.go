package model

import "time"

// OutcomeStatus is the terminal state of a symbol within a cycle.
type OutcomeStatus string

const (
	StatusPlanned   OutcomeStatus = "PLANNED"
	StatusSkipped   OutcomeStatus = "SKIPPED"
	StatusSubmitted OutcomeStatus = "SUBMITTED"
	StatusFailed    OutcomeStatus = "FAILED"
)

// Outcome records what happened to one configured symbol.
type Outcome struct {
	Symbol      string        `json:"symbol"`
	Status      OutcomeStatus `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	Score       float64       `json:"score,omitempty"`
	TargetSpend float64       `json:"target_spend,omitempty"`
	Price       float64       `json:"price,omitempty"`
	Quantity    string        `json:"quantity,omitempty"`
	OrderID     int64         `json:"order_id,omitempty"`
}

// CycleReport is the complete result of one DCA cycle.
type CycleReport struct {
	ID          string       `json:"id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Budget      float64      `json:"budget"`
	DryRun      bool         `json:"dry_run"`
	Allocations []Allocation `json:"allocations"`
	Outcomes    []Outcome    `json:"outcomes"`
	Balances    []Balance    `json:"balances,omitempty"`
}

// Count returns the number of outcomes with the given status.
func (r *CycleReport) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// PlannedSpend sums the target spend across all allocations.
func (r *CycleReport) PlannedSpend() float64 {
	var sum float64
	for _, a := range r.Allocations {
		sum += a.TargetSpend
	}
	return sum
}
