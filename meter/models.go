// Package meter describes confirmed credit consumption. A Deduction is emitted
// after every successful debit so hooks can audit or count usage.
package meter

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
)

// Allocation is the part of a deduction taken from one purchase.
type Allocation struct {
	PurchaseID id.PurchaseID `json:"purchase_id"`
	PlanName   string        `json:"plan_name"`
	Amount     int64         `json:"amount"`
	Remaining  int64         `json:"remaining"` // purchase remainder after this allocation
}

type Deduction struct {
	ID            id.DeductionID `json:"id"`
	Email         string         `json:"email"`
	Pool          plan.Pool      `json:"pool"`
	Amount        int64          `json:"amount"`
	BalanceBefore int64          `json:"balance_before"`
	BalanceAfter  int64          `json:"balance_after"`
	Allocations   []Allocation   `json:"allocations"`
	Reference     string         `json:"reference,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Generation records one provider call and what it was charged.
type Generation struct {
	ID       id.GenerationID `json:"id"`
	Email    string          `json:"email"`
	Provider string          `json:"provider"`
	Model    string          `json:"model,omitempty"`
	Media    string          `json:"media"`
	Pool     plan.Pool       `json:"pool"`
	Credits  int64           `json:"credits"`
	Charged  bool            `json:"charged"`
	URL      string          `json:"url,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
	Err      error           `json:"-"`
}
