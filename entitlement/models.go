// Package entitlement describes the answer to "may this session run this
// generation now?".
package entitlement

import "github.com/xraph/credits/plan"

type Reason string

const (
	ReasonOK                  Reason = "ok"
	ReasonNotLoggedIn         Reason = "not_logged_in"
	ReasonLoginLocked         Reason = "login_locked"
	ReasonInsufficientCredits Reason = "insufficient_credits"
)

type Result struct {
	Allowed   bool      `json:"allowed"`
	Reason    Reason    `json:"reason"`
	Email     string    `json:"email,omitempty"`
	Provider  string    `json:"provider"`
	Pool      plan.Pool `json:"pool"`
	Cost      int64     `json:"cost"`
	Balance   int64     `json:"balance"`
	Remaining int64     `json:"remaining"` // balance after the cost, 0 when short
}

// Message is the short user-facing text for a denial.
func (r *Result) Message() string {
	switch r.Reason {
	case ReasonNotLoggedIn:
		return "Please log in to start generating."
	case ReasonLoginLocked:
		return "You have reached the free login limit for this month. Upgrade to keep creating."
	case ReasonInsufficientCredits:
		return "Not enough credits for this generation. Upgrade or buy a Booster Pack."
	default:
		return ""
	}
}
