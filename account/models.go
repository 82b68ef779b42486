// Package account holds the per-email credit record and every rule that is
// derived from it: expiry, balances, the active plan label, login throttling
// and FIFO deductions. All rules take the current time as an argument; the
// package never reads the wall clock.
package account

import (
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/types"
)

// DateLayout is the day-granular format of login dates (UTC).
const DateLayout = "2006-01-02"

// Credits is one pool of a purchase. 0 <= Remaining <= Added.
type Credits struct {
	Added     int64 `json:"added"`
	Remaining int64 `json:"remaining"`
}

// Purchase is one grant event: the trial seed, a subscription or a top-up.
type Purchase struct {
	ID             id.PurchaseID          `json:"id"`
	PlanID         string                 `json:"plan_id"`
	PlanName       string                 `json:"plan_name"`
	Kind           plan.Kind              `json:"kind"`
	Tier           plan.Tier              `json:"tier"`
	PurchasedAt    time.Time              `json:"purchase_date"`
	Pools          map[plan.Pool]*Credits `json:"pools"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
}

// Account is keyed by normalized email. Purchases are in purchase order.
type Account struct {
	types.Entity
	Email         string      `json:"email"`
	Purchases     []*Purchase `json:"plan_history"`
	LastLoginDate string      `json:"last_login_date"`
	LoginHistory  []string    `json:"login_history"`
}

// Rules parameterize the login throttle.
type Rules struct {
	LoginLimit      int // distinct login days tolerated in the window
	LoginWindowDays int
}

// DefaultRules locks a Free account on its 7th login day within 30 days.
func DefaultRules() Rules {
	return Rules{LoginLimit: 6, LoginWindowDays: 30}
}

// Summary is the derived view of an account at one instant.
type Summary struct {
	Email           string              `json:"email"`
	ActivePlan      string              `json:"active_plan"`
	ActiveTier      plan.Tier           `json:"active_tier"`
	Balances        map[plan.Pool]int64 `json:"balances"`
	Total           int64               `json:"total"`
	RecentLogins    int                 `json:"recent_logins"`
	LoginLocked     bool                `json:"login_locked"`
	ActivePurchases []Purchase          `json:"active_purchases"`
	At              time.Time           `json:"at"`
}

// Balance returns the balance of pool, zero when absent.
func (s *Summary) Balance(pool plan.Pool) int64 { return s.Balances[pool] }
