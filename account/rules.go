package account

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/types"
)

var (
	// ErrDuplicatePurchase is returned when an idempotency key was already applied.
	ErrDuplicatePurchase = errors.New("account: purchase already applied")

	// ErrInvariant reports a pool outside 0 <= remaining <= added.
	ErrInvariant = errors.New("account: credit invariant violated")
)

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Today formats the UTC calendar day of now.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}

// New creates the account of a first login: one trial purchase and today as
// the only login date.
func New(email string, trial *plan.Plan, now time.Time) *Account {
	today := Today(now)
	a := &Account{
		Entity:        types.NewEntity(now),
		Email:         NormalizeEmail(email),
		LastLoginDate: today,
		LoginHistory:  []string{today},
	}
	a.Purchases = append(a.Purchases, newPurchase(trial, now, ""))
	return a
}

func newPurchase(p *plan.Plan, now time.Time, key string) *Purchase {
	pools := make(map[plan.Pool]*Credits, len(p.Credits))
	for pool, n := range p.Credits {
		pools[pool] = &Credits{Added: n, Remaining: n}
	}
	return &Purchase{
		ID:             id.NewPurchaseID(),
		PlanID:         p.ID,
		PlanName:       p.PurchaseName(),
		Kind:           p.Kind,
		Tier:           p.Tier,
		PurchasedAt:    now.UTC(),
		Pools:          pools,
		IdempotencyKey: key,
	}
}

// ──────────────────────────────────────────────────
// Purchases
// ──────────────────────────────────────────────────

// ExpiresAt returns when the purchase stops counting. ok is false for
// purchases that never expire.
func (p *Purchase) ExpiresAt() (time.Time, bool) {
	return plan.ExpiryOf(p.Kind, p.PurchasedAt)
}

// ActiveAt reports whether the purchase counts towards balances at now.
func (p *Purchase) ActiveAt(now time.Time) bool {
	at, expires := p.ExpiresAt()
	return !expires || now.Before(at)
}

// Remaining returns the remainder of pool, zero when the purchase has none.
func (p *Purchase) Remaining(pool plan.Pool) int64 {
	if c, ok := p.Pools[pool]; ok {
		return c.Remaining
	}
	return 0
}

// AddPurchase appends a purchase of p. A non-empty key that is already
// recorded returns the earlier purchase and ErrDuplicatePurchase.
func (a *Account) AddPurchase(p *plan.Plan, now time.Time, key string) (*Purchase, error) {
	if key != "" {
		if prev := a.PurchaseByKey(key); prev != nil {
			return prev, ErrDuplicatePurchase
		}
	}
	pur := newPurchase(p, now, key)
	a.Purchases = append(a.Purchases, pur)
	a.Touch(now)
	return pur, nil
}

// PurchaseByKey finds the purchase applied under an idempotency key.
func (a *Account) PurchaseByKey(key string) *Purchase {
	for _, p := range a.Purchases {
		if p.IdempotencyKey == key {
			return p
		}
	}
	return nil
}

// RecentDuplicate returns the latest purchase when it has the given plan
// name and was recorded less than window before now.
func (a *Account) RecentDuplicate(planName string, now time.Time, window time.Duration) *Purchase {
	if len(a.Purchases) == 0 {
		return nil
	}
	last := a.Purchases[len(a.Purchases)-1]
	if last.PlanName != planName {
		return nil
	}
	if age := now.Sub(last.PurchasedAt); age >= 0 && age < window {
		return last
	}
	return nil
}

// ActivePurchases returns the purchases counting at now, in purchase order.
func (a *Account) ActivePurchases(now time.Time) []*Purchase {
	out := make([]*Purchase, 0, len(a.Purchases))
	for _, p := range a.Purchases {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out
}

// Balance sums the remainder of pool over active purchases.
func (a *Account) Balance(now time.Time, pool plan.Pool) int64 {
	var n int64
	for _, p := range a.ActivePurchases(now) {
		n += p.Remaining(pool)
	}
	return n
}

// Balances returns the balance of every pool seen in the purchase history.
func (a *Account) Balances(now time.Time) map[plan.Pool]int64 {
	out := map[plan.Pool]int64{}
	for _, p := range a.Purchases {
		for pool := range p.Pools {
			if _, ok := out[pool]; !ok {
				out[pool] = 0
			}
		}
	}
	for _, p := range a.ActivePurchases(now) {
		for pool, c := range p.Pools {
			out[pool] += c.Remaining
		}
	}
	return out
}

// ActivePlan picks the highest-tier active subscription. Same-tier
// subscriptions resolve to the most recent one. Trials and top-ups never
// label the account.
func (a *Account) ActivePlan(now time.Time) (string, plan.Tier) {
	var best *Purchase
	for _, p := range a.ActivePurchases(now) {
		if p.Kind != plan.KindSubscription {
			continue
		}
		if best == nil || p.Tier > best.Tier ||
			(p.Tier == best.Tier && !p.PurchasedAt.Before(best.PurchasedAt)) {
			best = p
		}
	}
	if best == nil {
		return plan.FreePlanName, plan.TierFree
	}
	return best.PlanName, best.Tier
}

// ──────────────────────────────────────────────────
// Logins
// ──────────────────────────────────────────────────

// RecordLogin books today's login. It returns false when today was already
// recorded, which makes repeated logins on one day a no-op.
func (a *Account) RecordLogin(now time.Time) bool {
	today := Today(now)
	if a.LastLoginDate == today {
		return false
	}
	a.LastLoginDate = today
	if !a.hasLogin(today) {
		a.LoginHistory = append(a.LoginHistory, today)
		sort.Strings(a.LoginHistory)
	}
	a.Touch(now)
	return true
}

func (a *Account) hasLogin(day string) bool {
	for _, d := range a.LoginHistory {
		if d == day {
			return true
		}
	}
	return false
}

// RecentLogins counts distinct login days in the trailing window, today
// included.
func (a *Account) RecentLogins(now time.Time, windowDays int) int {
	today, _ := time.Parse(DateLayout, Today(now))
	cutoff := today.AddDate(0, 0, -windowDays)

	seen := make(map[string]bool, len(a.LoginHistory))
	for _, d := range a.LoginHistory {
		day, err := time.Parse(DateLayout, d)
		if err != nil || seen[d] {
			continue
		}
		if day.After(cutoff) && !day.After(today) {
			seen[d] = true
		}
	}
	return len(seen)
}

// LoginLocked reports whether a Free account has logged in on more than
// LoginLimit days of the window. It is evaluated on every read, never stored.
func (a *Account) LoginLocked(now time.Time, rules Rules) bool {
	if _, tier := a.ActivePlan(now); tier != plan.TierFree {
		return false
	}
	return a.RecentLogins(now, rules.LoginWindowDays) > rules.LoginLimit
}

// ──────────────────────────────────────────────────
// Deductions
// ──────────────────────────────────────────────────

// Deduct takes amount credits from pool, oldest active purchase first. It is
// all-or-nothing: when the balance is short nothing changes and ok is false.
func (a *Account) Deduct(now time.Time, pool plan.Pool, amount int64) ([]meter.Allocation, bool) {
	if amount <= 0 {
		return nil, amount == 0
	}
	if a.Balance(now, pool) < amount {
		return nil, false
	}

	candidates := make([]*Purchase, 0, len(a.Purchases))
	for _, p := range a.ActivePurchases(now) {
		if p.Remaining(pool) > 0 {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PurchasedAt.Before(candidates[j].PurchasedAt)
	})

	left := amount
	allocs := make([]meter.Allocation, 0, 2)
	for _, p := range candidates {
		if left == 0 {
			break
		}
		c := p.Pools[pool]
		take := min(c.Remaining, left)
		c.Remaining -= take
		left -= take
		allocs = append(allocs, meter.Allocation{
			PurchaseID: p.ID,
			PlanName:   p.PlanName,
			Amount:     take,
			Remaining:  c.Remaining,
		})
	}
	a.Touch(now)
	return allocs, true
}

// ──────────────────────────────────────────────────
// Derived view
// ──────────────────────────────────────────────────

// Summarize computes the active plan, balances and login lock at now.
func (a *Account) Summarize(now time.Time, rules Rules) *Summary {
	name, tier := a.ActivePlan(now)
	balances := a.Balances(now)

	var total int64
	for _, n := range balances {
		total += n
	}

	active := a.ActivePurchases(now)
	copies := make([]Purchase, 0, len(active))
	for _, p := range active {
		copies = append(copies, p.clone())
	}

	recent := a.RecentLogins(now, rules.LoginWindowDays)
	return &Summary{
		Email:           a.Email,
		ActivePlan:      name,
		ActiveTier:      tier,
		Balances:        balances,
		Total:           total,
		RecentLogins:    recent,
		LoginLocked:     tier == plan.TierFree && recent > rules.LoginLimit,
		ActivePurchases: copies,
		At:              now.UTC(),
	}
}

// Validate checks the credit invariant of every purchase.
func (a *Account) Validate() error {
	for _, p := range a.Purchases {
		for pool, c := range p.Pools {
			if c == nil || c.Remaining < 0 || c.Remaining > c.Added {
				return fmt.Errorf("%w: purchase %s pool %s", ErrInvariant, p.ID, pool)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.LoginHistory = append([]string(nil), a.LoginHistory...)
	out.Purchases = make([]*Purchase, len(a.Purchases))
	for i, p := range a.Purchases {
		c := p.clone()
		out.Purchases[i] = &c
	}
	return &out
}

// Clone returns a deep copy of the purchase.
func (p *Purchase) Clone() *Purchase {
	if p == nil {
		return nil
	}
	c := p.clone()
	return &c
}

func (p *Purchase) clone() Purchase {
	out := *p
	out.Pools = make(map[plan.Pool]*Credits, len(p.Pools))
	for pool, c := range p.Pools {
		if c == nil {
			continue
		}
		cc := *c
		out.Pools[pool] = &cc
	}
	return out
}
