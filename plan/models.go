// Package plan holds the static plan catalog: what each plan costs, how many
// credits it grants per pool, whether its grant expires and how it ranks.
package plan

import (
	"time"

	"github.com/xraph/credits/types"
)

// Pool names an independently tracked credit bucket.
type Pool string

const (
	PoolPollinations Pool = "pollinations"
	PoolImagen       Pool = "imagen"

	// PoolCredits is the only pool of single-pool catalogs.
	PoolCredits Pool = "credits"
)

// Kind decides the expiry rule of a purchase.
type Kind string

const (
	KindTrial        Kind = "trial"        // seeded on first login, never expires
	KindSubscription Kind = "subscription" // expires SubscriptionPeriod after purchase
	KindTopUp        Kind = "topup"        // one-time pack, never expires
)

// SubscriptionDays is the lifetime of a subscription purchase in calendar days.
const SubscriptionDays = 30

// Tier ranks plans for the active plan label. It never merges pools.
type Tier int

const (
	TierFree    Tier = 0
	TierBooster Tier = 1
	TierPro     Tier = 2
	TierMega    Tier = 3
)

// FreePlanName is the label of an account without an active subscription.
const FreePlanName = "Free"

// TrialPurchaseName is the plan name recorded on the seeded trial purchase.
const TrialPurchaseName = "Free Trial"

// Plan is one catalog entry.
type Plan struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         Kind           `json:"kind"`
	Tier         Tier           `json:"tier"`
	Price        types.Money    `json:"price"`
	PriceUnit    string         `json:"price_unit,omitempty"`
	Description  string         `json:"description"`
	Features     []string       `json:"features"`
	CTA          string         `json:"cta"`
	Popular      bool           `json:"popular"`
	PurchaseLink string         `json:"purchase_link,omitempty"`
	Credits      map[Pool]int64 `json:"credits"`
}

// Expires reports whether purchases of this plan lapse.
func (p *Plan) Expires() bool { return p.Kind == KindSubscription }

// PurchaseName is the plan name written onto a purchase of this plan.
func (p *Plan) PurchaseName() string {
	if p.Kind == KindTrial {
		return TrialPurchaseName
	}
	return p.Name
}

// TotalCredits sums the grant over all pools.
func (p *Plan) TotalCredits() int64 {
	var n int64
	for _, c := range p.Credits {
		n += c
	}
	return n
}

// ExpiryOf returns when a purchase of kind made at purchasedAt stops counting.
// ok is false for kinds that never expire.
func ExpiryOf(kind Kind, purchasedAt time.Time) (time.Time, bool) {
	if kind != KindSubscription {
		return time.Time{}, false
	}
	return purchasedAt.AddDate(0, 0, SubscriptionDays), true
}
