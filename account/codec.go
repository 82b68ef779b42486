package account

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
)

// Encode serializes the account for the key-value store.
func (a *Account) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// legacyPurchase accepts single-pool records written before pools were
// split per provider.
type legacyPurchase struct {
	ID               string                 `json:"id"`
	PlanID           string                 `json:"plan_id"`
	PlanName         string                 `json:"plan_name"`
	PlanNameCamel    string                 `json:"planName"`
	Kind             plan.Kind              `json:"kind"`
	Tier             plan.Tier              `json:"tier"`
	PurchasedAt      time.Time              `json:"purchase_date"`
	PurchaseDate     time.Time              `json:"purchaseDate"`
	Pools            map[plan.Pool]*Credits `json:"pools"`
	CreditsAdded     *int64                 `json:"creditsAdded"`
	CreditsRemaining *int64                 `json:"creditsRemaining"`
	IdempotencyKey   string                 `json:"idempotency_key"`
}

type legacyAccount struct {
	Account
	Purchases          []legacyPurchase `json:"plan_history"`
	PlanHistoryCamel   []legacyPurchase `json:"planHistory"`
	LastLoginDateCamel string           `json:"lastLoginDate"`
	LoginHistoryCamel  []string         `json:"loginHistory"`
}

// Decode parses a stored account. Records with camelCase keys and a single
// creditsAdded/creditsRemaining pair are upgraded: their credits land in
// LegacyPool(catalog) and kind and tier are inferred from the plan name
// through catalog. Upgrading is deterministic, so decoding the same bytes
// twice gives the same purchase IDs.
func Decode(data []byte, catalog *plan.Catalog) (*Account, error) {
	var raw legacyAccount
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("account: decode: %w", err)
	}

	a := raw.Account
	a.Purchases = nil
	if a.LastLoginDate == "" {
		a.LastLoginDate = raw.LastLoginDateCamel
	}
	if len(a.LoginHistory) == 0 {
		a.LoginHistory = raw.LoginHistoryCamel
	}

	history := raw.Purchases
	if len(history) == 0 {
		history = raw.PlanHistoryCamel
	}
	for i := range history {
		p, err := history[i].upgrade(catalog, a.Email, i)
		if err != nil {
			return nil, err
		}
		a.Purchases = append(a.Purchases, p)
	}

	a.Email = NormalizeEmail(a.Email)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (lp *legacyPurchase) upgrade(catalog *plan.Catalog, email string, index int) (*Purchase, error) {
	p := &Purchase{
		PlanID:         lp.PlanID,
		PlanName:       lp.PlanName,
		Kind:           lp.Kind,
		Tier:           lp.Tier,
		PurchasedAt:    lp.PurchasedAt,
		Pools:          lp.Pools,
		IdempotencyKey: lp.IdempotencyKey,
	}
	if p.PlanName == "" {
		p.PlanName = lp.PlanNameCamel
	}
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = lp.PurchaseDate
	}
	if p.PurchasedAt.IsZero() {
		return nil, fmt.Errorf("account: decode: purchase %q has no purchase date", lp.ID)
	}
	p.ID = legacyID(lp.ID, email, index, p)

	if p.Pools == nil {
		p.Pools = map[plan.Pool]*Credits{}
	}
	if lp.CreditsAdded != nil && len(p.Pools) == 0 {
		c := &Credits{Added: *lp.CreditsAdded, Remaining: *lp.CreditsAdded}
		if lp.CreditsRemaining != nil {
			c.Remaining = *lp.CreditsRemaining
		}
		p.Pools[plan.PoolCredits] = c
	}
	rehome(p.Pools, catalog)

	if p.Kind == "" {
		p.Kind, p.Tier = inferKind(p.PlanName, catalog)
	}
	return p, nil
}

// legacyNamespace seeds name-based IDs for purchases that carry neither a
// TypeID nor a UUID.
var legacyNamespace = uuid.MustParse("6f1c3c2e-5a4b-4f8e-9d21-3b7c0e5a9f10")

// legacyID keeps a stored TypeID, encodes a stored UUID under the purchase
// prefix and otherwise derives a name-based UUID from the record's content.
func legacyID(raw, email string, index int, p *Purchase) id.PurchaseID {
	if parsed, err := id.ParsePurchaseID(raw); err == nil {
		return parsed
	}
	if parsed, err := id.FromUUID(id.PrefixPurchase, raw); err == nil {
		return parsed
	}
	name := fmt.Sprintf("%s|%d|%s|%s|%s", email, index, raw, p.PlanName, p.PurchasedAt.UTC().Format(time.RFC3339Nano))
	derived, err := id.FromUUID(id.PrefixPurchase, uuid.NewSHA1(legacyNamespace, []byte(name)).String())
	if err != nil {
		return id.NewPurchaseID()
	}
	return derived
}

// LegacyPool is where single-pool credits land when a record predates the
// pool split: the catalog's PoolCredits or only pool, else the pool of the
// largest trial grant.
func LegacyPool(catalog *plan.Catalog) plan.Pool {
	if catalog == nil {
		return plan.PoolCredits
	}
	pools := catalog.Pools()
	if slices.Contains(pools, plan.PoolCredits) || len(pools) == 0 {
		return plan.PoolCredits
	}
	if len(pools) == 1 {
		return pools[0]
	}
	best := pools[0]
	if trial := catalog.Trial(); trial != nil {
		var most int64
		for _, pool := range pools {
			if n := trial.Credits[pool]; n > most {
				best, most = pool, n
			}
		}
	}
	return best
}

// rehome moves credits held in a pool the catalog does not grant into
// LegacyPool, so an upgraded record never shows a balance nothing can spend.
func rehome(pools map[plan.Pool]*Credits, catalog *plan.Catalog) {
	if catalog == nil {
		return
	}
	known := catalog.Pools()
	target := LegacyPool(catalog)
	for pool, c := range pools {
		if slices.Contains(known, pool) || c == nil {
			continue
		}
		delete(pools, pool)
		if dst := pools[target]; dst != nil {
			dst.Added += c.Added
			dst.Remaining += c.Remaining
		} else {
			pools[target] = c
		}
	}
}

func inferKind(name string, catalog *plan.Catalog) (plan.Kind, plan.Tier) {
	if name == plan.TrialPurchaseName {
		return plan.KindTrial, plan.TierFree
	}
	if catalog != nil {
		for _, cp := range catalog.List() {
			if cp.Name == name {
				return cp.Kind, cp.Tier
			}
		}
	}
	// Unknown names are treated as non-expiring top-ups so credits are never
	// silently dropped.
	return plan.KindTopUp, plan.TierFree
}
