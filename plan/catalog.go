package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xraph/credits/types"
)

// ErrPlanNotFound is returned by Catalog.Get for an unknown plan id.
var ErrPlanNotFound = errors.New("plan: not found")

// Catalog is an immutable, ordered set of plans. Exactly one plan has
// KindTrial; it seeds new accounts.
type Catalog struct {
	plans []*Plan
	byID  map[string]*Plan
	trial *Plan
	pools []Pool
}

// NewCatalog validates plans and builds a catalog in the given display order.
func NewCatalog(plans ...*Plan) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Plan, len(plans))}
	seenPool := map[Pool]bool{}

	for _, p := range plans {
		key := normalizeID(p.ID)
		if key == "" {
			return nil, fmt.Errorf("plan: %q: empty id", p.Name)
		}
		if _, dup := c.byID[key]; dup {
			return nil, fmt.Errorf("plan: duplicate id %q", key)
		}
		if p.Kind == KindTrial {
			if c.trial != nil {
				return nil, fmt.Errorf("plan: %q and %q are both trial plans", c.trial.ID, p.ID)
			}
			c.trial = p
		}
		for pool, n := range p.Credits {
			if n < 0 {
				return nil, fmt.Errorf("plan: %q grants negative %s credits", p.ID, pool)
			}
			if !seenPool[pool] {
				seenPool[pool] = true
				c.pools = append(c.pools, pool)
			}
		}
		c.byID[key] = p
		c.plans = append(c.plans, p)
	}

	if c.trial == nil {
		return nil, errors.New("plan: catalog has no trial plan")
	}
	sort.Slice(c.pools, func(i, j int) bool { return c.pools[i] < c.pools[j] })
	return c, nil
}

// MustCatalog is NewCatalog for package-level literals.
func MustCatalog(plans ...*Plan) *Catalog {
	c, err := NewCatalog(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the plan with the given id. Ids are matched case-insensitively.
func (c *Catalog) Get(planID string) (*Plan, error) {
	p, ok := c.byID[normalizeID(planID)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, planID)
	}
	return p, nil
}

// List returns the plans in display order.
func (c *Catalog) List() []*Plan {
	out := make([]*Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Trial returns the plan granted on first login.
func (c *Catalog) Trial() *Plan { return c.trial }

// Pools returns every pool any plan grants, sorted by name.
func (c *Catalog) Pools() []Pool {
	out := make([]Pool, len(c.pools))
	copy(out, c.pools)
	return out
}

// TierOf ranks a purchase plan name. Unknown names rank as Free.
func (c *Catalog) TierOf(name string) Tier {
	if name == TrialPurchaseName {
		return TierFree
	}
	for _, p := range c.plans {
		if p.Name == name {
			return p.Tier
		}
	}
	return TierFree
}

func normalizeID(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// DefaultCatalog is the dual-pool catalog: every plan grants Pollinations and
// Google Imagen credits separately.
func DefaultCatalog() *Catalog {
	return MustCatalog(
		&Plan{
			ID:          "free",
			Name:        FreePlanName,
			Kind:        KindTrial,
			Tier:        TierFree,
			Price:       types.USD(0),
			Description: "For starters and hobbyists.",
			Features: []string{
				"20 Pollinations credits (Free Trial)",
				"Standard Quality generations",
				"Upgrade to use Google Imagen 3",
			},
			CTA:     "Your Current Plan",
			Credits: map[Pool]int64{PoolImagen: 0, PoolPollinations: 20},
		},
		&Plan{
			ID:          "pro",
			Name:        "Pro",
			Kind:        KindSubscription,
			Tier:        TierPro,
			Price:       types.USD(5000),
			PriceUnit:   "/ month",
			Description: "For professionals and creators.",
			Features: []string{
				"1,500 Google Imagen 3 credits",
				"1,500 Pollinations credits",
				"HD (2K) Quality access",
				"Commercial use license",
				"Priority support",
			},
			CTA:          "Upgrade to Pro",
			Popular:      true,
			PurchaseLink: "https://buy.polar.sh/polar_cl_iQpYIoo3qkW310DMOKN5lXhQo70OHOiLLU5Fp0eZ49f",
			Credits:      map[Pool]int64{PoolImagen: 1500, PoolPollinations: 1500},
		},
		&Plan{
			ID:          "mega",
			Name:        "Mega",
			Kind:        KindSubscription,
			Tier:        TierMega,
			Price:       types.USD(10000),
			PriceUnit:   "/ month",
			Description: "For power users and teams.",
			Features: []string{
				"5,000 Google Imagen 3 credits",
				"5,000 Pollinations credits",
				"4K Ultra-High Quality access",
				"API access (coming soon)",
				"Team collaboration features",
			},
			CTA:          "Upgrade to Mega",
			PurchaseLink: "https://buy.polar.sh/polar_cl_xkFeAW6Ib01eE9ya6C6jRJVdkpSmHIb9xMnXL0trOi7",
			Credits:      map[Pool]int64{PoolImagen: 5000, PoolPollinations: 5000},
		},
		&Plan{
			ID:          "booster",
			Name:        "Booster Pack",
			Kind:        KindTopUp,
			Tier:        TierBooster,
			Price:       types.USD(2000),
			PriceUnit:   "one-time",
			Description: "Add-on credit top-up.",
			Features: []string{
				"500 Google Imagen 3 credits",
				"500 Pollinations credits",
				"Credits never expire",
				"Use with any plan",
			},
			CTA:          "Buy Credits",
			PurchaseLink: "https://buy.polar.sh/polar_cl_u5vpk1YGAidaW5Lf7PXbDiWqo7jDVyWlv1v0o3G0NAh",
			Credits:      map[Pool]int64{PoolImagen: 500, PoolPollinations: 500},
		},
	)
}

// SinglePoolCatalog is the reduced configuration with one shared pool.
func SinglePoolCatalog() *Catalog {
	return MustCatalog(
		&Plan{ID: "free", Name: FreePlanName, Kind: KindTrial, Tier: TierFree,
			Price: types.USD(0), CTA: "Your Current Plan",
			Credits: map[Pool]int64{PoolCredits: 20}},
		&Plan{ID: "pro", Name: "Pro", Kind: KindSubscription, Tier: TierPro,
			Price: types.USD(5000), PriceUnit: "/ month", CTA: "Upgrade to Pro", Popular: true,
			Credits: map[Pool]int64{PoolCredits: 3000}},
		&Plan{ID: "mega", Name: "Mega", Kind: KindSubscription, Tier: TierMega,
			Price: types.USD(10000), PriceUnit: "/ month", CTA: "Upgrade to Mega",
			Credits: map[Pool]int64{PoolCredits: 10000}},
		&Plan{ID: "booster", Name: "Booster Pack", Kind: KindTopUp, Tier: TierBooster,
			Price: types.USD(2000), PriceUnit: "one-time", CTA: "Buy Credits",
			Credits: map[Pool]int64{PoolCredits: 1000}},
	)
}
