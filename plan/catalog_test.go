package plan

import (
	"errors"
	"testing"
	"time"
)

func TestCatalogGet(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		in   string
		want string
	}{
		{in: "pro", want: "Pro"},
		{in: " PRO ", want: "Pro"},
		{in: "mega", want: "Mega"},
		{in: "booster", want: "Booster Pack"},
		{in: "free", want: "Free"},
	}
	for _, tt := range tests {
		p, err := c.Get(tt.in)
		if err != nil {
			t.Fatalf("Get(%q): %v", tt.in, err)
		}
		if p.Name != tt.want {
			t.Fatalf("Get(%q).Name = %q, want %q", tt.in, p.Name, tt.want)
		}
	}

	for _, bad := range []string{"", "gold", "pro-plan"} {
		if _, err := c.Get(bad); !errors.Is(err, ErrPlanNotFound) {
			t.Fatalf("Get(%q) err = %v, want ErrPlanNotFound", bad, err)
		}
	}
}

func TestTierOrder(t *testing.T) {
	c := DefaultCatalog()
	order := []string{TrialPurchaseName, "Booster Pack", "Pro", "Mega"}
	for i := 1; i < len(order); i++ {
		if c.TierOf(order[i-1]) >= c.TierOf(order[i]) {
			t.Fatalf("expected %q to outrank %q", order[i], order[i-1])
		}
	}
	if c.TierOf("Platinum") != TierFree {
		t.Fatalf("unknown plan names rank as free")
	}
}

func TestDefaultCatalogGrants(t *testing.T) {
	c := DefaultCatalog()
	if got := c.Trial().Credits[PoolPollinations]; got != 20 {
		t.Fatalf("trial pollinations grant = %d, want 20", got)
	}
	if got := c.Trial().PurchaseName(); got != TrialPurchaseName {
		t.Fatalf("trial purchase name = %q", got)
	}
	pro, _ := c.Get("pro")
	if pro.Credits[PoolImagen] != 1500 || pro.Credits[PoolPollinations] != 1500 {
		t.Fatalf("pro grant = %v", pro.Credits)
	}
	if pools := c.Pools(); len(pools) != 2 || pools[0] != PoolImagen || pools[1] != PoolPollinations {
		t.Fatalf("pools = %v", pools)
	}

	single := SinglePoolCatalog()
	sp, _ := single.Get("pro")
	if sp.TotalCredits() != 3000 || len(single.Pools()) != 1 {
		t.Fatalf("single pool pro = %v", sp.Credits)
	}
}

func TestExpiry(t *testing.T) {
	bought := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

	at, ok := ExpiryOf(KindSubscription, bought)
	if !ok || !at.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("subscription expiry = %v, %v", at, ok)
	}
	for _, k := range []Kind{KindTrial, KindTopUp} {
		if _, ok := ExpiryOf(k, bought); ok {
			t.Fatalf("kind %q should not expire", k)
		}
	}
}

func TestNewCatalogRejects(t *testing.T) {
	trial := &Plan{ID: "free", Name: "Free", Kind: KindTrial}
	tests := []struct {
		name  string
		plans []*Plan
	}{
		{"no trial", []*Plan{{ID: "pro", Name: "Pro", Kind: KindSubscription}}},
		{"duplicate id", []*Plan{trial, {ID: "FREE", Name: "Other", Kind: KindTopUp}}},
		{"two trials", []*Plan{trial, {ID: "t2", Name: "T2", Kind: KindTrial}}},
		{"empty id", []*Plan{trial, {ID: " ", Name: "Blank"}}},
		{"negative grant", []*Plan{trial, {ID: "neg", Name: "Neg", Credits: map[Pool]int64{PoolCredits: -1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCatalog(tt.plans...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
