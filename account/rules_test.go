package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/plan"
)

var t0 = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

func mustPlan(t *testing.T, c *plan.Catalog, planID string) *plan.Plan {
	t.Helper()
	p, err := c.Get(planID)
	require.NoError(t, err)
	return p
}

// singlePool builds an account on the single-pool catalog with the trial
// purchase at t0.
func singlePool(t *testing.T) (*Account, *plan.Catalog) {
	t.Helper()
	c := plan.SinglePoolCatalog()
	return New("  Ada@Example.COM ", c.Trial(), t0), c
}

func TestNewSeedsTrial(t *testing.T) {
	a, _ := singlePool(t)

	assert.Equal(t, "ada@example.com", a.Email)
	require.Len(t, a.Purchases, 1)
	trial := a.Purchases[0]
	assert.Equal(t, plan.TrialPurchaseName, trial.PlanName)
	assert.Equal(t, int64(20), trial.Pools[plan.PoolCredits].Added)
	assert.Equal(t, int64(20), trial.Pools[plan.PoolCredits].Remaining)
	assert.Equal(t, []string{"2026-10-01"}, a.LoginHistory)
	assert.Equal(t, "2026-10-01", a.LastLoginDate)

	s := a.Summarize(t0, DefaultRules())
	assert.Equal(t, plan.FreePlanName, s.ActivePlan)
	assert.Equal(t, int64(20), s.Balance(plan.PoolCredits))
	assert.False(t, s.LoginLocked)
}

func TestDeductFIFO(t *testing.T) {
	a, c := singlePool(t)
	a.Purchases[0].Pools[plan.PoolCredits].Remaining = 5

	booster, err := a.AddPurchase(mustPlan(t, c, "booster"), t0.Add(time.Hour), "")
	require.NoError(t, err)
	booster.Pools[plan.PoolCredits] = &Credits{Added: 10, Remaining: 10}

	allocs, ok := a.Deduct(t0.Add(2*time.Hour), plan.PoolCredits, 8)
	require.True(t, ok)

	assert.Equal(t, int64(0), a.Purchases[0].Remaining(plan.PoolCredits))
	assert.Equal(t, int64(7), booster.Remaining(plan.PoolCredits))
	require.Len(t, allocs, 2)
	assert.Equal(t, int64(5), allocs[0].Amount)
	assert.Equal(t, int64(3), allocs[1].Amount)
	assert.Equal(t, booster.ID, allocs[1].PurchaseID)
}

func TestDeductOrdersByPurchaseDateNotInsertion(t *testing.T) {
	a, c := singlePool(t)
	// Inserted after the trial but dated before it.
	older, err := a.AddPurchase(mustPlan(t, c, "booster"), t0.Add(-48*time.Hour), "")
	require.NoError(t, err)

	allocs, ok := a.Deduct(t0, plan.PoolCredits, 30)
	require.True(t, ok)
	require.Len(t, allocs, 1)
	assert.Equal(t, older.ID, allocs[0].PurchaseID)
	assert.Equal(t, int64(20), a.Purchases[0].Remaining(plan.PoolCredits))
}

func TestDeductAllOrNothing(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		wantOK    bool
		wantAfter int64
	}{
		{"exact balance", 20, true, 0},
		{"partial", 7, true, 13},
		{"over balance", 21, false, 20},
		{"zero", 0, true, 20},
		{"negative", -5, false, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := singlePool(t)
			_, ok := a.Deduct(t0, plan.PoolCredits, tt.amount)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAfter, a.Balance(t0, plan.PoolCredits))
			require.NoError(t, a.Validate())
		})
	}
}

func TestDeductSkipsExpiredPurchases(t *testing.T) {
	a, c := singlePool(t)
	_, err := a.AddPurchase(mustPlan(t, c, "pro"), t0, "")
	require.NoError(t, err)

	later := t0.AddDate(0, 0, 31)
	assert.Equal(t, int64(20), a.Balance(later, plan.PoolCredits))

	_, ok := a.Deduct(later, plan.PoolCredits, 100)
	assert.False(t, ok, "expired pro credits must not be spendable")
	assert.Equal(t, int64(3000), a.Purchases[1].Remaining(plan.PoolCredits))
}

func TestDeductPoolsAreIndependent(t *testing.T) {
	c := plan.DefaultCatalog()
	a := New("dual@example.com", c.Trial(), t0)

	_, ok := a.Deduct(t0, plan.PoolImagen, 10)
	assert.False(t, ok, "trial grants no imagen credits")

	_, err := a.AddPurchase(mustPlan(t, c, "pro"), t0, "")
	require.NoError(t, err)

	_, ok = a.Deduct(t0, plan.PoolImagen, 50)
	require.True(t, ok)
	assert.Equal(t, int64(1450), a.Balance(t0, plan.PoolImagen))
	assert.Equal(t, int64(1520), a.Balance(t0, plan.PoolPollinations))
}

func TestExpiry(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		age     int
		planID  string
		counted bool
	}{
		{"pro 29 days", 29, "pro", true},
		{"pro 30 days", 30, "pro", false},
		{"pro 31 days", 31, "pro", false},
		{"mega 31 days", 31, "mega", false},
		{"booster 400 days", 400, "booster", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := plan.SinglePoolCatalog()
			a := New("x@example.com", c.Trial(), now.AddDate(0, 0, -500))
			p, err := a.AddPurchase(mustPlan(t, c, tt.planID), now.AddDate(0, 0, -tt.age), "")
			require.NoError(t, err)

			want := int64(20)
			if tt.counted {
				want += p.Pools[plan.PoolCredits].Remaining
			}
			assert.Equal(t, tt.counted, p.ActiveAt(now))
			assert.Equal(t, want, a.Balance(now, plan.PoolCredits))
		})
	}
}

func TestActivePlan(t *testing.T) {
	c := plan.DefaultCatalog()
	now := t0.AddDate(0, 0, 10)

	t.Run("booster does not label", func(t *testing.T) {
		a := New("a@example.com", c.Trial(), t0)
		_, _ = a.AddPurchase(mustPlan(t, c, "booster"), t0, "")
		name, tier := a.ActivePlan(now)
		assert.Equal(t, plan.FreePlanName, name)
		assert.Equal(t, plan.TierFree, tier)
	})

	t.Run("pro beats booster", func(t *testing.T) {
		a := New("a@example.com", c.Trial(), t0)
		_, _ = a.AddPurchase(mustPlan(t, c, "pro"), t0, "")
		_, _ = a.AddPurchase(mustPlan(t, c, "booster"), t0.Add(time.Hour), "")
		name, _ := a.ActivePlan(now)
		assert.Equal(t, "Pro", name)
	})

	t.Run("mega beats newer pro", func(t *testing.T) {
		a := New("a@example.com", c.Trial(), t0)
		_, _ = a.AddPurchase(mustPlan(t, c, "mega"), t0, "")
		_, _ = a.AddPurchase(mustPlan(t, c, "pro"), t0.Add(time.Hour), "")
		name, tier := a.ActivePlan(now)
		assert.Equal(t, "Mega", name)
		assert.Equal(t, plan.TierMega, tier)
	})

	t.Run("same tier picks most recent", func(t *testing.T) {
		a := New("a@example.com", c.Trial(), t0)
		first, _ := a.AddPurchase(mustPlan(t, c, "pro"), t0, "")
		second, _ := a.AddPurchase(mustPlan(t, c, "pro"), t0.Add(time.Hour), "")
		require.NotEqual(t, first.ID, second.ID)

		var best *Purchase
		for _, p := range a.ActivePurchases(now) {
			if p.Kind == plan.KindSubscription && (best == nil || !p.PurchasedAt.Before(best.PurchasedAt)) {
				best = p
			}
		}
		assert.Equal(t, second.ID, best.ID)
		name, _ := a.ActivePlan(now)
		assert.Equal(t, "Pro", name)
	})

	t.Run("expired mega falls back to pro", func(t *testing.T) {
		a := New("a@example.com", c.Trial(), t0)
		_, _ = a.AddPurchase(mustPlan(t, c, "mega"), t0.AddDate(0, 0, -25), "")
		_, _ = a.AddPurchase(mustPlan(t, c, "pro"), t0, "")
		name, _ := a.ActivePlan(now)
		assert.Equal(t, "Pro", name)
	})
}

func TestRecordLoginIdempotentWithinDay(t *testing.T) {
	a, _ := singlePool(t)

	assert.False(t, a.RecordLogin(t0.Add(3*time.Hour)))
	assert.Len(t, a.LoginHistory, 1)

	next := t0.AddDate(0, 0, 1)
	assert.True(t, a.RecordLogin(next))
	assert.False(t, a.RecordLogin(next.Add(time.Minute)))
	assert.Equal(t, []string{"2026-10-01", "2026-10-02"}, a.LoginHistory)
	assert.Equal(t, "2026-10-02", a.LastLoginDate)
}

func TestLoginLock(t *testing.T) {
	rules := DefaultRules()

	loginOn := func(a *Account, days int) time.Time {
		var last time.Time
		for d := 1; d < days; d++ {
			last = t0.AddDate(0, 0, d)
			a.RecordLogin(last)
		}
		return last
	}

	t.Run("six days is fine", func(t *testing.T) {
		a, _ := singlePool(t)
		now := loginOn(a, 6)
		assert.Equal(t, 6, a.RecentLogins(now, rules.LoginWindowDays))
		assert.False(t, a.LoginLocked(now, rules))
	})

	t.Run("seven days locks free tier", func(t *testing.T) {
		a, _ := singlePool(t)
		now := loginOn(a, 7)
		assert.Equal(t, 7, a.RecentLogins(now, rules.LoginWindowDays))
		assert.True(t, a.LoginLocked(now, rules))
		assert.True(t, a.Summarize(now, rules).LoginLocked)
	})

	t.Run("paid tier is never locked", func(t *testing.T) {
		a, c := singlePool(t)
		now := loginOn(a, 7)
		_, _ = a.AddPurchase(mustPlan(t, c, "pro"), now, "")
		assert.False(t, a.LoginLocked(now, rules))
	})

	t.Run("booster does not unlock", func(t *testing.T) {
		a, c := singlePool(t)
		now := loginOn(a, 7)
		_, _ = a.AddPurchase(mustPlan(t, c, "booster"), now, "")
		assert.True(t, a.LoginLocked(now, rules))
	})

	t.Run("old logins age out", func(t *testing.T) {
		a, _ := singlePool(t)
		loginOn(a, 7)
		later := t0.AddDate(0, 0, 33)
		// Days 0..3 fall out of the trailing 30 days.
		assert.Equal(t, 3, a.RecentLogins(later, rules.LoginWindowDays))
		assert.False(t, a.LoginLocked(later, rules))
	})
}

func TestAddPurchaseIdempotencyKey(t *testing.T) {
	a, c := singlePool(t)
	pro := mustPlan(t, c, "pro")

	first, err := a.AddPurchase(pro, t0, "chk_123")
	require.NoError(t, err)

	again, err := a.AddPurchase(pro, t0.Add(time.Hour), "chk_123")
	require.ErrorIs(t, err, ErrDuplicatePurchase)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, a.Purchases, 2)

	// Without a key the same plan can be bought twice.
	_, err = a.AddPurchase(pro, t0.Add(2*time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, a.Purchases, 3)
}

func TestRecentDuplicate(t *testing.T) {
	a, c := singlePool(t)
	_, err := a.AddPurchase(mustPlan(t, c, "pro"), t0, "")
	require.NoError(t, err)

	assert.NotNil(t, a.RecentDuplicate("Pro", t0.Add(59*time.Second), time.Minute))
	assert.Nil(t, a.RecentDuplicate("Pro", t0.Add(61*time.Second), time.Minute))
	assert.Nil(t, a.RecentDuplicate("Mega", t0.Add(time.Second), time.Minute))
}

func TestCloneIsDeep(t *testing.T) {
	a, _ := singlePool(t)
	b := a.Clone()

	_, ok := b.Deduct(t0, plan.PoolCredits, 5)
	require.True(t, ok)
	b.RecordLogin(t0.AddDate(0, 0, 1))

	assert.Equal(t, int64(20), a.Balance(t0, plan.PoolCredits))
	assert.Len(t, a.LoginHistory, 1)
}

func TestValidate(t *testing.T) {
	a, _ := singlePool(t)
	require.NoError(t, a.Validate())

	a.Purchases[0].Pools[plan.PoolCredits].Remaining = 21
	require.ErrorIs(t, a.Validate(), ErrInvariant)

	a.Purchases[0].Pools[plan.PoolCredits].Remaining = -1
	require.ErrorIs(t, a.Validate(), ErrInvariant)
}
