package credits_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
)

var t0 = time.Date(2026, time.October, 1, 9, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) AddDays(n int) { c.Advance(time.Duration(n) * 24 * time.Hour) }

// recorder captures hook calls.
type recorder struct {
	mu          sync.Mutex
	created     []string
	logins      []string
	logouts     []string
	applied     []*account.Purchase
	duplicates  []*account.Purchase
	deductions  []*meter.Deduction
	skipped     []int64
	persistKeys []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnAccountCreated(_ context.Context, a *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a.Email)
	return nil
}

func (r *recorder) OnLogin(_ context.Context, email string, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, email)
	return nil
}

func (r *recorder) OnLogout(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logouts = append(r.logouts, email)
	return nil
}

func (r *recorder) OnPurchaseApplied(_ context.Context, _ string, p *account.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, p)
	return nil
}

func (r *recorder) OnPurchaseDuplicate(_ context.Context, _ string, p *account.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.duplicates = append(r.duplicates, p)
	return nil
}

func (r *recorder) OnCreditsDeducted(_ context.Context, d *meter.Deduction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deductions = append(r.deductions, d)
	return nil
}

func (r *recorder) OnDeductionSkipped(_ context.Context, _ string, _ plan.Pool, amount, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, amount)
	return nil
}

func (r *recorder) OnPersistFailed(_ context.Context, key string, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistKeys = append(r.persistKeys, key)
	return nil
}

var errUnavailable = errors.New("backend unavailable")

// flakyStore wraps a memory store. While down every call fails; beforePut
// runs once ahead of the next account write.
type flakyStore struct {
	*memory.Store
	down      atomic.Bool
	mu        sync.Mutex
	beforePut func()
	puts      atomic.Int64
}

func newFlakyStore() *flakyStore { return &flakyStore{Store: memory.New()} }

func (s *flakyStore) Get(ctx context.Context, key string) (*store.Record, error) {
	if s.down.Load() {
		return nil, errUnavailable
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) Put(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	if s.down.Load() {
		return 0, errUnavailable
	}
	s.mu.Lock()
	hook := s.beforePut
	s.beforePut = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.puts.Add(1)
	return s.Store.Put(ctx, key, value, expected)
}

func (s *flakyStore) interfereOnce(fn func()) {
	s.mu.Lock()
	s.beforePut = fn
	s.mu.Unlock()
}

func newLedger(t *testing.T, s store.Store, opts ...credits.Option) *credits.Ledger {
	t.Helper()
	l, err := credits.New(s, opts...)
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))
	return l
}

func singlePool(clock *fakeClock) []credits.Option {
	return []credits.Option{
		credits.WithCatalog(plan.SinglePoolCatalog()),
		credits.WithCostTable(pricing.SinglePoolTable()),
		credits.WithClock(clock.Now),
	}
}
