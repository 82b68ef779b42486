package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/store"
)

// Session is the handle of the logged-in account. All credit mutations go
// through it. A Session is safe for concurrent use; its mutations are
// serialized locally and against other instances by the store version.
type Session struct {
	ledger     *Ledger
	id         id.SessionID
	email      string
	loggedInAt time.Time

	mu      sync.Mutex
	acct    *account.Account // last state read or written
	version int64            // store version of acct, 0 when never stored
	closed  bool
}

// sessionRecord is the persisted "current account" pointer of a profile.
type sessionRecord struct {
	Email         string       `json:"email,omitempty"`
	LastUsedEmail string       `json:"last_used_email,omitempty"`
	SessionID     id.SessionID `json:"session_id"`
	LoggedInAt    time.Time    `json:"logged_in_at,omitzero"`
}

func (s *Session) ID() id.SessionID      { return s.id }
func (s *Session) Email() string         { return s.email }
func (s *Session) LoggedInAt() time.Time { return s.loggedInAt }

// active reports whether the session can still mutate its account.
func (s *Session) active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// ──────────────────────────────────────────────────
// Login / logout
// ──────────────────────────────────────────────────

// Login opens a session for email. The first login creates the account with
// the trial grant; later logins record today once. Login replaces the
// current session of the profile.
func (l *Ledger) Login(ctx context.Context, email string) (*Session, error) {
	return l.login(ctx, email, id.Nil)
}

func (l *Ledger) login(ctx context.Context, email string, sid id.SessionID) (*Session, error) {
	norm := account.NormalizeEmail(email)
	if norm == "" {
		return nil, ValidationError{Field: "email", Message: "is required"}
	}
	if sid.IsNil() {
		sid = id.NewSessionID()
	}

	s := &Session{
		ledger:     l,
		id:         sid,
		email:      norm,
		loggedInAt: l.Now().UTC(),
	}

	var firstToday bool
	acct, created, err := s.mutate(ctx, func(a *account.Account, now time.Time) (bool, error) {
		firstToday = a.RecordLogin(now)
		return firstToday, nil
	})
	if err != nil {
		return nil, err
	}
	firstToday = firstToday || created

	l.mu.Lock()
	prev := l.current
	l.current = s
	l.mu.Unlock()
	if prev != nil && prev != s {
		prev.close()
	}

	l.saveSession(ctx, sessionRecord{
		Email:         norm,
		LastUsedEmail: norm,
		SessionID:     s.id,
		LoggedInAt:    s.loggedInAt,
	})

	if created {
		l.logger.Info("account created", "email", norm)
		l.plugins.EmitAccountCreated(ctx, acct)
	}
	l.logger.Info("login",
		"email", norm,
		"session_id", s.id.String(),
		"first_today", firstToday,
	)
	l.plugins.EmitLogin(ctx, norm, firstToday)

	return s, nil
}

// Logout clears the current session. The last used email is kept so a login
// form can be prefilled. Storage failures are logged, never returned.
func (l *Ledger) Logout(ctx context.Context) error {
	l.mu.Lock()
	s := l.current
	l.current = nil
	l.mu.Unlock()

	rec, err := l.readSession(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		l.logger.Debug("session pointer unreadable", "error", err)
	}
	if s == nil && rec.Email == "" {
		return nil
	}
	if s != nil {
		s.close()
		rec.LastUsedEmail = s.email
	}
	rec.Email = ""
	rec.SessionID = id.Nil
	rec.LoggedInAt = time.Time{}
	l.saveSession(ctx, rec)

	if s != nil {
		l.logger.Info("logout", "email", s.email)
		l.plugins.EmitLogout(ctx, s.email)
	}
	return nil
}

// Logout ends this session. Logging out a replaced session only closes it.
func (s *Session) Logout(ctx context.Context) error {
	if s == nil {
		return nil
	}
	l := s.ledger
	l.mu.Lock()
	isCurrent := l.current == s
	l.mu.Unlock()
	if isCurrent {
		return l.Logout(ctx)
	}
	s.close()
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Current returns the open session, resuming it from the persisted pointer
// when this process has none. ErrNoSession means nobody is logged in.
func (l *Ledger) Current(ctx context.Context) (*Session, error) {
	l.mu.Lock()
	s := l.current
	l.mu.Unlock()
	if s != nil {
		return s, nil
	}
	return l.Resume(ctx)
}

// Resume reopens the session recorded in the store. Resuming counts as a
// login for the day.
func (l *Ledger) Resume(ctx context.Context) (*Session, error) {
	rec, err := l.readSession(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("credits: resume session: %w", err)
	}
	if rec.Email == "" {
		return nil, ErrNoSession
	}
	return l.login(ctx, rec.Email, rec.SessionID)
}

// LastUsedEmail returns the email of the latest login of the profile, or ""
// when there was none.
func (l *Ledger) LastUsedEmail(ctx context.Context) (string, error) {
	rec, err := l.readSession(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.LastUsedEmail, nil
}

func (l *Ledger) readSession(ctx context.Context) (sessionRecord, error) {
	var rec sessionRecord
	r, err := l.store.Get(ctx, store.SessionKey(l.profile))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(r.Value, &rec); err != nil {
		return sessionRecord{}, fmt.Errorf("credits: decode session: %w", err)
	}
	return rec, nil
}

func (l *Ledger) saveSession(ctx context.Context, rec sessionRecord) {
	key := store.SessionKey(l.profile)
	data, err := json.Marshal(rec)
	if err != nil {
		l.logger.Error("encode session", "error", err)
		return
	}
	if _, err := store.Overwrite(ctx, l.store, key, data); err != nil {
		l.persistFailed(ctx, key, err)
	}
}

// ──────────────────────────────────────────────────
// Purchases
// ──────────────────────────────────────────────────

// PurchaseOption configures PurchasePlan.
type PurchaseOption func(*purchaseOptions)

type purchaseOptions struct {
	key    string
	window time.Duration
}

// WithIdempotencyKey threads the external checkout id through the purchase.
// A key that was already applied is never applied twice.
func WithIdempotencyKey(key string) PurchaseOption {
	return func(o *purchaseOptions) { o.key = key }
}

// WithDuplicateWindow treats a purchase of the same plan recorded less than
// d ago as a replay. It only applies when no idempotency key is given.
func WithDuplicateWindow(d time.Duration) PurchaseOption {
	return func(o *purchaseOptions) { o.window = d }
}

// PurchasePlan applies a confirmed purchase of planID to the account. The
// payment itself happened elsewhere. A replay returns the purchase that was
// applied first together with ErrDuplicatePurchase.
func (s *Session) PurchasePlan(ctx context.Context, planID string, opts ...PurchaseOption) (*account.Purchase, error) {
	if !s.active() {
		return nil, ErrNoSession
	}
	l := s.ledger

	p, err := l.catalog.Get(planID)
	if err != nil {
		return nil, ValidationError{Field: "plan_id", Message: fmt.Sprintf("unknown plan %q", planID), Err: ErrPlanNotFound}
	}
	if p.Kind == plan.KindTrial {
		return nil, ValidationError{Field: "plan_id", Message: "the trial is granted on first login", Err: ErrPlanNotForSale}
	}

	var o purchaseOptions
	for _, opt := range opts {
		opt(&o)
	}

	var pur *account.Purchase
	_, _, err = s.mutate(ctx, func(a *account.Account, now time.Time) (bool, error) {
		if o.key == "" && o.window > 0 {
			if prev := a.RecentDuplicate(p.PurchaseName(), now, o.window); prev != nil {
				pur = prev
				return false, ErrDuplicatePurchase
			}
		}
		var err error
		pur, err = a.AddPurchase(p, now, o.key)
		return err == nil, err
	})

	switch {
	case errors.Is(err, ErrDuplicatePurchase):
		out := pur.Clone()
		l.logger.Info("purchase already applied",
			"email", s.email,
			"plan", p.ID,
			"purchase_id", out.ID.String(),
		)
		l.plugins.EmitPurchaseDuplicate(ctx, s.email, out)
		return out, err
	case err != nil:
		return nil, err
	}

	out := pur.Clone()
	l.logger.Info("purchase applied",
		"email", s.email,
		"plan", p.ID,
		"purchase_id", out.ID.String(),
		"credits", p.TotalCredits(),
	)
	l.plugins.EmitPurchaseApplied(ctx, s.email, out)
	return out, nil
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

// Summary returns the active plan, balances and login lock as of now. It
// reads the freshest stored state and falls back to the in-memory copy when
// the store is unreachable.
func (s *Session) Summary(ctx context.Context) (*account.Summary, error) {
	if !s.active() {
		return nil, ErrNoSession
	}
	acct, err := s.refresh(ctx)
	if err != nil {
		return nil, err
	}
	l := s.ledger
	return acct.Summarize(l.Now(), l.rules), nil
}

// Account returns a copy of the freshest known account state.
func (s *Session) Account(ctx context.Context) (*account.Account, error) {
	if !s.active() {
		return nil, ErrNoSession
	}
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, version, err := s.ledger.load(ctx, s.email)
	switch {
	case err == nil:
		s.acct, s.version = acct, version
	case isContextErr(err) || errors.Is(err, ErrCorruptRecord):
		return nil, err
	default:
		s.ledger.logger.Debug("reading in-memory account", "email", s.email, "error", err)
	}
	return s.acct.Clone(), nil
}

// DeductOption configures DeductCredits.
type DeductOption func(*meter.Deduction)

// WithReference tags the deduction, usually with a generation id.
func WithReference(ref string) DeductOption {
	return func(d *meter.Deduction) { d.Reference = ref }
}

// DeductCredits takes amount from pool, oldest purchase first. It is
// all-or-nothing: with a short balance nothing changes and it reports false
// without an error. An empty pool selects the only pool of a single-pool
// catalog.
func (s *Session) DeductCredits(ctx context.Context, amount int64, pool plan.Pool, opts ...DeductOption) (bool, error) {
	if !s.active() {
		return false, ErrNoSession
	}
	l := s.ledger

	if amount < 0 {
		return false, ValidationError{Field: "amount", Message: "must not be negative"}
	}
	pool, err := l.resolvePool(pool)
	if err != nil {
		return false, err
	}
	if amount == 0 {
		return true, nil
	}

	var (
		d       *meter.Deduction
		balance int64
	)
	_, _, err = s.mutate(ctx, func(a *account.Account, now time.Time) (bool, error) {
		d = nil
		balance = a.Balance(now, pool)
		allocs, ok := a.Deduct(now, pool, amount)
		if !ok {
			return false, nil
		}
		d = &meter.Deduction{
			ID:            id.NewDeductionID(),
			Email:         a.Email,
			Pool:          pool,
			Amount:        amount,
			BalanceBefore: balance,
			BalanceAfter:  balance - amount,
			Allocations:   allocs,
			Timestamp:     now.UTC(),
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}

	if d == nil {
		l.logger.Info("deduction skipped, balance too low",
			"email", s.email,
			"pool", pool,
			"amount", amount,
			"balance", balance,
		)
		l.plugins.EmitDeductionSkipped(ctx, s.email, pool, amount, balance)
		return false, nil
	}

	for _, opt := range opts {
		opt(d)
	}
	l.logger.Debug("credits deducted",
		"email", s.email,
		"pool", pool,
		"amount", amount,
		"balance", d.BalanceAfter,
	)
	l.plugins.EmitCreditsDeducted(ctx, d)
	return true, nil
}

func (l *Ledger) resolvePool(pool plan.Pool) (plan.Pool, error) {
	pools := l.catalog.Pools()
	if pool == "" {
		if len(pools) == 1 {
			return pools[0], nil
		}
		return "", ValidationError{Field: "pool", Message: "is required with more than one pool"}
	}
	if !slices.Contains(pools, pool) {
		return "", ValidationError{Field: "pool", Message: fmt.Sprintf("unknown pool %q", pool)}
	}
	return pool, nil
}

// ──────────────────────────────────────────────────
// Read-modify-write
// ──────────────────────────────────────────────────

// mutation changes a, which is a private copy, and reports whether it did.
// It may run more than once and must reset anything it captures.
type mutation func(a *account.Account, now time.Time) (bool, error)

// mutate loads the account, applies fn and writes the result back with the
// version it was read at. On a version conflict it starts over from a fresh
// read. When the store is unreachable the change is kept in memory only.
// created reports that the account did not exist before.
func (s *Session) mutate(ctx context.Context, fn mutation) (acct *account.Account, created bool, err error) {
	l := s.ledger
	key := store.AccountKey(s.email)

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		now := l.Now()

		var (
			version int64
			offline error
		)
		acct, version, err = l.load(ctx, s.email)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotFound):
			acct, version = s.acct.Clone(), 0
		case isContextErr(err) || errors.Is(err, ErrCorruptRecord):
			return nil, false, err
		default:
			offline = err
			acct, version = s.acct.Clone(), s.version
		}

		created = false
		if acct == nil {
			acct, created = account.New(s.email, l.catalog.Trial(), now), true
		}

		changed, err := fn(acct, now)
		if err != nil {
			return acct.Clone(), false, err
		}
		changed = changed || created

		if offline != nil {
			s.acct = acct
			if changed {
				l.persistFailed(ctx, key, offline)
			}
			return acct.Clone(), created, nil
		}
		if !changed {
			s.acct, s.version = acct, version
			return acct.Clone(), false, nil
		}

		data, err := acct.Encode()
		if err != nil {
			return nil, false, fmt.Errorf("credits: encode account %s: %w", s.email, err)
		}

		next, err := l.store.Put(ctx, key, data, version)
		switch {
		case err == nil:
			s.acct, s.version = acct, next
			return acct.Clone(), created, nil
		case errors.Is(err, store.ErrVersionConflict):
			l.logger.Debug("account changed concurrently, retrying",
				"email", s.email,
				"attempt", attempt+1,
			)
		case isContextErr(err):
			return nil, false, err
		default:
			s.acct, s.version = acct, version
			l.persistFailed(ctx, key, err)
			return acct.Clone(), created, nil
		}
	}
	return nil, false, fmt.Errorf("%w: %s", ErrConcurrentUpdate, s.email)
}
