package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/store"
)

// Default engine settings.
const (
	DefaultProfile    = "default"
	DefaultMaxRetries = 5
)

// Ledger is the credits engine. It owns the plan catalog, the cost table and
// the current session of one profile.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	catalog    *plan.Catalog
	costs      *pricing.Table
	rules      account.Rules
	clock      func() time.Time
	profile    string
	maxRetries int

	mu      sync.Mutex
	current *Session
}

// New creates a Ledger over s. Option values are validated once here.
func New(s store.Store, opts ...Option) (*Ledger, error) {
	if s == nil {
		return nil, ValidationError{Field: "store", Message: "is required"}
	}
	l := &Ledger{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		catalog:    plan.DefaultCatalog(),
		costs:      pricing.DefaultTable(),
		rules:      account.DefaultRules(),
		clock:      time.Now,
		profile:    DefaultProfile,
		maxRetries: DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(l)
	}

	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) validate() error {
	var errs MultiError
	if l.catalog == nil || l.catalog.Trial() == nil {
		errs.Add(ValidationError{Field: "catalog", Message: "must contain a trial plan"})
	}
	if l.costs == nil {
		errs.Add(ValidationError{Field: "costs", Message: "is required"})
	}
	if l.catalog != nil && l.costs != nil {
		known := l.catalog.Pools()
		for _, pool := range l.costs.Pools() {
			if !slices.Contains(known, pool) {
				errs.Add(ValidationError{Field: "costs", Message: fmt.Sprintf("pool %q is not granted by any plan", pool)})
			}
		}
	}
	if l.rules.LoginLimit < 0 {
		errs.Add(ValidationError{Field: "login_limit", Message: "must not be negative"})
	}
	if l.rules.LoginWindowDays < 1 {
		errs.Add(ValidationError{Field: "login_window", Message: "must be at least one day"})
	}
	if l.maxRetries < 0 {
		errs.Add(ValidationError{Field: "max_retries", Message: "must not be negative"})
	}
	if l.profile == "" {
		errs.Add(ValidationError{Field: "profile", Message: "is required"})
	}
	return errs.Err()
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
			l.plugins.WithLogger(logger)
		}
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog replaces the dual-pool default catalog.
func WithCatalog(c *plan.Catalog) Option {
	return func(l *Ledger) { l.catalog = c }
}

// WithCostTable replaces the default cost table.
func WithCostTable(t *pricing.Table) Option {
	return func(l *Ledger) { l.costs = t }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.clock = now
		}
	}
}

// WithLoginLimit sets how many login days a Free account may use per window.
func WithLoginLimit(n int) Option {
	return func(l *Ledger) { l.rules.LoginLimit = n }
}

// WithLoginWindow sets the span, in calendar days, over which login days are
// counted against the limit. It must be at least 1.
func WithLoginWindow(days int) Option {
	return func(l *Ledger) { l.rules.LoginWindowDays = days }
}

// WithProfile namespaces the persisted session pointer, so several users of
// one store keep separate "current account" records.
func WithProfile(name string) Option {
	return func(l *Ledger) { l.profile = name }
}

// WithMaxRetries bounds re-application of a mutation after version conflicts.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) { l.maxRetries = n }
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("credits: migrate store: %w", err)
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("ledger started",
		"profile", l.profile,
		"pools", l.catalog.Pools(),
		"plugins", l.plugins.Count(),
		"login_limit", l.rules.LoginLimit,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Ledger) Stop(ctx context.Context) error {
	l.plugins.EmitShutdown(ctx)

	if err := l.store.Close(); err != nil {
		return fmt.Errorf("credits: close store: %w", err)
	}
	l.logger.Info("ledger stopped")
	return nil
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

func (l *Ledger) Catalog() *plan.Catalog    { return l.catalog }
func (l *Ledger) Costs() *pricing.Table     { return l.costs }
func (l *Ledger) Rules() account.Rules      { return l.rules }
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }
func (l *Ledger) Logger() *slog.Logger      { return l.logger }
func (l *Ledger) Store() store.Store        { return l.store }
func (l *Ledger) Now() time.Time            { return l.clock() }

// CreditCost quotes one generation. It never touches an account.
func (l *Ledger) CreditCost(provider pricing.Provider, quality pricing.Quality, media pricing.Media) (pricing.Quote, error) {
	return l.costs.Cost(provider, quality, media)
}

// Account loads the stored account of email without changing it.
func (l *Ledger) Account(ctx context.Context, email string) (*account.Account, error) {
	norm := account.NormalizeEmail(email)
	if norm == "" {
		return nil, ValidationError{Field: "email", Message: "is required"}
	}
	acct, _, err := l.load(ctx, norm)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, norm)
	}
	return acct, err
}

// load reads and decodes the account record of a normalized email.
func (l *Ledger) load(ctx context.Context, email string) (*account.Account, int64, error) {
	rec, err := l.store.Get(ctx, store.AccountKey(email))
	if err != nil {
		return nil, 0, err
	}
	acct, err := account.Decode(rec.Value, l.catalog)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrCorruptRecord, email, err)
	}
	return acct, rec.Version, nil
}

// persistFailed reports a write that did not reach the store. The caller
// keeps its in-memory state.
func (l *Ledger) persistFailed(ctx context.Context, key string, err error) {
	l.logger.Warn("storage unavailable, change kept in memory only",
		"key", key,
		"error", err,
	)
	l.plugins.EmitPersistFailed(ctx, key, err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
