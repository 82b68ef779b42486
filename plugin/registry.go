package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plan"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook interfaces are discovered once in Register.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onAccountCreated      []OnAccountCreated
	onLogin               []OnLogin
	onLogout              []OnLogout
	onPurchaseApplied     []OnPurchaseApplied
	onPurchaseDuplicate   []OnPurchaseDuplicate
	onCreditsDeducted     []OnCreditsDeducted
	onDeductionSkipped    []OnDeductionSkipped
	onPersistFailed       []OnPersistFailed
	onGenerationDenied    []OnGenerationDenied
	onGenerationCompleted []OnGenerationCompleted
	onGenerationFailed    []OnGenerationFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides DefaultHookTimeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hook interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnLogin); ok {
		r.onLogin = append(r.onLogin, v)
	}
	if v, ok := p.(OnLogout); ok {
		r.onLogout = append(r.onLogout, v)
	}
	if v, ok := p.(OnPurchaseApplied); ok {
		r.onPurchaseApplied = append(r.onPurchaseApplied, v)
	}
	if v, ok := p.(OnPurchaseDuplicate); ok {
		r.onPurchaseDuplicate = append(r.onPurchaseDuplicate, v)
	}
	if v, ok := p.(OnCreditsDeducted); ok {
		r.onCreditsDeducted = append(r.onCreditsDeducted, v)
	}
	if v, ok := p.(OnDeductionSkipped); ok {
		r.onDeductionSkipped = append(r.onDeductionSkipped, v)
	}
	if v, ok := p.(OnPersistFailed); ok {
		r.onPersistFailed = append(r.onPersistFailed, v)
	}
	if v, ok := p.(OnGenerationDenied); ok {
		r.onGenerationDenied = append(r.onGenerationDenied, v)
	}
	if v, ok := p.(OnGenerationCompleted); ok {
		r.onGenerationCompleted = append(r.onGenerationCompleted, v)
	}
	if v, ok := p.(OnGenerationFailed); ok {
		r.onGenerationFailed = append(r.onGenerationFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedHooks(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAccountCreated", reflect.TypeFor[OnAccountCreated]()},
	{"OnLogin", reflect.TypeFor[OnLogin]()},
	{"OnLogout", reflect.TypeFor[OnLogout]()},
	{"OnPurchaseApplied", reflect.TypeFor[OnPurchaseApplied]()},
	{"OnPurchaseDuplicate", reflect.TypeFor[OnPurchaseDuplicate]()},
	{"OnCreditsDeducted", reflect.TypeFor[OnCreditsDeducted]()},
	{"OnDeductionSkipped", reflect.TypeFor[OnDeductionSkipped]()},
	{"OnPersistFailed", reflect.TypeFor[OnPersistFailed]()},
	{"OnGenerationDenied", reflect.TypeFor[OnGenerationDenied]()},
	{"OnGenerationCompleted", reflect.TypeFor[OnGenerationCompleted]()},
	{"OnGenerationFailed", reflect.TypeFor[OnGenerationFailed]()},
}

func implementedHooks(p Plugin) []string {
	v := reflect.TypeOf(p)
	var out []string
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission
// ──────────────────────────────────────────────────

// emit snapshots a hook list under the read lock and calls every entry
// outside of it.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list *[]T, call func(T) error) {
	r.mu.RLock()
	plugins := *list
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	emit(ctx, r, "OnInit", &r.onInit, func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", &r.onShutdown, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitAccountCreated(ctx context.Context, acct *account.Account) {
	emit(ctx, r, "OnAccountCreated", &r.onAccountCreated, func(p OnAccountCreated) error {
		return p.OnAccountCreated(ctx, acct)
	})
}

func (r *Registry) EmitLogin(ctx context.Context, email string, firstToday bool) {
	emit(ctx, r, "OnLogin", &r.onLogin, func(p OnLogin) error {
		return p.OnLogin(ctx, email, firstToday)
	})
}

func (r *Registry) EmitLogout(ctx context.Context, email string) {
	emit(ctx, r, "OnLogout", &r.onLogout, func(p OnLogout) error {
		return p.OnLogout(ctx, email)
	})
}

func (r *Registry) EmitPurchaseApplied(ctx context.Context, email string, pur *account.Purchase) {
	emit(ctx, r, "OnPurchaseApplied", &r.onPurchaseApplied, func(p OnPurchaseApplied) error {
		return p.OnPurchaseApplied(ctx, email, pur)
	})
}

func (r *Registry) EmitPurchaseDuplicate(ctx context.Context, email string, pur *account.Purchase) {
	emit(ctx, r, "OnPurchaseDuplicate", &r.onPurchaseDuplicate, func(p OnPurchaseDuplicate) error {
		return p.OnPurchaseDuplicate(ctx, email, pur)
	})
}

func (r *Registry) EmitCreditsDeducted(ctx context.Context, d *meter.Deduction) {
	emit(ctx, r, "OnCreditsDeducted", &r.onCreditsDeducted, func(p OnCreditsDeducted) error {
		return p.OnCreditsDeducted(ctx, d)
	})
}

func (r *Registry) EmitDeductionSkipped(ctx context.Context, email string, pool plan.Pool, amount, balance int64) {
	emit(ctx, r, "OnDeductionSkipped", &r.onDeductionSkipped, func(p OnDeductionSkipped) error {
		return p.OnDeductionSkipped(ctx, email, pool, amount, balance)
	})
}

func (r *Registry) EmitPersistFailed(ctx context.Context, key string, cause error) {
	emit(ctx, r, "OnPersistFailed", &r.onPersistFailed, func(p OnPersistFailed) error {
		return p.OnPersistFailed(ctx, key, cause)
	})
}

func (r *Registry) EmitGenerationDenied(ctx context.Context, res *entitlement.Result) {
	emit(ctx, r, "OnGenerationDenied", &r.onGenerationDenied, func(p OnGenerationDenied) error {
		return p.OnGenerationDenied(ctx, res)
	})
}

func (r *Registry) EmitGenerationCompleted(ctx context.Context, g *meter.Generation) {
	emit(ctx, r, "OnGenerationCompleted", &r.onGenerationCompleted, func(p OnGenerationCompleted) error {
		return p.OnGenerationCompleted(ctx, g)
	})
}

func (r *Registry) EmitGenerationFailed(ctx context.Context, g *meter.Generation) {
	emit(ctx, r, "OnGenerationFailed", &r.onGenerationFailed, func(p OnGenerationFailed) error {
		return p.OnGenerationFailed(ctx, g)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a debit or a login.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
