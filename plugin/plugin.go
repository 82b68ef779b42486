// Package plugin lets extensions observe the credits engine. A plugin
// implements Plugin plus any of the hook interfaces below; the Registry
// discovers the hooks once at registration.
//
// Hooks are observers. Their errors are logged and never change the outcome
// of the operation that emitted them.
package plugin

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plan"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. l is the *credits.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated fires once per email, after the trial grant.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, acct *account.Account) error
}

// OnLogin fires on every successful login. firstToday is false when the
// day had already been recorded.
type OnLogin interface {
	Plugin
	OnLogin(ctx context.Context, email string, firstToday bool) error
}

type OnLogout interface {
	Plugin
	OnLogout(ctx context.Context, email string) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

type OnPurchaseApplied interface {
	Plugin
	OnPurchaseApplied(ctx context.Context, email string, p *account.Purchase) error
}

// OnPurchaseDuplicate fires when a purchase was recognised as a replay and
// nothing was granted.
type OnPurchaseDuplicate interface {
	Plugin
	OnPurchaseDuplicate(ctx context.Context, email string, p *account.Purchase) error
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

type OnCreditsDeducted interface {
	Plugin
	OnCreditsDeducted(ctx context.Context, d *meter.Deduction) error
}

// OnDeductionSkipped fires when a debit was refused for lack of balance.
type OnDeductionSkipped interface {
	Plugin
	OnDeductionSkipped(ctx context.Context, email string, pool plan.Pool, amount, balance int64) error
}

// OnPersistFailed fires when a mutation could not be written. The in-memory
// state stays authoritative for the current process.
type OnPersistFailed interface {
	Plugin
	OnPersistFailed(ctx context.Context, key string, err error) error
}

// ──────────────────────────────────────────────────
// Generation hooks
// ──────────────────────────────────────────────────

type OnGenerationDenied interface {
	Plugin
	OnGenerationDenied(ctx context.Context, result *entitlement.Result) error
}

type OnGenerationCompleted interface {
	Plugin
	OnGenerationCompleted(ctx context.Context, g *meter.Generation) error
}

type OnGenerationFailed interface {
	Plugin
	OnGenerationFailed(ctx context.Context, g *meter.Generation) error
}
