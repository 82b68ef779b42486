// Package audithook turns credits events into audit records.
//
// It defines a local Recorder interface so any audit backend can be plugged
// in with a RecorderFunc. LogRecorder writes the trail through slog.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnAccountCreated      = (*Extension)(nil)
	_ plugin.OnLogin               = (*Extension)(nil)
	_ plugin.OnLogout              = (*Extension)(nil)
	_ plugin.OnPurchaseApplied     = (*Extension)(nil)
	_ plugin.OnPurchaseDuplicate   = (*Extension)(nil)
	_ plugin.OnCreditsDeducted     = (*Extension)(nil)
	_ plugin.OnDeductionSkipped    = (*Extension)(nil)
	_ plugin.OnPersistFailed       = (*Extension)(nil)
	_ plugin.OnGenerationDenied    = (*Extension)(nil)
	_ plugin.OnGenerationCompleted = (*Extension)(nil)
	_ plugin.OnGenerationFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes every event as one structured log line.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityError, SeverityCritical:
			level = slog.LevelError
		}
		logger.Log(ctx, level, "audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"actor", evt.Actor,
			"outcome", evt.Outcome,
			"metadata", evt.Metadata,
		)
		return nil
	})
}

// Extension bridges credits events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, acct *account.Account) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, acct.Email, acct.Email, CategoryAccess, nil,
		"purchases", len(acct.Purchases),
	)
}

// OnLogin implements plugin.OnLogin.
func (e *Extension) OnLogin(ctx context.Context, email string, firstToday bool) error {
	return e.record(ctx, ActionLogin, SeverityInfo, OutcomeSuccess,
		ResourceSession, email, email, CategoryAccess, nil,
		"first_today", firstToday,
	)
}

// OnLogout implements plugin.OnLogout.
func (e *Extension) OnLogout(ctx context.Context, email string) error {
	return e.record(ctx, ActionLogout, SeverityInfo, OutcomeSuccess,
		ResourceSession, email, email, CategoryAccess, nil,
	)
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseApplied implements plugin.OnPurchaseApplied.
func (e *Extension) OnPurchaseApplied(ctx context.Context, email string, p *account.Purchase) error {
	return e.record(ctx, ActionPurchaseApplied, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, p.ID.String(), email, CategoryBilling, nil,
		purchaseMeta(p)...,
	)
}

// OnPurchaseDuplicate implements plugin.OnPurchaseDuplicate.
func (e *Extension) OnPurchaseDuplicate(ctx context.Context, email string, p *account.Purchase) error {
	return e.record(ctx, ActionPurchaseDuplicate, SeverityWarning, OutcomeFailure,
		ResourcePurchase, p.ID.String(), email, CategoryBilling, nil,
		purchaseMeta(p)...,
	)
}

func purchaseMeta(p *account.Purchase) []any {
	kv := []any{
		"plan_id", p.PlanID,
		"plan_name", p.PlanName,
		"kind", string(p.Kind),
	}
	if p.IdempotencyKey != "" {
		kv = append(kv, "checkout_id", p.IdempotencyKey)
	}
	for pool, c := range p.Pools {
		kv = append(kv, "added_"+string(pool), c.Added)
	}
	return kv
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsDeducted implements plugin.OnCreditsDeducted.
func (e *Extension) OnCreditsDeducted(ctx context.Context, d *meter.Deduction) error {
	return e.record(ctx, ActionCreditsDeducted, SeverityInfo, OutcomeSuccess,
		ResourceDeduction, d.ID.String(), d.Email, CategoryUsage, nil,
		"pool", string(d.Pool),
		"amount", d.Amount,
		"balance_after", d.BalanceAfter,
		"purchases", len(d.Allocations),
		"reference", d.Reference,
	)
}

// OnDeductionSkipped implements plugin.OnDeductionSkipped.
func (e *Extension) OnDeductionSkipped(ctx context.Context, email string, pool plan.Pool, amount, balance int64) error {
	return e.record(ctx, ActionDeductionSkipped, SeverityWarning, OutcomeFailure,
		ResourceDeduction, "", email, CategoryUsage, nil,
		"pool", string(pool),
		"amount", amount,
		"balance", balance,
	)
}

// OnPersistFailed implements plugin.OnPersistFailed.
func (e *Extension) OnPersistFailed(ctx context.Context, key string, err error) error {
	return e.record(ctx, ActionPersistFailed, SeverityError, OutcomeFailure,
		ResourceStorage, key, "", CategorySystem, err,
	)
}

// ──────────────────────────────────────────────────
// Generation hooks
// ──────────────────────────────────────────────────

// OnGenerationDenied implements plugin.OnGenerationDenied.
func (e *Extension) OnGenerationDenied(ctx context.Context, r *entitlement.Result) error {
	return e.record(ctx, ActionGenerationDenied, SeverityInfo, OutcomeFailure,
		ResourceGeneration, "", r.Email, CategoryUsage, nil,
		"reason", string(r.Reason),
		"provider", r.Provider,
		"cost", r.Cost,
		"balance", r.Balance,
	)
}

// OnGenerationCompleted implements plugin.OnGenerationCompleted.
func (e *Extension) OnGenerationCompleted(ctx context.Context, g *meter.Generation) error {
	return e.record(ctx, ActionGenerationCompleted, SeverityInfo, OutcomeSuccess,
		ResourceGeneration, g.ID.String(), g.Email, CategoryUsage, nil,
		"provider", g.Provider,
		"media", g.Media,
		"credits", g.Credits,
		"charged", g.Charged,
		"elapsed_ms", g.Elapsed.Milliseconds(),
	)
}

// OnGenerationFailed implements plugin.OnGenerationFailed.
func (e *Extension) OnGenerationFailed(ctx context.Context, g *meter.Generation) error {
	return e.record(ctx, ActionGenerationFailed, SeverityWarning, OutcomeFailure,
		ResourceGeneration, g.ID.String(), g.Email, CategoryUsage, g.Err,
		"provider", g.Provider,
		"media", g.Media,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, actor, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      actor,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
