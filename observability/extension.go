// Package observability provides a metrics extension for credits that
// records event counts through a MetricFactory. NewPrometheusFactory backs
// the factory with client_golang.
package observability

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated      = (*MetricsExtension)(nil)
	_ plugin.OnLogin               = (*MetricsExtension)(nil)
	_ plugin.OnLogout              = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseApplied     = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseDuplicate   = (*MetricsExtension)(nil)
	_ plugin.OnCreditsDeducted     = (*MetricsExtension)(nil)
	_ plugin.OnDeductionSkipped    = (*MetricsExtension)(nil)
	_ plugin.OnPersistFailed       = (*MetricsExtension)(nil)
	_ plugin.OnGenerationDenied    = (*MetricsExtension)(nil)
	_ plugin.OnGenerationCompleted = (*MetricsExtension)(nil)
	_ plugin.OnGenerationFailed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide credit metrics.
// Register it as a Ledger plugin to track accounts, purchases and spend.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter
	Logins         Counter
	FirstLogins    Counter
	Logouts        Counter

	// Purchase metrics
	PurchaseApplied   Counter
	PurchaseDuplicate Counter
	SubscriptionsSold Counter
	TopUpsSold        Counter
	CreditsGranted    Counter

	// Credit metrics
	CreditsDeducted   Counter
	Deductions        Counter
	DeductionsSkipped Counter
	DeductionSize     Histogram

	// Generation metrics
	GenerationDenied    Counter
	GenerationCompleted Counter
	GenerationFailed    Counter
	GenerationLatency   Histogram

	// Error metrics
	StoreErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Account metrics
		AccountCreated: factory.Counter("credits.account.created"),
		Logins:         factory.Counter("credits.account.logins"),
		FirstLogins:    factory.Counter("credits.account.logins.first_today"),
		Logouts:        factory.Counter("credits.account.logouts"),

		// Purchase metrics
		PurchaseApplied:   factory.Counter("credits.purchase.applied"),
		PurchaseDuplicate: factory.Counter("credits.purchase.duplicate"),
		SubscriptionsSold: factory.Counter("credits.purchase.subscriptions"),
		TopUpsSold:        factory.Counter("credits.purchase.topups"),
		CreditsGranted:    factory.Counter("credits.purchase.credits_granted"),

		// Credit metrics
		CreditsDeducted:   factory.Counter("credits.deduction.credits"),
		Deductions:        factory.Counter("credits.deduction.count"),
		DeductionsSkipped: factory.Counter("credits.deduction.skipped"),
		DeductionSize:     factory.Histogram("credits.deduction.size"),

		// Generation metrics
		GenerationDenied:    factory.Counter("credits.generation.denied"),
		GenerationCompleted: factory.Counter("credits.generation.completed"),
		GenerationFailed:    factory.Counter("credits.generation.failed"),
		GenerationLatency:   factory.Histogram("credits.generation.latency_ms"),

		// Error metrics
		StoreErrors: factory.Counter("credits.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *account.Account) error {
	m.AccountCreated.Inc()
	return nil
}

// OnLogin implements plugin.OnLogin.
func (m *MetricsExtension) OnLogin(_ context.Context, _ string, firstToday bool) error {
	m.Logins.Inc()
	if firstToday {
		m.FirstLogins.Inc()
	}
	return nil
}

// OnLogout implements plugin.OnLogout.
func (m *MetricsExtension) OnLogout(_ context.Context, _ string) error {
	m.Logouts.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseApplied implements plugin.OnPurchaseApplied.
func (m *MetricsExtension) OnPurchaseApplied(_ context.Context, _ string, p *account.Purchase) error {
	m.PurchaseApplied.Inc()
	switch p.Kind {
	case plan.KindSubscription:
		m.SubscriptionsSold.Inc()
	case plan.KindTopUp:
		m.TopUpsSold.Inc()
	}
	for _, c := range p.Pools {
		m.CreditsGranted.Add(float64(c.Added))
	}
	return nil
}

// OnPurchaseDuplicate implements plugin.OnPurchaseDuplicate.
func (m *MetricsExtension) OnPurchaseDuplicate(_ context.Context, _ string, _ *account.Purchase) error {
	m.PurchaseDuplicate.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsDeducted implements plugin.OnCreditsDeducted.
func (m *MetricsExtension) OnCreditsDeducted(_ context.Context, d *meter.Deduction) error {
	m.Deductions.Inc()
	m.CreditsDeducted.Add(float64(d.Amount))
	m.DeductionSize.Observe(float64(d.Amount))
	return nil
}

// OnDeductionSkipped implements plugin.OnDeductionSkipped.
func (m *MetricsExtension) OnDeductionSkipped(_ context.Context, _ string, _ plan.Pool, _, _ int64) error {
	m.DeductionsSkipped.Inc()
	return nil
}

// OnPersistFailed implements plugin.OnPersistFailed.
func (m *MetricsExtension) OnPersistFailed(_ context.Context, _ string, _ error) error {
	m.StoreErrors.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Generation hooks
// ──────────────────────────────────────────────────

// OnGenerationDenied implements plugin.OnGenerationDenied.
func (m *MetricsExtension) OnGenerationDenied(_ context.Context, _ *entitlement.Result) error {
	m.GenerationDenied.Inc()
	return nil
}

// OnGenerationCompleted implements plugin.OnGenerationCompleted.
func (m *MetricsExtension) OnGenerationCompleted(_ context.Context, g *meter.Generation) error {
	m.GenerationCompleted.Inc()
	m.GenerationLatency.Observe(float64(g.Elapsed.Milliseconds()))
	return nil
}

// OnGenerationFailed implements plugin.OnGenerationFailed.
func (m *MetricsExtension) OnGenerationFailed(_ context.Context, g *meter.Generation) error {
	m.GenerationFailed.Inc()
	m.GenerationLatency.Observe(float64(g.Elapsed.Milliseconds()))
	return nil
}
