package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"
	ActionLogin          = "account.login"
	ActionLogout         = "account.logout"

	// Purchase actions
	ActionPurchaseApplied   = "purchase.applied"
	ActionPurchaseDuplicate = "purchase.duplicate"

	// Credit actions
	ActionCreditsDeducted  = "credits.deducted"
	ActionDeductionSkipped = "credits.deduction_skipped"

	// Generation actions
	ActionGenerationDenied    = "generation.denied"
	ActionGenerationCompleted = "generation.completed"
	ActionGenerationFailed    = "generation.failed"

	// Storage actions
	ActionPersistFailed = "storage.persist_failed"
)

// Resource constants for audit events.
const (
	ResourceAccount    = "account"
	ResourceSession    = "session"
	ResourcePurchase   = "purchase"
	ResourceDeduction  = "deduction"
	ResourceGeneration = "generation"
	ResourceStorage    = "storage"
)

// Category constants for audit events.
const (
	CategoryAccess  = "access"
	CategoryBilling = "billing"
	CategoryUsage   = "usage"
	CategorySystem  = "system"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
