package credits

import (
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/types"
)

// Re-export common types for convenience so callers rarely need the
// subpackages.

type (
	Money    = types.Money
	Entity   = types.Entity
	Plan     = plan.Plan
	Pool     = plan.Pool
	Tier     = plan.Tier
	Account  = account.Account
	Purchase = account.Purchase
	Summary  = account.Summary
	Quote    = pricing.Quote
)

// Pools of the default catalog.
const (
	PoolPollinations = plan.PoolPollinations
	PoolImagen       = plan.PoolImagen
	PoolCredits      = plan.PoolCredits
)

// Re-export Money constructors
var (
	USD = types.USD
	EUR = types.EUR
)
