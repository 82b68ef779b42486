// Package checkout applies a purchase when the payment page redirects back.
//
// The redirect carries plan_id, the buyer's email and, when the checkout
// provider supplies one, checkout_id. The checkout id is used as the
// idempotency key. Without it a repeat of the same plan within
// DuplicateWindow is treated as a reload of the return page.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/validate"
)

// DuplicateWindow is how long a same-plan purchase counts as a replay when
// no checkout id is present.
const DuplicateWindow = 60 * time.Second

// Return is the data of one checkout redirect.
type Return struct {
	PlanID     string `json:"plan_id" validate:"notblank"`
	Email      string `json:"email,omitempty" validate:"omitempty,email,allowed_domain"`
	CheckoutID string `json:"checkout_id,omitempty" validate:"omitempty,max=255"`
}

// ParseReturn reads the redirect query. A missing plan id is rejected here;
// everything else is checked by Apply.
func ParseReturn(q url.Values) (Return, error) {
	ret := Return{
		PlanID:     strings.TrimSpace(q.Get("plan_id")),
		Email:      account.NormalizeEmail(q.Get("email")),
		CheckoutID: strings.TrimSpace(q.Get("checkout_id")),
	}
	if ret.PlanID == "" {
		return ret, credits.ValidationError{Field: "plan_id", Message: "no plan specified in the return URL"}
	}
	return ret, nil
}

// Outcome reports what a redirect did.
type Outcome struct {
	Email     string            `json:"email"`
	Plan      *plan.Plan        `json:"plan"`
	Purchase  *account.Purchase `json:"purchase"`
	Duplicate bool              `json:"duplicate"` // nothing new was granted
	LoggedIn  bool              `json:"logged_in"` // the redirect opened the session
}

// Handler applies checkout returns to the ledger.
type Handler struct {
	ledger    *credits.Ledger
	validator *validate.Validator
	logger    *slog.Logger
	window    time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

func WithValidator(v *validate.Validator) Option {
	return func(h *Handler) { h.validator = v }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithDuplicateWindow overrides DuplicateWindow. Zero disables the check.
func WithDuplicateWindow(d time.Duration) Option {
	return func(h *Handler) { h.window = d }
}

func NewHandler(l *credits.Ledger, opts ...Option) *Handler {
	h := &Handler{
		ledger:    l,
		validator: validate.New(),
		logger:    l.Logger(),
		window:    DuplicateWindow,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Apply grants the purchased plan. Without an open session the email of the
// redirect logs in first; with neither it fails with ErrNoSession. A
// session for another email still receives the purchase.
func (h *Handler) Apply(ctx context.Context, ret Return) (*Outcome, error) {
	ret.Email = account.NormalizeEmail(ret.Email)
	if err := h.validator.Struct(ret); err != nil {
		return nil, err
	}

	p, err := h.ledger.Catalog().Get(ret.PlanID)
	if err != nil {
		return nil, credits.ValidationError{Field: "plan_id", Message: "invalid plan id " + ret.PlanID, Err: credits.ErrPlanNotFound}
	}

	out := &Outcome{Plan: p}

	sess, err := h.ledger.Current(ctx)
	switch {
	case err == nil:
	case errors.Is(err, credits.ErrNoSession) && ret.Email != "":
		sess, err = h.ledger.Login(ctx, ret.Email)
		if err != nil {
			return nil, err
		}
		out.LoggedIn = true
	default:
		return nil, err
	}
	out.Email = sess.Email()

	if ret.Email != "" && ret.Email != sess.Email() {
		h.logger.Warn("checkout email differs from session, applying to session",
			"session_email", sess.Email(),
			"checkout_email", ret.Email,
			"plan", p.ID,
		)
	}

	var opts []credits.PurchaseOption
	if ret.CheckoutID != "" {
		opts = append(opts, credits.WithIdempotencyKey(ret.CheckoutID))
	} else if h.window > 0 {
		opts = append(opts, credits.WithDuplicateWindow(h.window))
	}

	pur, err := sess.PurchasePlan(ctx, p.ID, opts...)
	switch {
	case errors.Is(err, credits.ErrDuplicatePurchase):
		out.Purchase = pur
		out.Duplicate = true
		return out, nil
	case err != nil:
		return nil, err
	}
	out.Purchase = pur
	return out, nil
}
