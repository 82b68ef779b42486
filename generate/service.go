// Package generate runs a generation against a provider and charges for it.
//
// The order is fixed: authorize, call the provider, deduct. A failed or
// cancelled call is never charged. There is no reservation, so a balance
// spent elsewhere during a slow call shows up as an uncharged result.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/entitlement"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/meter"
	"github.com/xraph/credits/pricing"
	"github.com/xraph/credits/validate"
)

// DefaultSize is used for a zero width or height.
const DefaultSize = 1024

// Request is one generation as asked by the caller.
type Request struct {
	Prompt   string           `json:"prompt" validate:"notblank,max=4000"`
	Provider pricing.Provider `json:"provider,omitempty"`
	Model    string           `json:"model,omitempty"`
	Quality  pricing.Quality  `json:"quality,omitempty" validate:"omitempty,oneof=standard hd uhd"`
	Media    pricing.Media    `json:"media,omitempty" validate:"omitempty,oneof=image video"`
	Width    int              `json:"width,omitempty" validate:"gte=0,lte=4096"`
	Height   int              `json:"height,omitempty" validate:"gte=0,lte=4096"`
}

// Result is a finished generation.
type Result struct {
	ID       id.GenerationID  `json:"id"`
	URL      string           `json:"url"`
	Media    pricing.Media    `json:"media"`
	Provider pricing.Provider `json:"provider"`
	Credits  int64            `json:"credits"`
	Pool     string           `json:"pool"`
	Charged  bool             `json:"charged"`
}

// Service gates generations on the ledger.
type Service struct {
	ledger    *credits.Ledger
	validator *validate.Validator
	logger    *slog.Logger
	providers map[pricing.Provider]Provider
	fallback  pricing.Provider
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithProvider registers p. The first registered provider serves requests
// that name none.
func WithProvider(p Provider) Option {
	return func(s *Service) {
		if s.fallback == "" {
			s.fallback = p.Name()
		}
		s.providers[p.Name()] = p
	}
}

// WithGateways registers the built-in Pollinations provider, then one
// HTTPProvider per gateway. Pollinations stays the fallback; a gateway for
// pollinations replaces the built-in renderer but keeps that role. Gateways
// without an endpoint are skipped.
func WithGateways(gateways ...Gateway) Option {
	return func(s *Service) {
		WithProvider(&Pollinations{})(s)
		for _, g := range gateways {
			if g.Endpoint == "" {
				continue
			}
			WithProvider(g.provider())(s)
		}
	}
}

func WithValidator(v *validate.Validator) Option {
	return func(s *Service) { s.validator = v }
}

// NewService builds a Service. Without providers it serves Pollinations.
func NewService(l *credits.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:    l,
		validator: validate.New(),
		logger:    l.Logger(),
		providers: make(map[pricing.Provider]Provider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.providers) == 0 {
		WithProvider(&Pollinations{})(s)
	}
	return s
}

// normalize fills defaults. It does not mutate the caller's value.
func (s *Service) normalize(req Request) Request {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Provider = pricing.Provider(strings.ToLower(strings.TrimSpace(string(req.Provider))))
	if req.Provider == "" {
		req.Provider = s.fallback
	}
	if req.Quality == "" {
		req.Quality = pricing.QualityStandard
	}
	if req.Media == "" {
		req.Media = pricing.MediaImage
	}
	if req.Width == 0 {
		req.Width = DefaultSize
	}
	if req.Height == 0 {
		req.Height = DefaultSize
	}
	return req
}

// Authorize answers whether sess may run req now. Denials are results, not
// errors; an error means the request itself cannot be priced.
func (s *Service) Authorize(ctx context.Context, sess *credits.Session, req Request) (*entitlement.Result, error) {
	req = s.normalize(req)
	quote, err := s.ledger.CreditCost(req.Provider, req.Quality, req.Media)
	if err != nil {
		return nil, credits.ValidationError{Field: "provider", Message: err.Error(), Err: err}
	}

	res := &entitlement.Result{
		Provider: string(quote.Provider),
		Pool:     quote.Pool,
		Cost:     quote.Credits,
	}

	var sum *credits.Summary
	if sess != nil {
		sum, err = sess.Summary(ctx)
		if err != nil && !errors.Is(err, credits.ErrNoSession) {
			return nil, err
		}
	}

	switch {
	case sum == nil:
		res.Reason = entitlement.ReasonNotLoggedIn
	case sum.LoginLocked:
		res.Email = sum.Email
		res.Balance = sum.Balance(quote.Pool)
		res.Reason = entitlement.ReasonLoginLocked
	case sum.Balance(quote.Pool) < quote.Credits:
		res.Email = sum.Email
		res.Balance = sum.Balance(quote.Pool)
		res.Reason = entitlement.ReasonInsufficientCredits
	default:
		res.Email = sum.Email
		res.Balance = sum.Balance(quote.Pool)
		res.Remaining = res.Balance - quote.Credits
		res.Allowed = true
		res.Reason = entitlement.ReasonOK
	}

	if !res.Allowed {
		s.ledger.Plugins().EmitGenerationDenied(ctx, res)
	}
	return res, nil
}

// Generate authorizes req, calls the provider and deducts the quoted cost on
// success.
func (s *Service) Generate(ctx context.Context, sess *credits.Session, req Request) (*Result, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	req = s.normalize(req)

	p, ok := s.providers[req.Provider]
	if !ok {
		return nil, credits.ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("provider %q is not configured", req.Provider),
			Err:     credits.ErrUnknownProvider,
		}
	}

	auth, err := s.Authorize(ctx, sess, req)
	if err != nil {
		return nil, err
	}
	if !auth.Allowed {
		return nil, deniedError(auth)
	}

	gen := &meter.Generation{
		ID:       id.NewGenerationID(),
		Email:    auth.Email,
		Provider: string(req.Provider),
		Model:    req.Model,
		Media:    string(req.Media),
		Pool:     auth.Pool,
		Credits:  auth.Cost,
	}

	start := time.Now()
	out, err := p.Generate(ctx, req)
	gen.Elapsed = time.Since(start)

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		gen.Err = err
		s.ledger.Plugins().EmitGenerationFailed(ctx, gen)
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Info("generation abandoned", "email", gen.Email, "provider", gen.Provider)
			return nil, ctxErr
		}
		s.logger.Warn("generation failed",
			"email", gen.Email,
			"provider", gen.Provider,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s: %w", credits.ErrProviderFailed, req.Provider, err)
	}

	charged, err := sess.DeductCredits(ctx, auth.Cost, auth.Pool, credits.WithReference(gen.ID.String()))
	switch {
	case err != nil:
		s.logger.Warn("generation not charged",
			"email", gen.Email,
			"generation_id", gen.ID.String(),
			"error", err,
		)
	case !charged:
		s.logger.Warn("generation not charged, balance spent meanwhile",
			"email", gen.Email,
			"generation_id", gen.ID.String(),
			"cost", auth.Cost,
		)
	}
	gen.Charged = charged
	gen.URL = out.URL
	s.ledger.Plugins().EmitGenerationCompleted(ctx, gen)

	media := out.Media
	if media == "" {
		media = req.Media
	}
	return &Result{
		ID:       gen.ID,
		URL:      out.URL,
		Media:    media,
		Provider: req.Provider,
		Credits:  auth.Cost,
		Pool:     string(auth.Pool),
		Charged:  charged,
	}, nil
}

func deniedError(res *entitlement.Result) error {
	var sentinel error
	switch res.Reason {
	case entitlement.ReasonNotLoggedIn:
		sentinel = credits.ErrNoSession
	case entitlement.ReasonLoginLocked:
		sentinel = credits.ErrLoginLocked
	default:
		sentinel = credits.ErrInsufficientCredits
	}
	return &DeniedError{Result: res, err: sentinel}
}

// DeniedError carries the entitlement result of a refused generation.
type DeniedError struct {
	Result *entitlement.Result
	err    error
}

func (e *DeniedError) Error() string { return e.err.Error() + ": " + e.Result.Message() }
func (e *DeniedError) Unwrap() error { return e.err }
