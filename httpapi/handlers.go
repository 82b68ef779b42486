package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/checkout"
	"github.com/xraph/credits/generate"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/pricing"
)

type loginRequest struct {
	Email string `json:"email"`
}

type sessionResponse struct {
	Active        bool             `json:"active"`
	SessionID     string           `json:"session_id,omitempty"`
	Email         string           `json:"email,omitempty"`
	LoggedInAt    time.Time        `json:"logged_in_at,omitzero"`
	LastUsedEmail string           `json:"last_used_email,omitempty"`
	Summary       *account.Summary `json:"summary,omitempty"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	email := account.NormalizeEmail(req.Email)
	if err := s.validator.Email(email); err != nil {
		s.fail(w, r, err)
		return
	}

	sess, err := s.ledger.Login(r.Context(), email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeSession(w, r, sess)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Logout(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// session reports the current session. Without one it still answers 200
// and carries the last used email for prefill.
func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ledger.Current(r.Context())
	if errors.Is(err, credits.ErrNoSession) {
		last, lerr := s.ledger.LastUsedEmail(r.Context())
		if lerr != nil {
			s.logger.Warn("read last used email", "error", lerr)
		}
		writeJSON(w, http.StatusOK, sessionResponse{LastUsedEmail: last})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeSession(w, r, sess)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, sess *credits.Session) {
	sum, err := sess.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Active:        true,
		SessionID:     sess.ID().String(),
		Email:         sess.Email(),
		LoggedInAt:    sess.LoggedInAt(),
		LastUsedEmail: sess.Email(),
		Summary:       sum,
	})
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ledger.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := sess.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type purchaseRequest struct {
	PlanID         string `json:"plan_id" validate:"notblank"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

type purchaseResponse struct {
	Purchase  *account.Purchase `json:"purchase"`
	Duplicate bool              `json:"duplicate"`
	Summary   *account.Summary  `json:"summary,omitempty"`
}

func (s *Server) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}

	sess, err := s.ledger.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var opts []credits.PurchaseOption
	if req.IdempotencyKey != "" {
		opts = append(opts, credits.WithIdempotencyKey(req.IdempotencyKey))
	}
	pur, err := sess.PurchasePlan(r.Context(), req.PlanID, opts...)
	dup := errors.Is(err, credits.ErrDuplicatePurchase)
	if err != nil && !dup {
		s.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if dup {
		status = http.StatusOK
	}
	sum, err := sess.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, purchaseResponse{Purchase: pur, Duplicate: dup, Summary: sum})
}

func (s *Server) checkoutReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := checkout.ParseReturn(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.checkout.Apply(r.Context(), ret)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type deductRequest struct {
	Amount    int64     `json:"amount" validate:"gte=0"`
	Pool      plan.Pool `json:"pool,omitempty"`
	Reference string    `json:"reference,omitempty" validate:"omitempty,max=255"`
}

type deductResponse struct {
	Deducted bool             `json:"deducted"`
	Summary  *account.Summary `json:"summary"`
}

func (s *Server) deduct(w http.ResponseWriter, r *http.Request) {
	var req deductRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}

	sess, err := s.ledger.Current(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var opts []credits.DeductOption
	if req.Reference != "" {
		opts = append(opts, credits.WithReference(req.Reference))
	}
	ok, err := sess.DeductCredits(r.Context(), req.Amount, req.Pool, opts...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := sess.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deductResponse{Deducted: ok, Summary: sum})
}

func (s *Server) plans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plans": s.ledger.Catalog().List()})
}

func (s *Server) cost(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quality := pricing.Quality(q.Get("quality"))
	if quality == "" {
		quality = pricing.QualityStandard
	}
	media := pricing.Media(q.Get("media"))
	if media == "" {
		media = pricing.MediaImage
	}

	quote, err := s.ledger.CreditCost(pricing.Provider(q.Get("provider")), quality, media)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generate.Request
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	// A missing session is reported by the gate as not_logged_in.
	sess, err := s.ledger.Current(r.Context())
	if err != nil && !errors.Is(err, credits.ErrNoSession) {
		s.fail(w, r, err)
		return
	}

	res, err := s.gen.Generate(r.Context(), sess, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Store().Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
