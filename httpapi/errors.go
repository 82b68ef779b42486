package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/credits"
	"github.com/xraph/credits/generate"
)

// StatusClientClosedRequest answers a request whose caller went away first.
const StatusClientClosedRequest = 499

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusOf maps ledger errors onto HTTP. Order matters: plan errors arrive
// wrapped in a ValidationError. An unsellable plan is 403, an unknown one 400.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, credits.ErrPlanNotForSale):
		return http.StatusForbidden, "plan_not_for_sale"
	case credits.IsValidation(err),
		errors.Is(err, credits.ErrUnknownProvider),
		errors.Is(err, credits.ErrUnknownQuality):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, credits.ErrNoSession):
		return http.StatusUnauthorized, "no_session"
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, credits.ErrLoginLocked):
		return http.StatusForbidden, "login_locked"
	case credits.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, credits.ErrConcurrentUpdate):
		return http.StatusConflict, "conflict"
	case errors.Is(err, credits.ErrProviderFailed):
		return http.StatusBadGateway, "provider_failed"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()

	var denied *generate.DeniedError
	switch {
	case errors.As(err, &denied):
		msg = denied.Result.Message()
	case status == StatusClientClosedRequest, status == http.StatusGatewayTimeout:
		s.logger.Info("request abandoned",
			"path", r.URL.Path,
			"error", err,
			"request_id", RequestID(r.Context()),
		)
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", RequestID(r.Context()),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return credits.ValidationError{Field: "body", Message: "malformed JSON: " + err.Error()}
	}
	return nil
}
