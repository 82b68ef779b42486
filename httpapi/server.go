// Package httpapi exposes the ledger over JSON/HTTP.
//
// The process holds one ledger profile, so the session endpoints act on the
// profile's single current session rather than on a per-client cookie.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/credits"
	"github.com/xraph/credits/checkout"
	"github.com/xraph/credits/generate"
	"github.com/xraph/credits/validate"
)

// Server routes requests to the ledger and the generation gate.
type Server struct {
	ledger    *credits.Ledger
	gen       *generate.Service
	checkout  *checkout.Handler
	validator *validate.Validator
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	router    *mux.Router
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithValidator(v *validate.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// WithGenerator replaces the default generation service.
func WithGenerator(g *generate.Service) Option {
	return func(s *Server) { s.gen = g }
}

// WithCheckout replaces the default checkout handler.
func WithCheckout(h *checkout.Handler) Option {
	return func(s *Server) { s.checkout = h }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the router. Collaborators left unset are derived from l.
func New(l *credits.Ledger, opts ...Option) *Server {
	s := &Server{
		ledger: l,
		logger: l.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = validate.New()
	}
	if s.gen == nil {
		s.gen = generate.NewService(l, generate.WithLogger(s.logger), generate.WithValidator(s.validator))
	}
	if s.checkout == nil {
		s.checkout = checkout.NewHandler(l, checkout.WithLogger(s.logger), checkout.WithValidator(s.validator))
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(s.recovery)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/session", s.login).Methods(http.MethodPost)
	v1.HandleFunc("/session", s.logout).Methods(http.MethodDelete)
	v1.HandleFunc("/session", s.session).Methods(http.MethodGet)
	v1.HandleFunc("/account", s.account).Methods(http.MethodGet)
	v1.HandleFunc("/purchases", s.purchase).Methods(http.MethodPost)
	v1.HandleFunc("/checkout/return", s.checkoutReturn).Methods(http.MethodGet)
	v1.HandleFunc("/deductions", s.deduct).Methods(http.MethodPost)
	v1.HandleFunc("/plans", s.plans).Methods(http.MethodGet)
	v1.HandleFunc("/cost", s.cost).Methods(http.MethodGet)
	v1.HandleFunc("/generate", s.generate).Methods(http.MethodPost)

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }
