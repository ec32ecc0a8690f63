package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/middleware"
	"github.com/JakeFAU/award-digest/internal/registry"
	"github.com/JakeFAU/award-digest/internal/store"
	"github.com/JakeFAU/award-digest/internal/telemetry"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultListLookback   = 30
)

// Submitter enqueues cycle requests.
type Submitter interface {
	Submit(ctx context.Context, w award.Window, source string) (award.CycleRequest, error)
}

// Deps are the collaborators behind the routes. Nil members make their
// routes answer 503.
type Deps struct {
	Submitter Submitter
	Runs      store.RunRepository
	Awards    award.Lister
	Registry  registry.Lookup
	Clock     award.Clock
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
}

// Options tune request handling.
type Options struct {
	APIKey string
	// LookbackDays and MinValue build the window of POST /v1/cycles when the
	// body does not pin one.
	LookbackDays int
	MinValue     float64
	// ListLookbackDays is the default range of the award listing.
	ListLookbackDays int
	Currency         string
	RequestTimeout   time.Duration
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router chi.Router
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ListLookbackDays <= 0 {
		opts.ListLookbackDays = defaultListLookback
	}
	s := &Server{deps: deps, opts: opts, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(telemetry.Middleware)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.APIKey(opts.APIKey, "/healthz", "/readyz", "/metrics"))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/cycles", func(r chi.Router) {
			r.Post("/", s.submitCycle)
			r.Get("/", s.listCycles)
			r.Get("/{cycle_id}", s.getCycle)
		})
		r.Route("/awards", func(r chi.Router) {
			r.Get("/", s.listAwards)
			r.Get("/export", s.exportAwards)
		})
		r.Get("/companies/{company_id}", s.getCompany)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg, hint string) {
	writeJSON(w, status, errorBody{Error: msg, Hint: hint})
}

// writeUpstreamError explains an error from a store or remote service.
func writeUpstreamError(w http.ResponseWriter, err error) {
	msg, hint := award.Explain(err)
	writeError(w, http.StatusBadGateway, msg, hint)
}
