package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
)

const (
	headerTenant = "X-Tenant-ID"
	headerUser   = "X-User-ID"

	// queryTimeout bounds read-only handlers.
	queryTimeout = 10 * time.Second
)

// Server exposes the alert engine over HTTP.
type Server struct {
	svc    *engine.Service
	router chi.Router
	logger *slog.Logger
}

// NewServer creates an API server.
func NewServer(svc *engine.Service, logger *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(prometheusMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triggers", s.handleTrigger)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Delete("/", s.handlePurge)
			r.Get("/summary", s.handleSummary)
			r.Get("/{id}", s.handleGetAlert)
			r.Get("/{id}/history", s.handleHistory)
			r.Patch("/{id}/status", s.handleUpdateStatus)
		})

		r.Get("/projects/{id}/configuration", s.handleGetConfiguration)
		r.Put("/projects/{id}/configuration", s.handlePutConfiguration)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Post("/process", s.handleProcess)
			r.Post("/{id}/read", s.handleMarkRead)
			r.Post("/{id}/resend", s.handleResend)
		})
	})
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func tenantID(r *http.Request) string { return r.Header.Get(headerTenant) }

func userID(r *http.Request) string { return r.Header.Get(headerUser) }
