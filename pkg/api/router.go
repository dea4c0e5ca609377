package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"mercator-hq/saturn/pkg/config"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/policy"
	"mercator-hq/saturn/pkg/retention/records"
	"mercator-hq/saturn/pkg/retention/scheduler"
	"mercator-hq/saturn/pkg/telemetry/health"
)

// LogReader reads the processing log and notification schedule.
type LogReader interface {
	QueryLogs(ctx context.Context, q *retention.LogQuery) ([]*retention.LogEntry, error)
	ListNotifications(ctx context.Context, recordID int64) ([]*retention.Notification, error)
}

// Deps are the services behind the API. Health, Metrics and Recorder are
// optional.
type Deps struct {
	Policies  *policy.Service
	Records   *records.Manager
	Processor *scheduler.Processor
	Logs      LogReader

	Health   *health.Checker
	Metrics  http.Handler
	Recorder HTTPRecorder
}

type handlers struct {
	Deps
}

// NewRouter builds the HTTP handler for the service.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	h := &handlers{Deps: deps}
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestID)
	r.Use(traced)
	r.Use(accessLog(deps.Recorder))

	if c := cfg.Server.CORS; c.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   c.AllowedOrigins,
			AllowedMethods:   c.AllowedMethods,
			AllowedHeaders:   c.AllowedHeaders,
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: c.AllowCredentials,
			MaxAge:           c.MaxAge,
		}))
	}

	if deps.Health != nil {
		r.Get(cfg.Telemetry.Health.LivenessPath, deps.Health.LivenessHandler())
		r.Get(cfg.Telemetry.Health.ReadinessPath, deps.Health.ReadinessHandler())
	}
	if deps.Metrics != nil && cfg.Telemetry.Metrics.Enabled {
		r.Method(http.MethodGet, cfg.Telemetry.Metrics.Path, deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(NewAuthenticator(&cfg.Auth).Middleware)
		} else {
			r.Use(headerUser)
		}

		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.listPolicies)
			r.Post("/", h.createPolicy)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getPolicy)
				r.Patch("/", h.updatePolicy)
				r.Delete("/", h.deletePolicy)
				r.Put("/active", h.togglePolicy)
				r.Get("/containers", h.policyContainers)
				r.Put("/containers", h.assignContainers)
			})
		})
		r.Get("/containers/unassigned", h.unassignedContainers)
		r.Get("/containers/{id}/policies", h.containerPolicies)

		r.Route("/files/{fileID}", func(r chi.Router) {
			r.Get("/retention", h.getRetention)
			r.Put("/retention", h.setRetention)
			r.Delete("/retention", h.removeRetention)
			r.Get("/policy", h.resolvePolicy)
			r.Get("/notifications", h.notifications)
		})
		r.Post("/retention/preview", h.preview)
		r.Post("/retention/check", h.checkConflicts)
		r.Get("/retention/mine", h.myRetention)
		r.Get("/retention/upcoming", h.upcoming)

		r.Post("/runs", h.run)
		r.Get("/runs/last", h.lastRun)
		r.Post("/records/{id}/process", h.processRecord)
		r.Get("/logs", h.queryLogs)
		r.Get("/logs/export", h.exportLogs)
		r.Get("/stats", h.stats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, retention.NewNotFoundError("route", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{
			Error: &ErrorBody{Code: "method_not_allowed", Message: r.Method + " is not allowed on " + r.URL.Path},
		})
	})

	return r
}
