package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/availability"
	"github.com/clinicore/booking-engine/internal/calendar"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/ratelimit"
	"github.com/clinicore/booking-engine/internal/webhook"
	"github.com/clinicore/booking-engine/pkg/logging"
)

type RouterConfig struct {
	Bookings     *appointment.Engine
	Availability *availability.Engine
	Webhook      *webhook.Handler
	Tasks        outbox.Repository
	Limiter      *ratelimit.Limiter
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Calendar     calendar.Client
	Gatherer     prometheus.Gatherer
	Logger       *logging.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Calendar, cfg.Tasks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Availability and booking carry the per-caller rate limit; webhooks,
	// reads by id and admin operations do not.
	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(ratelimit.Middleware(cfg.Limiter, cfg.Logger))
		}
		r.Get("/availability", searchAvailabilityHandler(cfg.Availability))
		r.Post("/appointments", bookAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Bookings))
	})

	r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))

	r.Post("/webhooks/calendar", cfg.Webhook.Handle)

	r.Post("/admin/sync-tasks/{id}/requeue", requeueDeadTaskHandler(cfg.Tasks))

	return r
}
