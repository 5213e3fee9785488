package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/booking-engine/internal/calendar"
	"github.com/clinicore/booking-engine/internal/outbox"
)

type HealthHandler struct {
	pgPool   *pgxpool.Pool
	redis    *redis.Client
	calendar calendar.Client
	tasks    outbox.Repository
	env      string
	version  string
}

func NewHealthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client, cal calendar.Client, tasks outbox.Repository, env, version string) *HealthHandler {
	return &HealthHandler{
		pgPool:   pgPool,
		redis:    redisClient,
		calendar: cal,
		tasks:    tasks,
		env:      env,
		version:  version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
	Outbox       *OutboxHealth     `json:"outbox,omitempty"`
}

type OutboxHealth struct {
	PendingDepth  int     `json:"pending_depth"`
	DeadCount     int     `json:"dead_count"`
	OldestDeadAge float64 `json:"oldest_dead_age_seconds"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness reports hard dependencies (postgres) as error and soft ones
// (redis, calendar credentials) as degraded: booking works without either,
// just without rate limiting or timely sync.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	pgCtx, pgCancel := context.WithTimeout(ctx, time.Second)
	err := h.pgPool.Ping(pgCtx)
	pgCancel()
	if err != nil {
		deps["postgres"] = "down"
		status = "error"
	} else {
		deps["postgres"] = "ok"
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, time.Second)
	err = h.redis.Ping(redisCtx).Err()
	redisCancel()
	if err != nil {
		deps["redis"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	} else {
		deps["redis"] = "ok"
	}

	if h.calendar != nil {
		calCtx, calCancel := context.WithTimeout(ctx, 2*time.Second)
		err = h.calendar.ValidateCredentials(calCtx)
		calCancel()
		if err != nil {
			deps["calendar"] = fmt.Sprintf("down: %v", err)
			if status == "ok" {
				status = "degraded"
			}
		} else {
			deps["calendar"] = "ok"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}

	if deps["postgres"] == "ok" && h.tasks != nil {
		if stats, err := h.tasks.Stats(ctx); err == nil {
			resp.Outbox = &OutboxHealth{
				PendingDepth:  stats.PendingDepth,
				DeadCount:     stats.DeadCount,
				OldestDeadAge: stats.OldestDeadAge.Seconds(),
			}
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, resp)
}
