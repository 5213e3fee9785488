package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/clinicore/booking-engine/pkg/logging"
)

// CallerHeader identifies the calling client for per-caller limits.
// Requests without it fall back to the remote address.
const CallerHeader = "X-Caller-ID"

// Middleware rejects over-limit requests with 429 and a Retry-After
// header. Limiter errors are logged and the request admitted.
func Middleware(limiter *Limiter, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable, admitting request", "caller", key, "error", err)
			}

			if !res.Allowed {
				retry := int(res.RetryAfter.Seconds())
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if caller := r.Header.Get(CallerHeader); caller != "" {
		return caller
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
