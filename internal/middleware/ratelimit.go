package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	apperrors "droppy/internal/errors"
)

// RateLimit throttles a route group with a token bucket. The daemon serves
// a single local UI, so one shared limiter is enough; this mainly slows
// down brute-force key guessing through the activation endpoint.
func RateLimit(logger *slog.Logger, rps float64, burst int) func(next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.WarnContext(r.Context(), "request rate limited",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				apperrors.WriteError(w, apperrors.ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
