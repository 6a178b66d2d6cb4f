// ABOUTME: HTTP middleware for request instrumentation and per-client rate limiting
// ABOUTME: Records status and latency per route and sets X-RateLimit-* headers

package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/identity-gateway/internal/identity"
	"github.com/2389/identity-gateway/internal/metrics"
	"github.com/2389/identity-gateway/internal/ratelimit"
)

// instrument records count and latency for route and logs server errors.
func (g *Gateway) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		g.metrics.RecordRequest(r.Method, route, status, duration)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"ip", g.ips.ClientIP(r),
		}
		switch {
		case status >= http.StatusInternalServerError:
			g.logger.Error("http_request", fields...)
		default:
			g.logger.Debug("http_request", fields...)
		}
	})
}

// rateLimit rejects requests beyond limit per minute per client IP.
// A non-positive limit disables the check.
func (g *Gateway) rateLimit(name string, limit int, next http.Handler) http.Handler {
	if limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := name + ":" + g.ips.ClientIP(r)
		d := g.limiter.Allow(r.Context(), key, limit, ratelimit.DefaultWindow)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
		if !d.WindowEnd.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.WindowEnd.Unix(), 10))
		}

		if !d.Allowed {
			retry := int(time.Until(d.WindowEnd).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			g.metrics.RecordRateLimitHit(name)
			g.sendJSONError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// authOutcome maps an identity error onto the metrics outcome label.
func authOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, identity.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, identity.ErrInvalidCredentials):
		return metrics.OutcomeInvalidCredentials
	default:
		return metrics.OutcomeError
	}
}
