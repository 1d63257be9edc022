package middlewares

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/postmesh/internal/http/errors"
	"github.com/dropDatabas3/postmesh/internal/rate"
)

// Admitter is the part of rate.Controller the admission middleware needs.
type Admitter interface {
	Admit(ctx context.Context, clientKey string, tier rate.Tier) rate.Decision
}

// ClientKeyFunc derives the identity a request is counted against.
type ClientKeyFunc func(r *http.Request) string

// DefaultClientKey counts authenticated callers by subject and everyone else by address.
// It also reads the raw header so the global tier, which runs before RequireUser, counts
// the same identity.
func DefaultClientKey(r *http.Request) string {
	uid := GetUserID(r.Context())
	if uid == "" {
		uid = strings.TrimSpace(r.Header.Get(HeaderUserID))
	}
	if uid != "" {
		return "user:" + uid
	}
	return "ip:" + clientIP(r)
}

// AdmissionConfig configures WithAdmission.
type AdmissionConfig struct {
	Controller Admitter
	Tier       rate.Tier
	KeyFunc    ClientKeyFunc
	// Skip lists exact paths that bypass the tier (health checks, metrics).
	Skip []string
}

// WithAdmission counts each request against cfg.Tier. A throttled request gets 429 with
// Retry-After; a request refused because the counter store is down and the policy is
// fail-closed gets 503. Both carry the X-RateLimit-* headers.
func WithAdmission(cfg AdmissionConfig) Middleware {
	if cfg.Controller == nil || cfg.Tier.Limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultClientKey
	}
	skip := make(map[string]struct{}, len(cfg.Skip))
	for _, p := range cfg.Skip {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			d := cfg.Controller.Admit(r.Context(), cfg.KeyFunc(r), cfg.Tier)
			writeRateHeaders(w, d)
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			if d.Degraded {
				errors.WriteError(w, errors.ErrServiceUnavailable.WithDetail("admission control unavailable"))
				return
			}
			errors.WriteError(w, errors.ErrRateLimitExceeded)
		})
	}
}

func writeRateHeaders(w http.ResponseWriter, d rate.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// retryAfterSeconds rounds up so a client never retries before the window resets.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
