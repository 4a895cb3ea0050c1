package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/ratelimit"
)

// RateLimitMiddleware applies tiered rate limiting per request
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	logger  *observability.Logger
	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// NewRateLimitMiddleware creates the limiting layer
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Handler wraps an HTTP handler with the general/IP tier, the burst tier for
// mutating methods, the per-user tier for authenticated callers and the
// progressive delay. The first tier to reject wins; a rejection is always 429
// with Retry-After and the tier reason code, never a silent drop.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientIP(r)

		// Slow abusive sources before anything rejects
		if delay := m.limiter.Delay(ip); delay > 0 {
			m.sleep(delay)
		}

		result, err := m.limiter.Check(ctx, ratelimit.TierGeneral, ip)
		if m.handleVerdict(w, result, err) {
			return
		}

		if mutating(r.Method) {
			result, err = m.limiter.Check(ctx, ratelimit.TierBurst, ip)
			if m.handleVerdict(w, result, err) {
				return
			}

			// Mutations against a specific subaccount also count against
			// that subaccount's own budget
			if subaccountID := mux.Vars(r)["subaccountID"]; subaccountID != "" {
				result, err = m.limiter.CheckSubaccountAction(ctx, subaccountID, strings.ToLower(r.Method))
				if m.handleVerdict(w, result, err) {
					return
				}
			}
		}

		if identity := GetIdentity(r); identity != nil {
			result, err = m.limiter.CheckUser(ctx, identity.UserID, identity.GlobalRole)
			if m.handleVerdict(w, result, err) {
				return
			}
		}

		if result != nil {
			setLimitHeaders(w, result)
		}
		next.ServeHTTP(w, r)
	})
}

// handleVerdict writes the rejection response when a tier denied the request
func (m *RateLimitMiddleware) handleVerdict(w http.ResponseWriter, result *ratelimit.Result, err error) bool {
	if err == nil {
		return false
	}

	var exceeded *ratelimit.LimitExceededError
	if !errors.As(err, &exceeded) {
		// Context cancellation while counting; the client is gone anyway
		writeJSONError(w, http.StatusServiceUnavailable, "request aborted")
		return true
	}

	retryAfter := int64(exceeded.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	if result != nil {
		setLimitHeaders(w, result)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"error":"rate limit exceeded","reason":"%s","retry_after":%d}`, exceeded.Tier, retryAfter)
	return true
}

func setLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
	if !result.WindowEnd.IsZero() {
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.WindowEnd.Unix()))
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
