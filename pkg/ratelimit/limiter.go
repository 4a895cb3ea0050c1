package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// Tier identifies a rate-limit policy. The string values are the
// machine-readable reason codes surfaced in 429 responses.
type Tier string

const (
	TierGeneral    Tier = "general"
	TierUser       Tier = "user"
	TierAdmin      Tier = "admin"
	TierSubaccount Tier = "subaccount"
	TierBurst      Tier = "burst"
)

// TierConfig is one tier's ceiling and window
type TierConfig struct {
	Limit  int64
	Window time.Duration
}

// DelayConfig tunes the progressive-delay tier
type DelayConfig struct {
	// Threshold is the per-key request count past which delay kicks in
	Threshold int64
	// Window bounds how long offenses are remembered
	Window time.Duration
	// Step is the added latency per request over the threshold
	Step time.Duration
	// Max caps the delay regardless of offense count
	Max time.Duration
	// MaxKeys bounds the offense store
	MaxKeys int
}

// Config carries every tier's settings
type Config struct {
	General    TierConfig
	User       TierConfig
	Admin      TierConfig
	Subaccount TierConfig
	Burst      TierConfig
	Delay      DelayConfig
}

// DefaultConfig returns production-shaped defaults: a moderate IP ceiling, a
// generous per-user ceiling with a higher admin variant, a tight burst window
// for sensitive mutations, and a delay tier that slows before anything
// rejects.
func DefaultConfig() Config {
	return Config{
		General:    TierConfig{Limit: 300, Window: time.Minute},
		User:       TierConfig{Limit: 1000, Window: time.Minute},
		Admin:      TierConfig{Limit: 5000, Window: time.Minute},
		Subaccount: TierConfig{Limit: 100, Window: time.Minute},
		Burst:      TierConfig{Limit: 10, Window: 10 * time.Second},
		Delay: DelayConfig{
			Threshold: 50,
			Window:    time.Minute,
			Step:      100 * time.Millisecond,
			Max:       2 * time.Second,
			MaxKeys:   10000,
		},
	}
}

// LimitExceededError signals a passed ceiling. It carries everything the
// response contract needs: the tier reason code and the retry-after duration
// derived from the window.
type LimitExceededError struct {
	Tier       Tier
	Limit      int64
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for tier %s: retry after %s", e.Tier, e.RetryAfter)
}

// Result is the counter state after a check, for response headers
type Result struct {
	Tier      Tier
	Limit     int64
	TotalHits int64
	Remaining int64
	WindowEnd time.Time
}

// Limiter applies tier policy on top of a counting store
type Limiter struct {
	store   Store
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics

	delayMu  sync.Mutex
	offenses *expirable.LRU[string, offenseWindow]
}

// offenseWindow counts one key's requests inside the current delay window.
// The window end is tracked explicitly because the LRU's TTL refreshes on
// every write and only evicts idle keys; it must not extend how long
// offenses are remembered for a steadily active key.
type offenseWindow struct {
	count     int64
	windowEnd time.Time
}

// NewLimiter creates a limiter. metrics may be nil.
func NewLimiter(store Store, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Limiter {
	if cfg.Delay.MaxKeys <= 0 {
		cfg.Delay.MaxKeys = DefaultConfig().Delay.MaxKeys
	}
	return &Limiter{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		offenses: expirable.NewLRU[string, offenseWindow](cfg.Delay.MaxKeys, nil, cfg.Delay.Window),
	}
}

// Check counts one request against a tier's ceiling. The returned Result is
// non-nil whenever the counter could be read, including alongside a
// *LimitExceededError, so callers can always populate response headers. A
// store error is fail-open: the request is admitted and the error is absorbed
// after logging.
func (l *Limiter) Check(ctx context.Context, tier Tier, key string) (*Result, error) {
	cfg := l.tierConfig(tier)

	w, err := l.store.Incr(ctx, fmt.Sprintf("%s:%s", tier, key), cfg.Window)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// HybridStore absorbs backend trouble; anything surfacing here is
		// unexpected, and blocking traffic on limiter breakage is worse than
		// briefly not limiting
		l.logger.WithError(err).WithField("tier", string(tier)).Error("rate limit store failed, admitting request")
		l.record(tier, "error")
		return &Result{Tier: tier, Limit: cfg.Limit, Remaining: cfg.Limit}, nil
	}

	result := &Result{
		Tier:      tier,
		Limit:     cfg.Limit,
		TotalHits: w.TotalHits,
		Remaining: max64(cfg.Limit-w.TotalHits, 0),
		WindowEnd: w.WindowEnd,
	}

	if w.TotalHits > cfg.Limit {
		l.record(tier, "rejected")
		return result, &LimitExceededError{
			Tier:       tier,
			Limit:      cfg.Limit,
			RetryAfter: time.Until(w.WindowEnd),
		}
	}

	l.record(tier, "allowed")
	return result, nil
}

// CheckUser applies the per-user tier. Global admins get the higher admin
// ceiling; super admins skip per-user limiting entirely (general/IP tiers
// still apply to them upstream).
func (l *Limiter) CheckUser(ctx context.Context, userID string, role permissions.GlobalRole) (*Result, error) {
	if role == permissions.GlobalRoleSuperAdmin {
		l.record(TierUser, "skipped")
		return nil, nil
	}
	tier := TierUser
	if role == permissions.GlobalRoleAdmin {
		tier = TierAdmin
	}
	return l.Check(ctx, tier, userID)
}

// CheckSubaccountAction applies the per-subaccount-action tier, counting each
// (subaccount, action) pair independently
func (l *Limiter) CheckSubaccountAction(ctx context.Context, subaccountID, action string) (*Result, error) {
	return l.Check(ctx, TierSubaccount, subaccountID+":"+action)
}

// Delay returns the artificial latency to apply for key. Requests are counted
// per delay window; past the soft threshold each further request in the same
// window adds one Step, capped at Max. A lapsed window resets the count, so
// only keys actually exceeding the threshold rate are ever slowed.
func (l *Limiter) Delay(key string) time.Duration {
	if l.cfg.Delay.Threshold <= 0 || l.cfg.Delay.Step <= 0 {
		return 0
	}

	now := time.Now()
	l.delayMu.Lock()
	w, ok := l.offenses.Get(key)
	if !ok || now.After(w.windowEnd) {
		w = offenseWindow{windowEnd: now.Add(l.cfg.Delay.Window)}
	}
	w.count++
	l.offenses.Add(key, w)
	l.delayMu.Unlock()

	over := w.count - l.cfg.Delay.Threshold
	if over <= 0 {
		return 0
	}

	delay := time.Duration(over) * l.cfg.Delay.Step
	if delay > l.cfg.Delay.Max {
		delay = l.cfg.Delay.Max
	}
	if l.metrics != nil {
		l.metrics.RateLimitDelayApplied.Observe(delay.Seconds())
	}
	return delay
}

func (l *Limiter) tierConfig(tier Tier) TierConfig {
	switch tier {
	case TierUser:
		return l.cfg.User
	case TierAdmin:
		return l.cfg.Admin
	case TierSubaccount:
		return l.cfg.Subaccount
	case TierBurst:
		return l.cfg.Burst
	default:
		return l.cfg.General
	}
}

func (l *Limiter) record(tier Tier, outcome string) {
	if l.metrics != nil {
		l.metrics.RateLimitRequestsTotal.WithLabelValues(string(tier), outcome).Inc()
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
