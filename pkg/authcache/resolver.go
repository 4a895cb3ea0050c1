package authcache

import (
	"context"
	"strings"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
)

// CachedResolver layers the grant cache in front of the resolver. Two
// concurrent misses for the same pair both resolve and both write the same
// grant; redundant computation is idempotent, so no single-flight
// coordination is needed.
type CachedResolver struct {
	cache    *Cache
	resolver *access.Resolver
	metrics  *observability.Metrics
}

// NewCachedResolver wires a cache and a resolver together. metrics may be
// nil.
func NewCachedResolver(cache *Cache, resolver *access.Resolver, metrics *observability.Metrics) *CachedResolver {
	return &CachedResolver{
		cache:    cache,
		resolver: resolver,
		metrics:  metrics,
	}
}

// Resolve returns the access decision for (user, subaccount, operation),
// serving the grant from cache when possible. A resolver error propagates
// unchanged and is never converted into a decision.
func (cr *CachedResolver) Resolve(ctx context.Context, userID, subaccountID, operation string) (*access.Decision, error) {
	grant, err := cr.grant(ctx, userID, subaccountID)
	if err != nil {
		return nil, err
	}
	decision := grant.Decide(operation)
	cr.recordDecision(decision)
	return decision, nil
}

// ResolveCollection is Resolve with per-collection overrides applied
func (cr *CachedResolver) ResolveCollection(ctx context.Context, userID, subaccountID, collection, operation string) (*access.Decision, error) {
	grant, err := cr.grant(ctx, userID, subaccountID)
	if err != nil {
		return nil, err
	}
	decision := grant.DecideCollection(collection, operation)
	cr.recordDecision(decision)
	return decision, nil
}

// Invalidate exposes pair invalidation to callers holding only the cached
// resolver
func (cr *CachedResolver) Invalidate(ctx context.Context, userID, subaccountID string) error {
	return cr.cache.Invalidate(ctx, userID, subaccountID)
}

func (cr *CachedResolver) grant(ctx context.Context, userID, subaccountID string) (*access.Grant, error) {
	if grant, ok := cr.cache.GetGrant(ctx, userID, subaccountID); ok {
		return grant, nil
	}

	start := time.Now()
	grant, err := cr.resolver.Grant(ctx, userID, subaccountID)
	if err != nil {
		if cr.metrics != nil {
			cr.metrics.AccessResolutionErrors.Inc()
		}
		return nil, err
	}
	if cr.metrics != nil {
		cr.metrics.AccessResolveDuration.Observe(time.Since(start).Seconds())
	}

	cr.cache.PutGrant(ctx, userID, subaccountID, grant)
	return grant, nil
}

func (cr *CachedResolver) recordDecision(d *access.Decision) {
	if cr.metrics == nil {
		return
	}
	if d.Allowed {
		cr.metrics.AccessDecisionsTotal.WithLabelValues("allowed", "").Inc()
		return
	}
	// Collapse the per-operation suffix so label cardinality stays bounded
	reason := d.Reason
	if strings.HasPrefix(reason, "insufficient permissions") {
		reason = "insufficient permissions"
	}
	cr.metrics.AccessDecisionsTotal.WithLabelValues("denied", reason).Inc()
}
