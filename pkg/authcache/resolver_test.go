package authcache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

// countingDirectory tracks how many lookups hit the backing store, so tests
// can tell a cache hit from a re-resolution.
type countingDirectory struct {
	users       map[string]*access.User
	subaccounts map[string]*access.Subaccount
	memberships map[string]*permissions.Membership
	err         error
	lookups     int
}

func membershipKey(userID, subaccountID string) string {
	return userID + "/" + subaccountID
}

func (d *countingDirectory) GetUser(_ context.Context, userID string) (*access.User, error) {
	d.lookups++
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[userID]
	if !ok {
		return nil, access.ErrNotFound
	}
	return u, nil
}

func (d *countingDirectory) GetSubaccount(_ context.Context, subaccountID string) (*access.Subaccount, error) {
	if d.err != nil {
		return nil, d.err
	}
	s, ok := d.subaccounts[subaccountID]
	if !ok {
		return nil, access.ErrNotFound
	}
	return s, nil
}

func (d *countingDirectory) GetMembership(_ context.Context, userID, subaccountID string) (*permissions.Membership, error) {
	if d.err != nil {
		return nil, d.err
	}
	m, ok := d.memberships[membershipKey(userID, subaccountID)]
	if !ok {
		return nil, access.ErrNotFound
	}
	return m, nil
}

func setupCachedResolver(t *testing.T) (*CachedResolver, *countingDirectory, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dir := &countingDirectory{
		users: map[string]*access.User{
			"u-editor": {ID: "u-editor", GlobalRole: permissions.GlobalRoleUser, IsActive: true},
		},
		subaccounts: map[string]*access.Subaccount{
			"sub-1": {ID: "sub-1", Name: "primary", IsActive: true},
		},
		memberships: map[string]*permissions.Membership{
			membershipKey("u-editor", "sub-1"): {
				Role:        permissions.RoleEditor,
				Permissions: permissions.DefaultPermissions(permissions.RoleEditor),
				IsActive:    true,
			},
		},
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	cache := NewCache(client, Config{TTL: time.Minute}, logger, nil)
	cr := NewCachedResolver(cache, access.NewResolver(dir), nil)
	return cr, dir, mr
}

func TestCachedResolver_MissThenHit(t *testing.T) {
	cr, dir, _ := setupCachedResolver(t)
	ctx := context.Background()

	d, err := cr.Resolve(ctx, "u-editor", "sub-1", "find")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got denial %q", d.Reason)
	}
	if dir.lookups != 1 {
		t.Fatalf("first resolve should hit the directory once, got %d lookups", dir.lookups)
	}

	// Same pair, different operation: the cached grant serves both
	d, err = cr.Resolve(ctx, "u-editor", "sub-1", "insert")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("editor should be allowed insert, got %q", d.Reason)
	}
	if dir.lookups != 1 {
		t.Errorf("second resolve should be a cache hit, got %d lookups", dir.lookups)
	}

	// Denied operations come from the same cached grant
	d, err = cr.Resolve(ctx, "u-editor", "sub-1", "manage")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.Allowed {
		t.Error("editor must not be allowed manage")
	}
	if dir.lookups != 1 {
		t.Errorf("denial should not bypass the cache, got %d lookups", dir.lookups)
	}
}

func TestCachedResolver_InvalidateForcesReResolution(t *testing.T) {
	cr, dir, _ := setupCachedResolver(t)
	ctx := context.Background()

	if _, err := cr.Resolve(ctx, "u-editor", "sub-1", "find"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Demote the user, then invalidate: the next resolve must see it
	dir.memberships[membershipKey("u-editor", "sub-1")] = &permissions.Membership{
		Role:        permissions.RoleViewer,
		Permissions: permissions.DefaultPermissions(permissions.RoleViewer),
		IsActive:    true,
	}
	if err := cr.Invalidate(ctx, "u-editor", "sub-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	d, err := cr.Resolve(ctx, "u-editor", "sub-1", "insert")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.Allowed {
		t.Error("demoted viewer must not be allowed insert after invalidation")
	}
	if dir.lookups != 2 {
		t.Errorf("expected re-resolution after invalidation, got %d lookups", dir.lookups)
	}
}

func TestCachedResolver_BackendDownFallsThrough(t *testing.T) {
	cr, dir, mr := setupCachedResolver(t)
	ctx := context.Background()

	mr.Close()

	// With the cache dead, every resolve goes to the directory and succeeds
	for i := 0; i < 3; i++ {
		d, err := cr.Resolve(ctx, "u-editor", "sub-1", "find")
		if err != nil {
			t.Fatalf("Resolve must not fail on cache outage: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected allow, got %q", d.Reason)
		}
	}
	if dir.lookups != 3 {
		t.Errorf("expected 3 directory lookups with cache down, got %d", dir.lookups)
	}
}

func TestCachedResolver_ResolverErrorPropagates(t *testing.T) {
	cr, dir, _ := setupCachedResolver(t)
	ctx := context.Background()

	dir.err = errors.New("connection refused")

	d, err := cr.Resolve(ctx, "u-editor", "sub-1", "find")
	if err == nil {
		t.Fatal("expected error when the directory is unreachable")
	}
	if d != nil {
		t.Errorf("a failed resolution must not yield a decision, got %+v", d)
	}
}

func TestCachedResolver_DeniedGrantIsCachedToo(t *testing.T) {
	cr, dir, _ := setupCachedResolver(t)
	ctx := context.Background()

	d, err := cr.Resolve(ctx, "u-editor", "sub-other", "find")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.Allowed || d.Reason != access.ReasonNotAssociated {
		t.Fatalf("expected %q denial, got %+v", access.ReasonNotAssociated, d)
	}

	if _, err := cr.Resolve(ctx, "u-editor", "sub-other", "find"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dir.lookups != 1 {
		t.Errorf("negative grants should be served from cache, got %d lookups", dir.lookups)
	}
}

func TestCachedResolver_CollectionOverrideFromCache(t *testing.T) {
	cr, dir, _ := setupCachedResolver(t)
	ctx := context.Background()

	dir.memberships[membershipKey("u-editor", "sub-1")].Collections = []permissions.CollectionOverride{
		{Name: "audit_log", Permissions: permissions.CollectionSet{Read: true}},
	}

	d, err := cr.ResolveCollection(ctx, "u-editor", "sub-1", "audit_log", "insert")
	if err != nil {
		t.Fatalf("ResolveCollection failed: %v", err)
	}
	if d.Allowed {
		t.Error("collection override should replace the global write grant")
	}

	d, err = cr.ResolveCollection(ctx, "u-editor", "sub-1", "audit_log", "find")
	if err != nil {
		t.Fatalf("ResolveCollection failed: %v", err)
	}
	if !d.Allowed {
		t.Errorf("override grants read, got denial %q", d.Reason)
	}
	if dir.lookups != 1 {
		t.Errorf("collection decisions should share the cached grant, got %d lookups", dir.lookups)
	}
}
