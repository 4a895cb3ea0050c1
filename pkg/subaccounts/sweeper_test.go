package subaccounts

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/directory"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/permissions"
)

func TestSweeper_DeactivatesExpiredAndPrunesInvitations(t *testing.T) {
	store := directory.NewMemoryStore()
	cache := newRecordingCache()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	sweeper := NewSweeper(store, cache, logger)
	ctx := context.Background()
	now := time.Now()

	store.CreateSubaccount(ctx, &access.Subaccount{ID: "s1", Name: "primary", IsActive: true})
	store.UpsertMembership(ctx, &permissions.Membership{
		UserID: "u-expired", SubaccountID: "s1", Role: permissions.RoleEditor, IsActive: true,
		TemporaryAccess: &permissions.TemporaryAccess{Enabled: true, ExpiresAt: now.Add(-time.Hour)},
	})
	store.UpsertMembership(ctx, &permissions.Membership{
		UserID: "u-valid", SubaccountID: "s1", Role: permissions.RoleEditor, IsActive: true,
		TemporaryAccess: &permissions.TemporaryAccess{Enabled: true, ExpiresAt: now.Add(time.Hour)},
	})
	store.CreateInvitation(ctx, &directory.Invitation{
		Token: "stale", SubaccountID: "s1", UserID: "u2",
		Role: permissions.RoleViewer, ExpiresAt: now.Add(-time.Minute),
	})
	store.CreateInvitation(ctx, &directory.Invitation{
		Token: "fresh", SubaccountID: "s1", UserID: "u3",
		Role: permissions.RoleViewer, ExpiresAt: now.Add(time.Hour),
	})

	sweeper.Sweep(ctx)

	m, _ := store.GetMembership(ctx, "u-expired", "s1")
	if m.IsActive {
		t.Error("expired temporary membership should be deactivated")
	}
	m, _ = store.GetMembership(ctx, "u-valid", "s1")
	if !m.IsActive {
		t.Error("unexpired temporary membership must stay active")
	}

	if len(cache.pairs) != 1 || cache.pairs[0] != "u-expired/s1" {
		t.Errorf("sweep must invalidate each deactivated pair, got %v", cache.pairs)
	}

	if _, err := store.GetInvitation(ctx, "stale"); err == nil {
		t.Error("stale invitation should be pruned")
	}
	if _, err := store.GetInvitation(ctx, "fresh"); err != nil {
		t.Errorf("fresh invitation must survive: %v", err)
	}
}

func TestSweeper_IdempotentAcrossRuns(t *testing.T) {
	store := directory.NewMemoryStore()
	cache := newRecordingCache()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	sweeper := NewSweeper(store, cache, logger)
	ctx := context.Background()

	store.CreateSubaccount(ctx, &access.Subaccount{ID: "s1", Name: "primary", IsActive: true})
	store.UpsertMembership(ctx, &permissions.Membership{
		UserID: "u1", SubaccountID: "s1", Role: permissions.RoleEditor, IsActive: true,
		TemporaryAccess: &permissions.TemporaryAccess{Enabled: true, ExpiresAt: time.Now().Add(-time.Hour)},
	})

	sweeper.Sweep(ctx)
	sweeper.Sweep(ctx)

	// The membership went inactive on the first pass, so the second pass has
	// nothing to do
	if len(cache.pairs) != 1 {
		t.Errorf("second sweep should be a no-op, invalidations = %v", cache.pairs)
	}
}
