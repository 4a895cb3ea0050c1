package subaccounts

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
)

// sweepTimeout bounds one full hygiene pass
const sweepTimeout = 2 * time.Minute

// Sweeper periodically deactivates memberships whose temporary access has
// expired and prunes unredeemable invitations. Expiry is also enforced lazily
// at decision time, so the sweep is hygiene, not a correctness dependency.
type Sweeper struct {
	store  Store
	cache  Cache
	logger *observability.Logger
	cron   *cron.Cron
}

// NewSweeper creates a sweeper. Call Start to begin the schedule.
func NewSweeper(store Store, cache Cache, logger *observability.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		cache:  cache,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules the hourly sweep
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@hourly", s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.Sweep(ctx)
}

// Sweep runs one hygiene pass. Exported so startup and tests can trigger it
// directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.store.ListExpiredTemporary(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("temporary access sweep failed")
		return
	}

	deactivated := 0
	for _, m := range expired {
		if err := s.store.SetMembershipActive(ctx, m.UserID, m.SubaccountID, false); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"user_id":       m.UserID,
				"subaccount_id": m.SubaccountID,
			}).Error("failed to deactivate expired membership")
			continue
		}
		if err := s.cache.Invalidate(ctx, m.UserID, m.SubaccountID); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"user_id":       m.UserID,
				"subaccount_id": m.SubaccountID,
			}).Error("failed to invalidate after expiry sweep")
		}
		deactivated++
	}

	pruned, err := s.store.DeleteExpiredInvitations(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("invitation pruning failed")
	}

	if deactivated > 0 || pruned > 0 {
		s.logger.WithFields(map[string]interface{}{
			"memberships_deactivated": deactivated,
			"invitations_pruned":      pruned,
		}).Info("hygiene sweep complete")
	}
}
