package accounts

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// RemoveNotActivatedUsers deletes accounts that never verified their email
// and are older than the retention window. It returns how many were removed.
func (l *Lifecycle) RemoveNotActivatedUsers(ctx context.Context) (int, error) {
	removed := 0
	err := l.run(ctx, "retention sweep failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		cutoff := l.now().Add(-l.policy.RetentionWindow)
		stale, err := l.store.Users().ListUnactivatedCreatedBeforeTx(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		for _, user := range stale {
			if err := l.removeUser(ctx, tx, user); err != nil {
				return err
			}
			ob.record(newEvent(ActivityEventSwept, systemActor, user, map[string]any{
				"created_at": user.CreatedAt,
			}))
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		l.logger.Info("removed not activated users", "count", removed)
	}
	return removed, nil
}

// RetentionSweeper runs RemoveNotActivatedUsers on a fixed interval
type RetentionSweeper struct {
	lifecycle *Lifecycle
	interval  time.Duration
	logger    Logger
}

// NewRetentionSweeper returns a sweeper; interval defaults to one day
func NewRetentionSweeper(l *Lifecycle, interval time.Duration) *RetentionSweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionSweeper{
		lifecycle: l,
		interval:  interval,
		logger:    l.logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (s *RetentionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	if _, err := s.lifecycle.RemoveNotActivatedUsers(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retention sweep failed", "error", err)
	}
}
