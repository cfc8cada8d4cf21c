// Package funnel advances idle users through the staged drip campaign.
package funnel

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/storage"
)

// FinalStage is the last campaign stage. Delivering it completes the
// funnel for the user permanently.
const FinalStage = 5

// stageAfter holds the idle duration that unlocks each stage, indexed
// by stage-1.
var stageAfter = [FinalStage]time.Duration{
	60 * time.Minute,
	120 * time.Minute,
	180 * time.Minute,
	240 * time.Minute,
	300 * time.Minute,
}

// StageSender delivers the creative for one campaign stage.
type StageSender interface {
	SendStage(ctx context.Context, userID int64, stage int) error
}

// Tracker owns engagement state transitions. All mutations of
// last-activity and stage go through it.
type Tracker struct {
	store  storage.Storage
	sender StageSender
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(store storage.Storage, sender StageSender, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// SetSender installs the stage sender. The bot both consumes the
// tracker and delivers its stages, so the sender is wired after
// construction.
func (t *Tracker) SetSender(sender StageSender) {
	t.sender = sender
}

// Touch records user activity and restarts the idle countdown. It does
// not clear funnel completion.
func (t *Tracker) Touch(userID int64) error {
	now := t.now()
	created, err := t.store.TouchEngagement(userID, now)
	if err != nil {
		return fmt.Errorf("failed to touch engagement: %w", err)
	}
	if created {
		if err := t.store.BumpDailyStats(now.Format("2006-01-02"), models.DailyStats{NewUsers: 1}); err != nil {
			t.logger.Warn("failed to count new user", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// Disengage restarts the countdown and takes the user out of the
// campaign for good. Used when the user navigates away from the entry
// flow on their own.
func (t *Tracker) Disengage(userID int64) error {
	if err := t.Touch(userID); err != nil {
		return err
	}
	if err := t.store.MarkFunnelDone(userID); err != nil {
		return fmt.Errorf("failed to mark funnel done: %w", err)
	}
	return nil
}

// stageFor returns the highest stage unlocked by the given idle time.
func stageFor(idle time.Duration) int {
	stage := 0
	for i, after := range stageAfter {
		if idle >= after {
			stage = i + 1
		}
	}
	return stage
}

// Sweep walks the engagement snapshot once and delivers every newly
// unlocked stage. Each stage is sent at most once per countdown: the
// stage counter only moves forward, and any activity resets it together
// with the countdown.
func (t *Tracker) Sweep(ctx context.Context) error {
	users, err := t.store.EngagementSnapshot()
	if err != nil {
		return fmt.Errorf("failed to load engagement snapshot: %w", err)
	}

	now := t.now()
	for _, u := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if u.FunnelDone {
			continue
		}
		if blocked, err := t.store.IsBlocked(u.UserID); err != nil {
			t.logger.Warn("blocked check failed", zap.Int64("user_id", u.UserID), zap.Error(err))
			continue
		} else if blocked {
			continue
		}

		needed := stageFor(now.Sub(u.LastActivityAt))
		if needed <= u.Stage {
			continue
		}

		if err := t.sender.SendStage(ctx, u.UserID, needed); err != nil {
			t.logger.Warn("stage delivery failed",
				zap.Int64("user_id", u.UserID),
				zap.Int("stage", needed),
				zap.Error(err))
			continue
		}
		if err := t.store.SetStage(u.UserID, needed); err != nil {
			t.logger.Error("failed to record stage",
				zap.Int64("user_id", u.UserID),
				zap.Int("stage", needed),
				zap.Error(err))
			continue
		}
		if needed == FinalStage {
			if err := t.store.MarkFunnelDone(u.UserID); err != nil {
				t.logger.Error("failed to complete funnel",
					zap.Int64("user_id", u.UserID),
					zap.Error(err))
			}
		}
		t.logger.Info("funnel stage delivered",
			zap.Int64("user_id", u.UserID),
			zap.Int("stage", needed))
	}
	return nil
}
