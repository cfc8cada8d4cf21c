package assistant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/storage"
)

const dateLayout = "2006-01-02"

// ThreadCreator opens new conversation threads. *Client satisfies it.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// Registry maps users to threads and rotates every thread once per
// calendar day in the reference timezone. A fresh thread is only
// recorded after the provider confirms it, so a failed create leaves
// the old mapping intact for retry.
type Registry struct {
	store   storage.ThreadStore
	creator ThreadCreator
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
}

func NewRegistry(store storage.ThreadStore, creator ThreadCreator, loc *time.Location, logger *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		creator: creator,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// Today returns the current date key in the registry's timezone.
func (r *Registry) Today() string {
	return r.now().In(r.loc).Format(dateLayout)
}

// Ensure returns the user's thread for today, creating or rotating as
// needed. Calling it twice on the same day returns the same thread.
func (r *Registry) Ensure(ctx context.Context, userID int64) (string, error) {
	today := r.Today()

	existing, err := r.store.GetThread(userID)
	if err != nil {
		return "", fmt.Errorf("failed to get thread mapping: %w", err)
	}
	if existing != nil && existing.LastResetDate == today {
		return existing.ThreadID, nil
	}

	threadID, err := r.creator.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}

	if existing != nil {
		r.logger.Info("assistant thread rotated",
			zap.Int64("user_id", userID),
			zap.String("old_thread", existing.ThreadID),
			zap.String("date", today))
	}
	if err := r.store.SaveThread(userID, threadID, today); err != nil {
		return "", fmt.Errorf("failed to save thread mapping: %w", err)
	}
	return threadID, nil
}

// Reset drops the user's mapping so the next message starts clean.
func (r *Registry) Reset(userID int64) error {
	if err := r.store.DeleteThread(userID); err != nil {
		return fmt.Errorf("failed to delete thread mapping: %w", err)
	}
	return nil
}

// SweepStale removes every mapping not created today. Run at midnight;
// safe to run at any time.
func (r *Registry) SweepStale() (int, error) {
	deleted, err := r.store.DeleteThreadsNotOn(r.Today())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale threads: %w", err)
	}
	return deleted, nil
}
