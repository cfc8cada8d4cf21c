package sched

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/storage"
)

// PromoInterval is how often the nudge sweep wakes.
const PromoInterval = 10 * time.Minute

const promoIdleThreshold = time.Hour

// Creative names a promo variant activated from a given calendar date.
// The last cutover at or before today wins.
type Creative struct {
	From time.Time
	Name string
}

// PromoSender delivers the selected promo creative to one user.
type PromoSender interface {
	SendPromo(ctx context.Context, userID int64, creative string) error
}

// PromoSweep sends the one-time promotional nudge to users who have
// been around for over an hour, hold no active subscription and have
// not received it yet.
type PromoSweep struct {
	store     storage.Storage
	sender    PromoSender
	fallback  string
	creatives []Creative
	// resetDates force one re-send of the nudge to everyone; the
	// per-date marker keeps the reset from firing twice.
	resetDates map[string]bool
	loc        *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

func NewPromoSweep(store storage.Storage, sender PromoSender, fallback string, creatives []Creative, resetDates []string, loc *time.Location, logger *zap.Logger) *PromoSweep {
	sorted := make([]Creative, len(creatives))
	copy(sorted, creatives)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From.Before(sorted[j].From) })

	resets := make(map[string]bool, len(resetDates))
	for _, d := range resetDates {
		resets[d] = true
	}
	return &PromoSweep{
		store:      store,
		sender:     sender,
		fallback:   fallback,
		creatives:  sorted,
		resetDates: resets,
		loc:        loc,
		logger:     logger,
		now:        time.Now,
	}
}

// CreativeFor returns the variant active on the given day.
func (p *PromoSweep) CreativeFor(day time.Time) string {
	name := p.fallback
	for _, c := range p.creatives {
		if !day.Before(c.From) {
			name = c.Name
		}
	}
	return name
}

func (p *PromoSweep) Tick(ctx context.Context) error {
	now := p.now().In(p.loc)
	today := now.Format("2006-01-02")

	if p.resetDates[today] {
		if err := p.maybeResetHistory(today, now); err != nil {
			p.logger.Error("promo history reset failed", zap.Error(err))
		}
	}

	candidates, err := p.store.PromoCandidates(now.Add(-promoIdleThreshold), now)
	if err != nil {
		return fmt.Errorf("failed to select promo candidates: %w", err)
	}

	creative := p.CreativeFor(now)
	for _, userID := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if blocked, err := p.store.IsBlocked(userID); err != nil || blocked {
			continue
		}

		if err := p.sender.SendPromo(ctx, userID, creative); err != nil {
			p.logger.Warn("promo send failed",
				zap.Int64("user_id", userID),
				zap.Error(err))
			continue
		}
		if err := p.store.MarkPromoSent(userID, creative, now); err != nil {
			p.logger.Error("failed to mark promo sent",
				zap.Int64("user_id", userID),
				zap.Error(err))
			continue
		}
		p.logger.Info("promo sent",
			zap.Int64("user_id", userID),
			zap.String("creative", creative))
	}
	return nil
}

// maybeResetHistory wipes the sent markers once on a configured reset
// date. The per-date marker row survives restarts, so the wipe cannot
// repeat within the day.
func (p *PromoSweep) maybeResetHistory(today string, now time.Time) error {
	done, err := p.store.PromoResetDoneOn(today)
	if err != nil {
		return fmt.Errorf("failed to check reset marker: %w", err)
	}
	if done {
		return nil
	}

	cleared, err := p.store.ResetPromoHistory()
	if err != nil {
		return fmt.Errorf("failed to reset promo history: %w", err)
	}
	if err := p.store.MarkPromoResetDone(today, now); err != nil {
		return fmt.Errorf("failed to record reset marker: %w", err)
	}
	p.logger.Info("promo history reset",
		zap.String("date", today),
		zap.Int("cleared", cleared))
	return nil
}
