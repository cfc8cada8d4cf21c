// Package entitlements grants and checks paid access to the assistant.
package entitlements

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/storage"
)

// SubscriptionDuration is the access window added by every successful payment.
const SubscriptionDuration = 30 * 24 * time.Hour

// Service applies the grant and check rules over the subscription store.
// Users listed in permanent bypass the expiry check entirely.
type Service struct {
	store     storage.SubscriptionStore
	permanent map[int64]bool
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store storage.SubscriptionStore, permanentIDs []int64, logger *zap.Logger) *Service {
	permanent := make(map[int64]bool, len(permanentIDs))
	for _, id := range permanentIDs {
		permanent[id] = true
	}
	return &Service{
		store:     store,
		permanent: permanent,
		logger:    logger,
		now:       time.Now,
	}
}

// IsEntitled reports whether the user may talk to the assistant.
func (s *Service) IsEntitled(userID int64) (bool, error) {
	if s.permanent[userID] {
		return true, nil
	}

	sub, err := s.store.GetSubscription(userID)
	if err != nil {
		return false, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil {
		return false, nil
	}
	return sub.Active && sub.ExpiresAt.After(s.now()), nil
}

// Grant extends the user's access by SubscriptionDuration. When the
// current subscription has time left, the extension stacks on top of it,
// otherwise it counts from now.
func (s *Service) Grant(userID int64, tariff models.TariffKind, paymentRef string) (*models.Subscription, error) {
	now := s.now()

	sub, err := s.store.GetSubscription(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	base := now
	if sub != nil && sub.ExpiresAt.After(now) {
		base = sub.ExpiresAt
	}

	updated := models.Subscription{
		UserID:      userID,
		Tariff:      tariff,
		PaymentDate: now,
		ExpiresAt:   base.Add(SubscriptionDuration),
		Active:      true,
		PaymentRef:  paymentRef,
	}
	if sub != nil {
		updated.BasicCount = sub.BasicCount
		updated.VIPCount = sub.VIPCount
		updated.CourseCount = sub.CourseCount
	}
	switch tariff {
	case models.TariffBasic:
		updated.BasicCount++
	case models.TariffVIP:
		updated.VIPCount++
	case models.TariffCourse:
		updated.CourseCount++
	}

	if err := s.store.PutSubscription(updated); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.logger.Info("subscription granted",
		zap.Int64("user_id", userID),
		zap.String("tariff", string(tariff)),
		zap.Time("expires_at", updated.ExpiresAt))
	return &updated, nil
}

// Status describes the user's current access for display.
func (s *Service) Status(userID int64) (*models.SubscriptionStatus, error) {
	sub, err := s.store.GetSubscription(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil {
		return nil, nil
	}

	now := s.now()
	status := &models.SubscriptionStatus{
		Tariff:    sub.Tariff,
		ExpiresAt: sub.ExpiresAt,
		IsActive:  sub.Active && sub.ExpiresAt.After(now),
		IsExpired: !sub.ExpiresAt.After(now),
	}
	if status.IsActive {
		status.DaysLeft = int(sub.ExpiresAt.Sub(now).Hours() / 24)
	}
	return status, nil
}
