// Package referral runs the invite program: accounts, bonus grants and
// balance export.
package referral

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/storage"
)

var (
	// ErrSelfReferral is returned when a user names themselves as referrer.
	ErrSelfReferral = errors.New("self-referral is not allowed")
	// ErrReferrerUnknown is returned when the named referrer has no account.
	ErrReferrerUnknown = errors.New("referrer is not registered")
	// ErrAlreadyReferred is returned when the user's referrer is already set.
	ErrAlreadyReferred = errors.New("referrer already set")
	// ErrBadEmail is returned for addresses that fail validation.
	ErrBadEmail = errors.New("invalid email address")
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// BalanceReporter pushes a referrer's new balance to the external commerce
// platform.
type BalanceReporter interface {
	PushReferralBalance(ctx context.Context, email string, balance int) error
}

// Service wires the referral rules over the store. The bonus amount is
// fixed per referred paying user, deduplicated by the (referrer,
// referred) pair.
type Service struct {
	store    storage.ReferralStore
	reporter BalanceReporter
	bonus    int
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store storage.ReferralStore, reporter BalanceReporter, bonus int, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		reporter: reporter,
		bonus:    bonus,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsureAccount creates the user's referral account if missing.
func (s *Service) EnsureAccount(userID int64) error {
	acc, err := s.store.GetReferralAccount(userID)
	if err != nil {
		return fmt.Errorf("failed to get referral account: %w", err)
	}
	if acc != nil {
		return nil
	}
	if err := s.store.CreateReferralAccount(models.ReferralAccount{
		UserID:       userID,
		RegisteredAt: s.now(),
	}); err != nil {
		return fmt.Errorf("failed to create referral account: %w", err)
	}
	return nil
}

// Account returns the user's referral profile, creating it on first use.
func (s *Service) Account(userID int64) (*models.ReferralAccount, error) {
	if err := s.EnsureAccount(userID); err != nil {
		return nil, err
	}
	return s.store.GetReferralAccount(userID)
}

// Register binds referrerID as the user's referrer. The first referrer
// wins; later attempts fail with ErrAlreadyReferred.
func (s *Service) Register(userID, referrerID int64) error {
	if userID == referrerID {
		return ErrSelfReferral
	}

	referrer, err := s.store.GetReferralAccount(referrerID)
	if err != nil {
		return fmt.Errorf("failed to get referrer account: %w", err)
	}
	if referrer == nil {
		return ErrReferrerUnknown
	}

	if err := s.EnsureAccount(userID); err != nil {
		return err
	}
	acc, err := s.store.GetReferralAccount(userID)
	if err != nil {
		return fmt.Errorf("failed to get referral account: %w", err)
	}
	if acc.ReferrerID != 0 {
		return ErrAlreadyReferred
	}

	if err := s.store.SetReferrer(userID, referrerID); err != nil {
		return fmt.Errorf("failed to set referrer: %w", err)
	}
	s.logger.Info("referral registered",
		zap.Int64("user_id", userID),
		zap.Int64("referrer_id", referrerID))
	return nil
}

// SetEmail validates and stores the email used for balance export.
func (s *Service) SetEmail(userID int64, email string) error {
	if !emailPattern.MatchString(email) {
		return ErrBadEmail
	}
	if err := s.EnsureAccount(userID); err != nil {
		return err
	}
	if err := s.store.UpdateReferralEmail(userID, email); err != nil {
		return fmt.Errorf("failed to update referral email: %w", err)
	}
	return nil
}

// Evaluate awards the referrer's bonus for a referred user's payment.
// The pair ledger makes repeat payments by the same user a no-op. The
// balance push is best effort: a failed export never blocks the grant.
func (s *Service) Evaluate(ctx context.Context, referredID int64) {
	acc, err := s.store.GetReferralAccount(referredID)
	if err != nil {
		s.logger.Error("failed to load referred account",
			zap.Int64("user_id", referredID), zap.Error(err))
		return
	}
	if acc == nil || acc.ReferrerID == 0 {
		return
	}

	granted, err := s.store.HasReferralBonus(acc.ReferrerID, referredID)
	if err != nil {
		s.logger.Error("failed to check bonus ledger",
			zap.Int64("referrer_id", acc.ReferrerID), zap.Error(err))
		return
	}
	if granted {
		return
	}

	if err := s.store.AddReferralBonus(acc.ReferrerID, referredID, s.bonus, s.now()); err != nil {
		s.logger.Error("failed to grant referral bonus",
			zap.Int64("referrer_id", acc.ReferrerID),
			zap.Int64("referred_id", referredID),
			zap.Error(err))
		return
	}
	s.logger.Info("referral bonus granted",
		zap.Int64("referrer_id", acc.ReferrerID),
		zap.Int64("referred_id", referredID),
		zap.Int("amount", s.bonus))

	referrer, err := s.store.GetReferralAccount(acc.ReferrerID)
	if err != nil || referrer == nil {
		return
	}
	if referrer.Email != "" && s.reporter != nil {
		if err := s.reporter.PushReferralBalance(ctx, referrer.Email, referrer.Balance); err != nil {
			s.logger.Warn("failed to push referral balance",
				zap.Int64("referrer_id", acc.ReferrerID),
				zap.Error(err))
		}
	}
}
