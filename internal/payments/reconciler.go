package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/storage"
)

// Webhook is the provider's payment notification. The order token may
// arrive in any of several free-form fields depending on how the
// payment form was configured.
type Webhook struct {
	UserComment   string `json:"user_comment"`
	Comment       string `json:"comment"`
	CustomField   string `json:"custom_field"`
	UTMSource     string `json:"utm_source"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

// OrderToken returns the first field that carries a token, scanning in
// the provider's priority order.
func (w Webhook) OrderToken() string {
	for _, candidate := range []string{w.UserComment, w.Comment, w.CustomField, w.UTMSource} {
		candidate = strings.TrimSpace(candidate)
		if strings.HasPrefix(candidate, tokenPrefix) {
			return candidate
		}
	}
	return ""
}

// Statuses returns the normalized values of both status-carrying
// fields. Providers fill either one depending on the form, sometimes
// both with disagreeing values, so callers must look at each.
func (w Webhook) Statuses() []string {
	var out []string
	for _, s := range []string{w.Status, w.PaymentStatus} {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Outcome classifies what Process did with a webhook.
type Outcome string

const (
	OutcomeGranted   Outcome = "granted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
)

var (
	successStatuses = map[string]bool{"success": true, "paid": true, "completed": true}
	failedStatuses  = map[string]bool{"failed": true, "error": true, "declined": true, "cancelled": true}
)

// firstIn returns the first status present in the set, or "".
func firstIn(statuses []string, set map[string]bool) string {
	for _, s := range statuses {
		if set[s] {
			return s
		}
	}
	return ""
}

// Granter extends a user's paid access.
type Granter interface {
	Grant(userID int64, tariff models.TariffKind, paymentRef string) (*models.Subscription, error)
}

// ReferralEvaluator awards the referrer's bonus once the referred user
// has paid.
type ReferralEvaluator interface {
	Evaluate(ctx context.Context, referredID int64)
}

// Notifier tells the payer and the admins about the outcome. Delivery
// failures are the notifier's problem; reconciliation never depends on
// them.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, userID int64, sub *models.Subscription)
	PaymentFailed(ctx context.Context, userID int64, status string)
	NotifyAdmins(ctx context.Context, text string)
}

// Reconciler turns provider webhooks into subscription grants, exactly
// once per order token.
type Reconciler struct {
	store     storage.Storage
	granter   Granter
	referrals ReferralEvaluator
	notifier  Notifier
	bonusUnit int
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciler(store storage.Storage, granter Granter, referrals ReferralEvaluator, notifier Notifier, bonusUnit int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		granter:   granter,
		referrals: referrals,
		notifier:  notifier,
		bonusUnit: bonusUnit,
		logger:    logger,
		now:       time.Now,
	}
}

// Process handles one webhook. Unknown statuses and missing tokens are
// ignored rather than erroring so the provider does not retry them.
func (r *Reconciler) Process(ctx context.Context, hook Webhook) (Outcome, error) {
	raw := hook.OrderToken()
	if raw == "" {
		r.logger.Info("webhook without order token ignored")
		return OutcomeIgnored, nil
	}

	token, err := ParseToken(raw, r.bonusUnit)
	if err != nil {
		r.logger.Warn("unparseable order token ignored", zap.String("token", raw), zap.Error(err))
		return OutcomeIgnored, nil
	}

	// A success in either status field wins even when the other carries
	// a stale or failed value.
	statuses := hook.Statuses()
	if firstIn(statuses, successStatuses) == "" {
		if status := firstIn(statuses, failedStatuses); status != "" {
			r.logger.Info("payment failed",
				zap.Int64("user_id", token.UserID),
				zap.String("status", status))
			r.notifier.PaymentFailed(ctx, token.UserID, status)
			return OutcomeFailed, nil
		}
		r.logger.Info("webhook with unknown status ignored",
			zap.Int64("user_id", token.UserID),
			zap.Strings("statuses", statuses))
		return OutcomeIgnored, nil
	}

	first, err := r.store.MarkPaymentProcessed(raw, r.now())
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to record payment token: %w", err)
	}
	if !first {
		r.logger.Info("duplicate payment webhook skipped", zap.String("token", raw))
		return OutcomeDuplicate, nil
	}

	sub, err := r.granter.Grant(token.UserID, token.Tariff, raw)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("failed to grant subscription: %w", err)
	}

	if token.Discount > 0 {
		r.debitDiscount(token.UserID, token.Discount)
	}

	r.notifier.PaymentSucceeded(ctx, token.UserID, sub)
	r.notifier.NotifyAdmins(ctx, fmt.Sprintf(
		"Оплата: пользователь %d, тариф %s, доступ до %s",
		token.UserID, token.Tariff, sub.ExpiresAt.Format("02.01.2006")))

	if r.referrals != nil {
		r.referrals.Evaluate(ctx, token.UserID)
	}

	r.logger.Info("payment reconciled",
		zap.Int64("user_id", token.UserID),
		zap.String("tariff", string(token.Tariff)),
		zap.Int("discount", token.Discount))
	return OutcomeGranted, nil
}

// debitDiscount spends the referral balance backing a discounted order.
// A payment that got through with more discount than the user has left
// is still honored; the shortfall is only logged.
func (r *Reconciler) debitDiscount(userID int64, discount int) {
	ok, err := r.store.UseReferralBalance(userID, discount)
	if err != nil {
		r.logger.Error("failed to debit referral balance",
			zap.Int64("user_id", userID),
			zap.Int("discount", discount),
			zap.Error(err))
		return
	}
	if !ok {
		r.logger.Warn("referral balance below applied discount",
			zap.Int64("user_id", userID),
			zap.Int("discount", discount))
	}
}
