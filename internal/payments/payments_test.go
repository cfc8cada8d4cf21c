package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/storage"
)

func TestParseTokenFull(t *testing.T) {
	token, err := ParseToken("bot_12345_vip_500_1717000000", 500)
	require.NoError(t, err)
	assert.Equal(t, TokenFull, token.Kind)
	assert.Equal(t, int64(12345), token.UserID)
	assert.Equal(t, models.TariffVIP, token.Tariff)
	assert.Equal(t, 500, token.Discount)
	assert.Equal(t, int64(1717000000), token.Timestamp)
}

func TestParseTokenLegacy(t *testing.T) {
	token, err := ParseToken("bot_12345_basic_1717000000", 500)
	require.NoError(t, err)
	assert.Equal(t, TokenLegacy, token.Kind)
	assert.Equal(t, int64(12345), token.UserID)
	assert.Equal(t, models.TariffBasic, token.Tariff)
	assert.Zero(t, token.Discount)
}

func TestParseTokenMinimal(t *testing.T) {
	token, err := ParseToken("bot_777", 500)
	require.NoError(t, err)
	assert.Equal(t, TokenMinimal, token.Kind)
	assert.Equal(t, int64(777), token.UserID)
	assert.Equal(t, models.TariffBasic, token.Tariff)

	// A truncated three-part token keeps its tariff.
	token, err = ParseToken("bot_123_vip", 500)
	require.NoError(t, err)
	assert.Equal(t, TokenMinimal, token.Kind)
	assert.Equal(t, int64(123), token.UserID)
	assert.Equal(t, models.TariffVIP, token.Tariff)
}

func TestParseTokenSalvagesMangledForms(t *testing.T) {
	for raw, tariff := range map[string]models.TariffKind{
		"bot_5_gold":               models.TariffBasic,
		"bot_5_gold_1717000000":    models.TariffBasic,
		"bot_5_vip_oops_badts":     models.TariffVIP,
		"bot_5_basic_500_1_extra":  models.TariffBasic,
		"bot_5_course_abc_1_2_3_4": models.TariffCourse,
	} {
		token, err := ParseToken(raw, 500)
		require.NoError(t, err, raw)
		assert.Equal(t, TokenMinimal, token.Kind, raw)
		assert.Equal(t, int64(5), token.UserID, raw)
		assert.Equal(t, tariff, token.Tariff, raw)
		assert.Zero(t, token.Discount, raw)
	}
}

func TestParseTokenInvalidDiscountZeroed(t *testing.T) {
	for _, raw := range []string{
		"bot_1_basic_-500_1717000000",
		"bot_1_basic_123_1717000000",
		"bot_1_basic_abc_1717000000",
	} {
		token, err := ParseToken(raw, 500)
		require.NoError(t, err, raw)
		assert.Zero(t, token.Discount, raw)
	}

	token, err := ParseToken("bot_1_basic_1000_1717000000", 500)
	require.NoError(t, err)
	assert.Equal(t, 1000, token.Discount)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"order-99",
		"bot",
		"bot_",
		"bot_abc_basic_1717000000",
	} {
		_, err := ParseToken(raw, 500)
		assert.Error(t, err, raw)
	}
}

func TestEncodeTokenRoundTrip(t *testing.T) {
	raw := EncodeToken(42, models.TariffCourse, 1500, 1717000000)
	token, err := ParseToken(raw, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(42), token.UserID)
	assert.Equal(t, models.TariffCourse, token.Tariff)
	assert.Equal(t, 1500, token.Discount)
}

func TestOrderTokenFieldPriority(t *testing.T) {
	hook := Webhook{
		Comment:     "bot_2_basic_1",
		CustomField: "bot_3_basic_1",
	}
	assert.Equal(t, "bot_2_basic_1", hook.OrderToken())

	hook.UserComment = "bot_1_basic_1"
	assert.Equal(t, "bot_1_basic_1", hook.OrderToken())

	assert.Equal(t, "bot_4_basic_1", Webhook{UTMSource: "bot_4_basic_1"}.OrderToken())
	assert.Empty(t, Webhook{UserComment: "спасибо"}.OrderToken())
}

type stubGranter struct {
	grants []int64
	sub    models.Subscription
}

func (g *stubGranter) Grant(userID int64, tariff models.TariffKind, paymentRef string) (*models.Subscription, error) {
	g.grants = append(g.grants, userID)
	sub := g.sub
	sub.UserID = userID
	sub.Tariff = tariff
	sub.PaymentRef = paymentRef
	return &sub, nil
}

type stubEvaluator struct{ evaluated []int64 }

func (e *stubEvaluator) Evaluate(_ context.Context, referredID int64) {
	e.evaluated = append(e.evaluated, referredID)
}

type stubNotifier struct {
	succeeded []int64
	failed    []int64
	admin     []string
}

func (n *stubNotifier) PaymentSucceeded(_ context.Context, userID int64, _ *models.Subscription) {
	n.succeeded = append(n.succeeded, userID)
}

func (n *stubNotifier) PaymentFailed(_ context.Context, userID int64, _ string) {
	n.failed = append(n.failed, userID)
}

func (n *stubNotifier) NotifyAdmins(_ context.Context, text string) {
	n.admin = append(n.admin, text)
}

func newTestReconciler(t *testing.T) (*Reconciler, *stubGranter, *stubEvaluator, *stubNotifier) {
	t.Helper()
	granter := &stubGranter{sub: models.Subscription{
		Active:    true,
		ExpiresAt: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}}
	evaluator := &stubEvaluator{}
	notifier := &stubNotifier{}
	r := NewReconciler(storage.NewMemoryStorage(), granter, evaluator, notifier, 500, zap.NewNop())
	return r, granter, evaluator, notifier
}

func TestProcessGrantsOnce(t *testing.T) {
	r, granter, evaluator, notifier := newTestReconciler(t)

	hook := Webhook{UserComment: "bot_100_basic_0_1717000000", Status: "success"}

	outcome, err := r.Process(context.Background(), hook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGranted, outcome)
	assert.Equal(t, []int64{100}, granter.grants)
	assert.Equal(t, []int64{100}, evaluator.evaluated)
	assert.Equal(t, []int64{100}, notifier.succeeded)
	assert.Len(t, notifier.admin, 1)

	// Provider retries are absorbed by the token ledger.
	outcome, err = r.Process(context.Background(), hook)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, []int64{100}, granter.grants)
	assert.Equal(t, []int64{100}, evaluator.evaluated)
}

func TestProcessFailedStatus(t *testing.T) {
	r, granter, _, notifier := newTestReconciler(t)

	outcome, err := r.Process(context.Background(), Webhook{
		UserComment:   "bot_100_basic_0_1717000000",
		PaymentStatus: "declined",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, granter.grants)
	assert.Equal(t, []int64{100}, notifier.failed)
}

func TestProcessUnknownStatusIgnored(t *testing.T) {
	r, granter, _, _ := newTestReconciler(t)

	outcome, err := r.Process(context.Background(), Webhook{
		UserComment: "bot_100_basic_0_1717000000",
		Status:      "pending",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, granter.grants)
}

func TestProcessMissingTokenIgnored(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)

	outcome, err := r.Process(context.Background(), Webhook{Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

func TestProcessPaymentStatusWinsOverStatus(t *testing.T) {
	r, granter, _, _ := newTestReconciler(t)

	outcome, err := r.Process(context.Background(), Webhook{
		UserComment:   "bot_100_basic_0_1717000000",
		Status:        "failed",
		PaymentStatus: "PAID",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGranted, outcome)
	assert.Equal(t, []int64{100}, granter.grants)
}

func TestProcessSuccessInEitherField(t *testing.T) {
	// A stale value in one field must not shadow a success in the other.
	r, granter, _, _ := newTestReconciler(t)

	outcome, err := r.Process(context.Background(), Webhook{
		UserComment:   "bot_100_basic_0_1717000000",
		Status:        "success",
		PaymentStatus: "pending",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGranted, outcome)
	assert.Equal(t, []int64{100}, granter.grants)

	outcome, err = r.Process(context.Background(), Webhook{
		UserComment:   "bot_200_basic_0_1717000001",
		Status:        "pending",
		PaymentStatus: "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGranted, outcome)
	assert.Equal(t, []int64{100, 200}, granter.grants)
}

func TestProcessFailedInEitherField(t *testing.T) {
	r, granter, _, notifier := newTestReconciler(t)

	outcome, err := r.Process(context.Background(), Webhook{
		UserComment: "bot_100_basic_0_1717000000",
		Status:      "declined",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, granter.grants)
	assert.Equal(t, []int64{100}, notifier.failed)
}
