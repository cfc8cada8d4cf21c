package entitlements

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/models"
	"github.com/avetra/funnel-bot/internal/storage"
)

func newTestService(t *testing.T, permanent []int64) (*Service, *storage.MemoryStorage, time.Time) {
	t.Helper()
	store := storage.NewMemoryStorage()
	svc := NewService(store, permanent, zap.NewNop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, store, now
}

func TestGrantNewSubscription(t *testing.T) {
	svc, _, now := newTestService(t, nil)

	sub, err := svc.Grant(100, models.TariffBasic, "ref-1")
	require.NoError(t, err)

	assert.Equal(t, now.Add(SubscriptionDuration), sub.ExpiresAt)
	assert.Equal(t, 1, sub.BasicCount)
	assert.True(t, sub.Active)

	ok, err := svc.IsEntitled(100)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGrantStacksOnActiveSubscription(t *testing.T) {
	svc, store, now := newTestService(t, nil)

	existing := now.Add(10 * 24 * time.Hour)
	require.NoError(t, store.PutSubscription(models.Subscription{
		UserID:     100,
		Tariff:     models.TariffBasic,
		ExpiresAt:  existing,
		Active:     true,
		BasicCount: 1,
	}))

	sub, err := svc.Grant(100, models.TariffBasic, "ref-2")
	require.NoError(t, err)

	assert.Equal(t, existing.Add(SubscriptionDuration), sub.ExpiresAt)
	assert.Equal(t, 2, sub.BasicCount)
}

func TestGrantAfterExpiryCountsFromNow(t *testing.T) {
	svc, store, now := newTestService(t, nil)

	require.NoError(t, store.PutSubscription(models.Subscription{
		UserID:    100,
		Tariff:    models.TariffVIP,
		ExpiresAt: now.Add(-48 * time.Hour),
		Active:    true,
		VIPCount:  1,
	}))

	sub, err := svc.Grant(100, models.TariffVIP, "ref-3")
	require.NoError(t, err)

	assert.Equal(t, now.Add(SubscriptionDuration), sub.ExpiresAt)
	assert.Equal(t, 2, sub.VIPCount)
}

func TestGrantPreservesOtherTariffCounters(t *testing.T) {
	svc, store, now := newTestService(t, nil)

	require.NoError(t, store.PutSubscription(models.Subscription{
		UserID:     100,
		Tariff:     models.TariffBasic,
		ExpiresAt:  now.Add(5 * 24 * time.Hour),
		Active:     true,
		BasicCount: 2,
	}))

	sub, err := svc.Grant(100, models.TariffCourse, "ref-4")
	require.NoError(t, err)

	assert.Equal(t, 2, sub.BasicCount)
	assert.Equal(t, 1, sub.CourseCount)
	assert.Equal(t, models.TariffCourse, sub.Tariff)
}

func TestIsEntitledPermanentBypass(t *testing.T) {
	svc, _, _ := newTestService(t, []int64{42})

	ok, err := svc.IsEntitled(42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsEntitled(43)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsEntitledExpired(t *testing.T) {
	svc, store, now := newTestService(t, nil)

	require.NoError(t, store.PutSubscription(models.Subscription{
		UserID:    100,
		Tariff:    models.TariffBasic,
		ExpiresAt: now.Add(-time.Hour),
		Active:    true,
	}))

	ok, err := svc.IsEntitled(100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	svc, store, now := newTestService(t, nil)

	status, err := svc.Status(100)
	require.NoError(t, err)
	assert.Nil(t, status)

	require.NoError(t, store.PutSubscription(models.Subscription{
		UserID:    100,
		Tariff:    models.TariffVIP,
		ExpiresAt: now.Add(72*time.Hour + 30*time.Minute),
		Active:    true,
	}))

	status, err = svc.Status(100)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.IsActive)
	assert.False(t, status.IsExpired)
	assert.Equal(t, 3, status.DaysLeft)
}
