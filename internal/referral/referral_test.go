package referral

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/storage"
)

type stubReporter struct {
	pushes []pushedBalance
	err    error
}

type pushedBalance struct {
	email   string
	balance int
}

func (r *stubReporter) PushReferralBalance(_ context.Context, email string, balance int) error {
	if r.err != nil {
		return r.err
	}
	r.pushes = append(r.pushes, pushedBalance{email, balance})
	return nil
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStorage, *stubReporter) {
	t.Helper()
	store := storage.NewMemoryStorage()
	reporter := &stubReporter{}
	return NewService(store, reporter, 500, zap.NewNop()), store, reporter
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.EnsureAccount(1))
	require.NoError(t, svc.Register(2, 1))

	acc, err := svc.Account(2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.ReferrerID)
}

func TestRegisterRejectsSelf(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.EnsureAccount(1))
	assert.ErrorIs(t, svc.Register(1, 1), ErrSelfReferral)
}

func TestRegisterRejectsUnknownReferrer(t *testing.T) {
	svc, _, _ := newTestService(t)

	assert.ErrorIs(t, svc.Register(2, 99), ErrReferrerUnknown)
}

func TestRegisterFirstReferrerWins(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.EnsureAccount(1))
	require.NoError(t, svc.EnsureAccount(3))
	require.NoError(t, svc.Register(2, 1))

	assert.ErrorIs(t, svc.Register(2, 3), ErrAlreadyReferred)

	acc, err := svc.Account(2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acc.ReferrerID)
}

func TestSetEmail(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.NoError(t, svc.SetEmail(1, "user@example.com"))

	acc, err := svc.Account(1)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", acc.Email)

	for _, bad := range []string{"", "user", "user@", "@example.com", "user example.com"} {
		assert.ErrorIs(t, svc.SetEmail(1, bad), ErrBadEmail, bad)
	}
}

func TestEvaluateGrantsOncePerPair(t *testing.T) {
	svc, _, reporter := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAccount(1))
	require.NoError(t, svc.SetEmail(1, "ref@example.com"))
	require.NoError(t, svc.Register(2, 1))

	svc.Evaluate(ctx, 2)

	acc, err := svc.Account(1)
	require.NoError(t, err)
	assert.Equal(t, 500, acc.Balance)
	require.Len(t, reporter.pushes, 1)
	assert.Equal(t, pushedBalance{"ref@example.com", 500}, reporter.pushes[0])

	// A renewal by the same referred user grants nothing new.
	svc.Evaluate(ctx, 2)
	acc, err = svc.Account(1)
	require.NoError(t, err)
	assert.Equal(t, 500, acc.Balance)
	assert.Len(t, reporter.pushes, 1)

	// A second referred user does.
	require.NoError(t, svc.Register(3, 1))
	svc.Evaluate(ctx, 3)
	acc, err = svc.Account(1)
	require.NoError(t, err)
	assert.Equal(t, 1000, acc.Balance)
}

func TestEvaluateWithoutReferrerIsNoop(t *testing.T) {
	svc, _, reporter := newTestService(t)

	require.NoError(t, svc.EnsureAccount(2))
	svc.Evaluate(context.Background(), 2)
	svc.Evaluate(context.Background(), 42)

	assert.Empty(t, reporter.pushes)
}

func TestEvaluateSurvivesReporterFailure(t *testing.T) {
	svc, _, reporter := newTestService(t)
	reporter.err = assert.AnError

	require.NoError(t, svc.EnsureAccount(1))
	require.NoError(t, svc.SetEmail(1, "ref@example.com"))
	require.NoError(t, svc.Register(2, 1))

	svc.Evaluate(context.Background(), 2)

	acc, err := svc.Account(1)
	require.NoError(t, err)
	assert.Equal(t, 500, acc.Balance)
}
