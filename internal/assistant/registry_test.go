package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avetra/funnel-bot/internal/storage"
)

type stubCreator struct {
	next    int
	created int
	err     error
}

func (c *stubCreator) CreateThread(context.Context) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.next++
	c.created++
	return "thread-" + string(rune('a'+c.next-1)), nil
}

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStorage, *stubCreator) {
	t.Helper()
	store := storage.NewMemoryStorage()
	creator := &stubCreator{}
	reg := NewRegistry(store, creator, time.UTC, zap.NewNop())
	reg.now = func() time.Time { return time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC) }
	return reg, store, creator
}

func TestEnsureSameDayIdempotent(t *testing.T) {
	reg, _, creator := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Ensure(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, creator.created)

	second, err := reg.Ensure(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, creator.created)
}

func TestEnsureRotatesNextDay(t *testing.T) {
	reg, _, creator := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Ensure(ctx, 100)
	require.NoError(t, err)

	reg.now = func() time.Time { return time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC) }

	second, err := reg.Ensure(ctx, 100)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, creator.created)
}

func TestEnsureTimezoneBoundary(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	reg := NewRegistry(storage.NewMemoryStorage(), &stubCreator{}, loc, zap.NewNop())

	// 22:30 UTC is already the next day in Moscow.
	reg.now = func() time.Time { return time.Date(2025, 6, 1, 22, 30, 0, 0, time.UTC) }
	assert.Equal(t, "2025-06-02", reg.Today())
}

func TestEnsureKeepsMappingOnCreateFailure(t *testing.T) {
	reg, store, creator := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Ensure(ctx, 100)
	require.NoError(t, err)

	reg.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	creator.err = assert.AnError

	_, err = reg.Ensure(ctx, 100)
	require.Error(t, err)

	// The stale mapping survives for a later retry.
	mapping, err := store.GetThread(100)
	require.NoError(t, err)
	require.NotNil(t, mapping)
	assert.Equal(t, first, mapping.ThreadID)

	creator.err = nil
	rotated, err := reg.Ensure(ctx, 100)
	require.NoError(t, err)
	assert.NotEqual(t, first, rotated)
}

func TestSweepStale(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Ensure(ctx, 100)
	require.NoError(t, err)
	_, err = reg.Ensure(ctx, 200)
	require.NoError(t, err)

	reg.now = func() time.Time { return time.Date(2025, 6, 2, 0, 0, 5, 0, time.UTC) }

	deleted, err := reg.SweepStale()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	mapping, err := store.GetThread(100)
	require.NoError(t, err)
	assert.Nil(t, mapping)

	// Nothing left to delete on the second pass.
	deleted, err = reg.SweepStale()
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
