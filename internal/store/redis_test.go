package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"alertsync/internal/models"
	"alertsync/internal/store"
)

func newRedisStore(t *testing.T) *store.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s := store.NewRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.Get(ctx, "A1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Upsert(ctx, models.NewMapping("A1", "T1", now)))
	require.NoError(t, s.Upsert(ctx, models.NewMapping("A2", "T2", now)))

	rec, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, "T1", rec.TicketID)
	require.True(t, rec.Active())

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestRedisStoreMarkClosed(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, models.NewMapping("A1", "T1", time.Now().UTC())))
	require.NoError(t, s.MarkClosed(ctx, "A1"))

	rec, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	require.Equal(t, models.MappingClosed, rec.Status)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	// Retained for audit
	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.MarkClosed(ctx, "A1"))
	require.ErrorIs(t, s.MarkClosed(ctx, "missing"), store.ErrNotFound)
}
