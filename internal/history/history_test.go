package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const mask = uint32(12345)
	require.NoError(t, s.Write(ctx, Record{Mask: mask, EventType: "qualify", ActivityID: "act#1"}))

	results, err := s.Query(ctx, []uint32{mask})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Found())
	assert.Equal(t, 1, results[0].Count)
	assert.False(t, results[0].OldestTimestamp.IsZero())
}

func TestStore_QueryBatchPositional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, Record{Mask: 1, EventType: "qualify", ActivityID: "a#1"}))
	require.NoError(t, s.Write(ctx, Record{Mask: 3, EventType: "disqualify", ActivityID: "a#1"}))
	require.NoError(t, s.Write(ctx, Record{Mask: 3, EventType: "disqualify", ActivityID: "a#1"}))

	// One result per input mask, in input order, zero-count included.
	results, err := s.Query(ctx, []uint32{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Count)
	assert.Equal(t, 0, results[1].Count)
	assert.False(t, results[1].Found())
	assert.Equal(t, 2, results[2].Count)
}

func TestStore_TimestampBounds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(ctx, Record{Mask: 7, EventType: "qualify", ActivityID: "a#1", Timestamp: newer}))
	require.NoError(t, s.Write(ctx, Record{Mask: 7, EventType: "qualify", ActivityID: "a#1", Timestamp: older}))

	results, err := s.Query(ctx, []uint32{7})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OldestTimestamp.Equal(older))
	assert.True(t, results[0].NewestTimestamp.Equal(newer))
}

func TestStore_QueryEmptyMaskList(t *testing.T) {
	s := openTestStore(t)
	results, err := s.Query(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
