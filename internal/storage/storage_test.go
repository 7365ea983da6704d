package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendAndRecentAudit(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "audit.sqlite"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendAudit(ctx, AuditRecord{
		RequestID:      "r1",
		Endpoint:       "verify",
		PromptLen:      12,
		Accepted:       true,
		AcceptanceRate: 0.9,
		LatencyMs:      42,
		CreatedAt:      now,
	}))
	require.NoError(t, store.AppendAudit(ctx, AuditRecord{
		RequestID:      "r2",
		Endpoint:       "inference/direct",
		PromptLen:      5,
		Accepted:       false,
		AcceptanceRate: 0,
		LatencyMs:      100,
		CreatedAt:      now.Add(time.Second),
	}))

	recs, err := store.RecentAudit(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "r2", recs[0].RequestID) // newest first
	require.Equal(t, "r1", recs[1].RequestID)
	require.Equal(t, 0.9, recs[1].AcceptanceRate)
}

func TestRecentAuditDefaultsLimit(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "audit.sqlite"))
	require.NoError(t, err)
	defer store.Close()

	recs, err := store.RecentAudit(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.sqlite")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
}
