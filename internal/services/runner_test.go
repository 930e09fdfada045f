package services_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lethehq/lethe/internal/export"
	"github.com/lethehq/lethe/internal/ruleset"
	"github.com/lethehq/lethe/internal/services"
	"github.com/lethehq/lethe/internal/storage"
	"github.com/lethehq/lethe/internal/storage/sqlite"
	"github.com/lethehq/lethe/pkg/types"
)

const testRules = `
profiles:
  - name: gratitude
    lambda: 0.02
    floor: 0.3

rules:
  - id: drop-untrusted
    action: forget
    filter: {kind: topic, key: gossip}
    trust_below: 0.5
  - id: boost-support
    action: reinforce
    filter: {kind: tag, key: support-thread}
    event: milestone
    amount: 0.2
    cap: 0.8
    cooldown: 6h
`

func newTestRunner(t *testing.T, withExport bool) (*services.Runner, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	set, err := ruleset.Parse([]byte(testRules))
	require.NoError(t, err)

	var exporter *export.Exporter
	if withExport {
		exporter, err = export.NewExporter(t.TempDir(), 0)
		require.NoError(t, err)
	}

	return services.NewRunner(store, set, exporter), store
}

func TestIngestAssignsIDAndDefaults(t *testing.T) {
	runner, _ := newTestRunner(t, false)
	ctx := context.Background()

	rec, err := runner.Ingest(ctx, &types.Record{Text: "first memory"})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, 0.5, rec.Weight)
	assert.Equal(t, 1.0, rec.Trust)

	stored, err := runner.Store().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "first memory", stored.Text)
}

func TestIngestKeepsCallerValues(t *testing.T) {
	runner, _ := newTestRunner(t, false)

	rec, err := runner.Ingest(context.Background(), &types.Record{
		ID: "m1", Text: "note", Weight: 0.9, Trust: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", rec.ID)
	assert.Equal(t, 0.9, rec.Weight)
	assert.Equal(t, 0.4, rec.Trust)
}

func TestIngestRejectsEmptyText(t *testing.T) {
	runner, _ := newTestRunner(t, false)
	_, err := runner.Ingest(context.Background(), &types.Record{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestRunPersistsMutationsAndAudit(t *testing.T) {
	runner, store := newTestRunner(t, false)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := runner.Ingest(ctx, &types.Record{
		ID: "keep", Text: "mentor call", Tags: []string{"support-thread"},
		Weight: 0.5, Trust: 0.9, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = runner.Ingest(ctx, &types.Record{
		ID: "drop", Text: "unverified rumour", Topic: "gossip",
		Weight: 0.8, Trust: 0.2, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	summary, err := runner.Run(ctx, types.Context{Now: now, Event: "milestone"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, 1, summary.Removed)
	assert.Greater(t, summary.AuditEntries, 0)
	assert.Nil(t, summary.Snapshots)

	kept, err := store.Get(ctx, "keep")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, kept.Weight, 1e-9, "reinforcement of 0.2 should persist")

	dropped, err := store.Get(ctx, "drop")
	require.NoError(t, err)
	assert.True(t, dropped.Removed)

	page, err := store.ListAudit(ctx, storage.ListOptions{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, summary.AuditEntries, page.Total)
}

func TestRunTrustOverrideForgetsTrustedRecords(t *testing.T) {
	runner, store := newTestRunner(t, false)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := runner.Ingest(ctx, &types.Record{
		ID: "m1", Text: "overheard claim", Topic: "gossip",
		Weight: 0.6, Trust: 0.9, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	// The record's own trust passes the threshold, the override does not.
	override := 0.1
	_, err = runner.Run(ctx, types.Context{Now: now, Trust: &override})
	require.NoError(t, err)

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.Removed)
}

func TestRunWritesSnapshots(t *testing.T) {
	runner, _ := newTestRunner(t, true)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := runner.Ingest(ctx, &types.Record{
		ID: "m1", Text: "note", Weight: 0.5, Trust: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	summary, err := runner.Run(ctx, types.Context{Now: now})
	require.NoError(t, err)

	require.NotNil(t, summary.Snapshots)
	for _, path := range []string{summary.Snapshots.Before, summary.Snapshots.After, summary.Snapshots.Audit} {
		_, err := os.Stat(path)
		assert.NoError(t, err, "snapshot %s should exist", path)
	}
}

func TestRetrieveRanksStoredRecords(t *testing.T) {
	runner, _ := newTestRunner(t, false)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := runner.Ingest(ctx, &types.Record{
		ID: "a", Text: "mentor call notes", Weight: 0.5, Trust: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = runner.Ingest(ctx, &types.Record{
		ID: "b", Text: "grocery list", Weight: 0.5, Trust: 1, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	results, err := runner.Retrieve(ctx, "mentor", 5, now)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].Record.ID)
}
