package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lethehq/lethe/pkg/types"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteRunProducesThreeSnapshots(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir, 0)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := []*types.Record{
		{ID: "m1", Topic: "family", Tags: []string{"support-thread", "weekly"}, Weight: 0.5, Trust: 0.9, UpdatedAt: now, Text: "call with the mentor"},
	}
	after := []*types.Record{
		{ID: "m1", Topic: "family", Tags: []string{"support-thread", "weekly"}, Weight: 0.7, Trust: 0.9, UpdatedAt: now, Shielded: true, Pinned: true, Text: "call with the mentor"},
	}
	audit := []types.AuditEntry{
		{Timestamp: now, RuleID: "boost", RecordID: "m1", Action: types.ActionReinforce, WeightBefore: 0.5, WeightAfter: 0.7, Outcome: types.OutcomeApplied},
	}

	files, err := exporter.WriteRun(before, after, audit)
	require.NoError(t, err)

	beforeRows := readCSV(t, files.Before)
	require.Len(t, beforeRows, 2)
	assert.Equal(t, []string{"id", "topic", "tags", "weight", "trust", "updated_at", "text"}, beforeRows[0])
	assert.Equal(t, "m1", beforeRows[1][0])
	assert.Equal(t, "support-thread;weekly", beforeRows[1][2])
	assert.Equal(t, "0.5000", beforeRows[1][3])

	afterRows := readCSV(t, files.After)
	require.Len(t, afterRows, 2)
	assert.Equal(t, "flags", afterRows[0][6])
	assert.Equal(t, "shielded|pinned", afterRows[1][6])
	assert.Equal(t, "0.7000", afterRows[1][3])

	auditRows := readCSV(t, files.Audit)
	require.Len(t, auditRows, 2)
	assert.Equal(t, "boost", auditRows[1][1])
	assert.Equal(t, string(types.OutcomeApplied), auditRows[1][6])
}

func TestWriteRecordsTruncatesLongText(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir, 0)
	require.NoError(t, err)

	long := strings.Repeat("memory ", 40)
	path := filepath.Join(dir, "records.csv")
	require.NoError(t, exporter.WriteRecords(path, []*types.Record{
		{ID: "m1", Text: long, UpdatedAt: time.Now()},
	}, false))

	rows := readCSV(t, path)
	text := rows[1][len(rows[1])-1]
	assert.LessOrEqual(t, len([]rune(text)), 80)
	assert.True(t, strings.HasSuffix(text, "…"))
}

func TestNewExporterCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")
	_, err := NewExporter(dir, 0)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestWriteRunCreatesSeparateRunDirectories(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir, 0)
	require.NoError(t, err)

	first, err := exporter.WriteRun(nil, nil, nil)
	require.NoError(t, err)
	second, err := exporter.WriteRun(nil, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, filepath.Dir(first.Before), filepath.Dir(second.Before))

	runs, err := exporter.listRuns()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRetentionPrunesOldestRuns(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir, 2)
	require.NoError(t, err)

	var files []RunFiles
	for i := 0; i < 4; i++ {
		f, err := exporter.WriteRun(nil, nil, nil)
		require.NoError(t, err)
		files = append(files, f)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := exporter.listRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// The newest two survive, the oldest two are gone.
	_, err = os.Stat(files[3].Before)
	assert.NoError(t, err)
	_, err = os.Stat(files[2].Before)
	assert.NoError(t, err)
	_, err = os.Stat(files[0].Before)
	assert.True(t, os.IsNotExist(err))
}
