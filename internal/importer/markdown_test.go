package importer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullNote = `---
id: m1
topic: family
tags: [support-thread, weekly]
emotion: gratitude
weight: 0.6
trust: 0.9
pinned: true
pin_priority: 1.5
date: 2026-03-01
---

Called the mentor about the move.
`

func TestParseNoteFullFrontmatter(t *testing.T) {
	record, err := ParseNote([]byte(fullNote), "family/mentor.md")
	require.NoError(t, err)

	assert.Equal(t, "m1", record.ID)
	assert.Equal(t, "family", record.Topic)
	assert.Equal(t, []string{"support-thread", "weekly"}, record.Tags)
	assert.Equal(t, "gratitude", record.Emotion)
	assert.Equal(t, 0.6, record.Weight)
	assert.Equal(t, 0.9, record.Trust)
	assert.True(t, record.Pinned)
	assert.Equal(t, 1.5, record.PinPriority)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), record.CreatedAt)
	assert.Equal(t, "Called the mentor about the move.", record.Text)
}

func TestParseNoteWithoutFrontmatter(t *testing.T) {
	record, err := ParseNote([]byte("Just a plain note.\n"), "work/standup.md")
	require.NoError(t, err)

	assert.Empty(t, record.ID)
	assert.Equal(t, "work", record.Topic, "topic falls back to the directory")
	assert.Equal(t, "Just a plain note.", record.Text)
	assert.Zero(t, record.Weight, "unset weight is left for ingest defaults")
}

func TestParseNoteTopicPrecedence(t *testing.T) {
	note := "---\ntopic: health\n---\nbody\n"
	record, err := ParseNote([]byte(note), "work/note.md")
	require.NoError(t, err)
	assert.Equal(t, "health", record.Topic)
}

func TestParseNoteRejectsEmptyBody(t *testing.T) {
	_, err := ParseNote([]byte("---\ntopic: work\n---\n\n"), "work/empty.md")
	assert.Error(t, err)
}

func TestParseNoteRejectsBadFrontmatter(t *testing.T) {
	_, err := ParseNote([]byte("---\ntags: [unclosed\n---\nbody\n"), "bad.md")
	assert.Error(t, err)
}

func TestParseNoteRejectsBadDate(t *testing.T) {
	_, err := ParseNote([]byte("---\ndate: yesterday\n---\nbody\n"), "bad.md")
	assert.Error(t, err)
}

func TestLoadDirWalksTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "family"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "family", "a.md"), []byte("note a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.markdown"), []byte("note b\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not markdown\n"), 0o644))

	records, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// WalkDir order: b.markdown at root, then family/a.md.
	assert.Equal(t, "note b", records[0].Text)
	assert.Empty(t, records[0].Topic)
	assert.Equal(t, "note a", records[1].Text)
	assert.Equal(t, "family", records[1].Topic)
}

func TestLoadDirSurfacesParseErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.md"), []byte("   \n"), 0o644))

	_, err := LoadDir(dir)
	assert.Error(t, err)
}
