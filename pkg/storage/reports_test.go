package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStoreSaveOpen(t *testing.T) {
	store, err := NewReportStore(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("run-1", "report.csv", []byte("course\nC100\n"))
	require.NoError(t, err)
	assert.Equal(t, "run-1/report.csv", rel)

	file, err := store.Open(rel)
	require.NoError(t, err)
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, "course\nC100\n", string(body))

	entries, err := os.ReadDir(filepath.Dir(mustLocate(t, store, rel)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = store.Open("run-1/missing.csv")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReportStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewReportStore(t.TempDir())
	require.NoError(t, err)

	for _, rel := range []string{"", "../secret", "run-1/../../secret", "/etc/passwd"} {
		_, err := store.Open(rel)
		assert.ErrorIs(t, err, ErrOutsideRoot, rel)
	}
	_, err = store.Save("..", "report.csv", []byte("x"))
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = store.Save("run-1", "a/b.csv", []byte("x"))
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestReportStorePrune(t *testing.T) {
	dir := t.TempDir()
	store, err := NewReportStore(dir)
	require.NoError(t, err)

	oldRel, err := store.Save("run-old", "report.pdf", []byte("%PDF-"))
	require.NoError(t, err)
	staleRel, err := store.Save("run-mixed", "stale.csv", []byte("a"))
	require.NoError(t, err)
	freshRel, err := store.Save("run-mixed", "fresh.csv", []byte("b"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	for _, rel := range []string{oldRel, staleRel} {
		require.NoError(t, os.Chtimes(mustLocate(t, store, rel), past, past))
	}

	removed, err := store.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-old/report.pdf", "run-mixed/stale.csv"}, removed)

	assert.NoDirExists(t, filepath.Join(dir, "run-old"))
	assert.FileExists(t, mustLocate(t, store, freshRel))
}

func mustLocate(t *testing.T, store *ReportStore, rel string) string {
	t.Helper()
	full, err := store.Locate(rel)
	require.NoError(t, err)
	return full
}
