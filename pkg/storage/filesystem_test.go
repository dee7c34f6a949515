package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenFetch(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("2026/115.02.11_C_通知單.docx", []byte("doc"))
	require.NoError(t, err)
	assert.Equal(t, "2026/115.02.11_C_通知單.docx", rel)

	data, err := store.Fetch(context.Background(), rel)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), data)

	file, err := store.Open(rel)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = store.Save("2026/115.02.11_C_通知單.docx", []byte("doc v2"))
	require.NoError(t, err)
	data, err = store.Fetch(context.Background(), rel)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc v2"), data)

	entries, err := os.ReadDir(filepath.Dir(store.Path(rel)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = store.Fetch(context.Background(), "missing.docx")
	assert.Error(t, err)
}

func TestLocalStorageRejectsEscapingNames(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.docx", []byte("x"))
	assert.ErrorIs(t, err, ErrOutsideBase)
	_, err = store.Open("2026/../../outside.docx")
	assert.ErrorIs(t, err, ErrOutsideBase)
	assert.Equal(t, "../outside.docx", store.Path("../outside.docx"))

	abs := filepath.Join(t.TempDir(), "template.docx")
	require.NoError(t, os.WriteFile(abs, []byte("tpl"), 0o600))
	data, err := store.Fetch(context.Background(), abs)
	require.NoError(t, err)
	assert.Equal(t, []byte("tpl"), data)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("old.docx", []byte("x"))
	require.NoError(t, err)
	_, err = store.Save("new.docx", []byte("y"))
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.docx"), past, past))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.docx"}, deleted)
}
