package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrimsAndDeduplicates(t *testing.T) {
	names, err := Parse([]byte("teachers:\n  - \" 王小明 \"\n  - 李大華\n  - \"\"\n  - 王小明\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"王小明", "李大華"}, names)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("teacher:\n  - A\n"))
	assert.Error(t, err)
}

func TestParseEmptyDocument(t *testing.T) {
	names, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLoad(t *testing.T) {
	names, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, names)

	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("teachers: [B, A]\n"), 0o600))
	names, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, names)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStaticNames(t *testing.T) {
	names, err := Static{"B", "A"}.Names(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, names)
}
