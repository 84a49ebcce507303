package filestore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveReadDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	filename, path, err := store.Save([]byte("payload"), "report.pdf")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(filename, ".pdf"))
	assert.True(t, store.Exists(path))

	data, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, store.Delete(path))
	assert.False(t, store.Exists(path))
}

func TestSave_UniqueFilenames(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	a, _, err := store.Save([]byte("one"), "doc.txt")
	require.NoError(t, err)
	b, _, err := store.Save([]byte("two"), "doc.txt")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestRead_Missing(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read("/nonexistent/file")
	assert.Error(t, err)
}
