// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
	"github.com/gorbunovakris4/hse-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "pages")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		_, err := local.New(local.Config{BaseDir: file})
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		path := "pages/object.json"
		data := []byte(`{"url":"https://www.hse.ru"}`)
		uri, err := store.PutObject(context.Background(), path, "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, path), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		content, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, data, content)
	})

	t.Run("Overwrite", func(t *testing.T) {
		path := "pages/again.json"
		_, err := store.PutObject(context.Background(), path, "", bytes.NewReader([]byte("one")))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), path, "", bytes.NewReader([]byte("two")))
		require.NoError(t, err)

		got, err := store.GetObject(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../../etc/passwd", "", bytes.NewReader([]byte("x")))
		assert.ErrorContains(t, err, "path traversal")
	})
}

func TestGetObject(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "pages/missing.json")
	require.ErrorIs(t, err, crawler.ErrObjectNotFound)

	_, err = store.GetObject(context.Background(), "../outside")
	require.ErrorContains(t, err, "path traversal")
}

func TestListObjects(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	ctx := context.Background()
	for _, p := range []string{"pages/b.json", "pages/a.json", "pages/sub/c.json", "web_graph/edges.txt"} {
		_, err := store.PutObject(ctx, p, "", bytes.NewReader([]byte("x")))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "pages", ".tmp-123"), []byte("partial"), 0o600))

	got, err := store.ListObjects(ctx, "pages")
	require.NoError(t, err)
	assert.Equal(t, []string{"pages/a.json", "pages/b.json", "pages/sub/c.json"}, got)

	all, err := store.ListObjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	missing, err := store.ListObjects(ctx, "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, missing)
}
