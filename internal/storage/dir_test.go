// internal/storage/dir_test.go - Unit tests for the local directory store
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/valpere/airphoto_tiler/internal"
)

func TestDirStoreWriteCreatesParents(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewDirStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, "051_008/000102_000021.png", []byte("first")))
	require.NoError(t, store.Write(ctx, "051_008/000102_000021.png", []byte("second")))

	data, err := os.ReadFile(filepath.Join(root, "051_008", "000102_000021.png"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestDirStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"b/2.tif", "a/1.tif", "a/1.tif.aux.xml", "c.txt"} {
		require.NoError(t, store.Write(ctx, key, []byte(key)))
	}

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a/1.tif", "a/1.tif.aux.xml", "b/2.tif", "c.txt"}, keys)

	keys, err = store.List(ctx, "a/")
	require.NoError(t, err)
	require.Equal(t, []string{"a/1.tif", "a/1.tif.aux.xml"}, keys)
}

func TestDirStoreListMissingRoot(t *testing.T) {
	store, err := NewDirStore(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)

	_, err = store.List(context.Background(), "")
	require.True(t, internal.HasCode(err, internal.ErrorCodeNotFound))
}

func TestDirStoreOpen(t *testing.T) {
	ctx := context.Background()
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, "img.tif", []byte("0123456789")))

	obj, err := store.Open(ctx, "img.tif")
	require.NoError(t, err)
	defer obj.Close()

	require.EqualValues(t, 10, obj.Size())
	buf := make([]byte, 3)
	_, err = obj.ReadAt(buf, 4)
	require.NoError(t, err)
	require.Equal(t, "456", string(buf))

	_, err = obj.Seek(8, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.Equal(t, "89", string(rest))

	_, err = store.Open(ctx, "nope.tif")
	require.True(t, internal.HasCode(err, internal.ErrorCodeNotFound))
}

func TestDirStoreRasterPath(t *testing.T) {
	root := t.TempDir()
	store, err := NewDirStore(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "2019", "a.tif"), store.RasterPath("2019/a.tif"))
}
