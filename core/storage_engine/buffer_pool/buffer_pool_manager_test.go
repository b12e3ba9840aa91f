package bufferpool

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojosort/core/storage_engine/common"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
	"go.uber.org/zap/zaptest"
)

const testPageSize = 32

// setupBufferPool creates a pool with one freshly created, opened file.
func setupBufferPool(t *testing.T, poolSize int) (*BufferPoolManager, pagemanager.FileID, string) {
	t.Helper()
	bpm, err := NewBufferPoolManager(poolSize, testPageSize, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bpm.Close() })

	path := filepath.Join(t.TempDir(), "pool.db")
	require.NoError(t, bpm.CreateFile(path))
	fid, err := bpm.OpenFile(path)
	require.NoError(t, err)
	return bpm, fid, path
}

func TestBufferPool_NewPageIsPinnedAndDirty(t *testing.T) {
	bpm, fid, _ := setupBufferPool(t, 4)

	page, err := bpm.NewPage(fid)
	require.NoError(t, err)
	require.EqualValues(t, 0, page.GetPageID())
	require.Equal(t, fid, page.GetFileID())
	require.True(t, page.IsDirty())
	require.Equal(t, uint32(1), page.GetPinCount())

	count, err := bpm.PageCount(fid)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 1, bpm.PinnedPages())

	require.NoError(t, bpm.UnpinPage(fid, page.GetPageID(), true))
	require.Zero(t, bpm.PinnedPages())
}

func TestBufferPool_EvictionWritesBackDirtyPages(t *testing.T) {
	bpm, fid, _ := setupBufferPool(t, 2)

	// Write five pages through a two-frame pool so every page is evicted at least once.
	for i := 0; i < 5; i++ {
		page, err := bpm.NewPage(fid)
		require.NoError(t, err)
		copy(page.GetData(), bytes.Repeat([]byte{byte(i + 1)}, testPageSize))
		require.NoError(t, bpm.UnpinPage(fid, page.GetPageID(), true))
	}

	for i := 0; i < 5; i++ {
		page, err := bpm.FetchPage(fid, pagemanager.PageID(i))
		require.NoError(t, err)
		require.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, testPageSize), page.GetData())
		require.NoError(t, bpm.UnpinPage(fid, page.GetPageID(), false))
	}
}

func TestBufferPool_FlushFileWritesDirtyPagesInPlace(t *testing.T) {
	bpm, fid, path := setupBufferPool(t, 4)

	page, err := bpm.NewPage(fid)
	require.NoError(t, err)
	copy(page.GetData(), bytes.Repeat([]byte{0xAB}, testPageSize))
	require.NoError(t, bpm.UnpinPage(fid, page.GetPageID(), true))

	require.NoError(t, bpm.FlushFile(fid))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0xAB}, testPageSize), raw)

	// The page stays cached and clean after the flush.
	page, err = bpm.FetchPage(fid, 0)
	require.NoError(t, err)
	require.False(t, page.IsDirty())
	require.NoError(t, bpm.UnpinPage(fid, 0, false))

	require.ErrorIs(t, bpm.FlushFile(fid+100), common.ErrFileNotOpen)
}

func TestBufferPool_FlushAllPagesCoversEveryFile(t *testing.T) {
	bpm, fid, path := setupBufferPool(t, 4)
	other := filepath.Join(filepath.Dir(path), "other.db")
	require.NoError(t, bpm.CreateFile(other))
	otherID, err := bpm.OpenFile(other)
	require.NoError(t, err)

	for i, id := range []pagemanager.FileID{fid, otherID} {
		page, err := bpm.NewPage(id)
		require.NoError(t, err)
		copy(page.GetData(), bytes.Repeat([]byte{byte(i + 1)}, testPageSize))
		// A pinned dirty page is written back too.
		if id == fid {
			require.NoError(t, bpm.UnpinPage(id, page.GetPageID(), true))
		}
	}

	require.NoError(t, bpm.FlushAllPages())
	for i, p := range []string{path, other} {
		raw, err := os.ReadFile(p)
		require.NoError(t, err)
		require.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, testPageSize), raw, p)
	}
	require.Equal(t, 1, bpm.PinnedPages())
	require.NoError(t, bpm.UnpinPage(otherID, 0, false))
}

func TestBufferPool_FullWhenAllPinned(t *testing.T) {
	bpm, fid, _ := setupBufferPool(t, 2)

	_, err := bpm.NewPage(fid)
	require.NoError(t, err)
	_, err = bpm.NewPage(fid)
	require.NoError(t, err)

	_, err = bpm.NewPage(fid)
	require.ErrorIs(t, err, common.ErrBufferPoolFull)

	// The failed allocation must not have extended the file.
	count, err := bpm.PageCount(fid)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestBufferPool_FetchHitSharesFrame(t *testing.T) {
	bpm, fid, _ := setupBufferPool(t, 3)

	page, err := bpm.NewPage(fid)
	require.NoError(t, err)
	again, err := bpm.FetchPage(fid, page.GetPageID())
	require.NoError(t, err)
	require.Same(t, page, again)
	require.Equal(t, uint32(2), page.GetPinCount())

	require.NoError(t, bpm.UnpinPage(fid, page.GetPageID(), false))
	require.NoError(t, bpm.UnpinPage(fid, page.GetPageID(), false))
	require.Error(t, bpm.UnpinPage(fid, page.GetPageID(), false))
}

func TestBufferPool_CloseFileRequiresNoPins(t *testing.T) {
	bpm, fid, path := setupBufferPool(t, 3)

	page, err := bpm.NewPage(fid)
	require.NoError(t, err)
	copy(page.GetData(), []byte("persist me"))

	require.ErrorIs(t, bpm.CloseFile(fid), common.ErrPagePinned)
	require.NoError(t, bpm.UnpinPage(fid, page.GetPageID(), true))
	require.NoError(t, bpm.CloseFile(fid))

	_, err = bpm.FetchPage(fid, 0)
	require.ErrorIs(t, err, common.ErrFileNotOpen)

	reopened, err := bpm.OpenFile(path)
	require.NoError(t, err)
	require.NotEqual(t, fid, reopened)
	got, err := bpm.FetchPage(reopened, 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(got.GetData(), []byte("persist me")))
	require.NoError(t, bpm.UnpinPage(reopened, 0, false))
}

func TestBufferPool_FetchBeyondEndFails(t *testing.T) {
	bpm, fid, _ := setupBufferPool(t, 2)

	_, err := bpm.FetchPage(fid, 0)
	require.ErrorIs(t, err, common.ErrPageOutOfRange)
	require.Zero(t, bpm.PinnedPages())
}

func TestBufferPool_InvalidSizes(t *testing.T) {
	_, err := NewBufferPoolManager(0, testPageSize, nil)
	require.ErrorIs(t, err, common.ErrInvalidPoolSize)
	_, err = NewBufferPoolManager(2, 0, nil)
	require.ErrorIs(t, err, common.ErrInvalidPageSize)
}
