package bufferpool

import (
	"container/list" // For LRU
	"fmt"
	"sync"

	"github.com/sushant-115/gojosort/core/storage_engine/common"
	diskmanager "github.com/sushant-115/gojosort/core/storage_engine/disk_manager"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize is the size of every page, the metadata page included.
	DefaultPageSize = 512
	// DefaultPoolSize is the number of frames, and so the maximum number of
	// pages that can be pinned at the same time.
	DefaultPoolSize = 100
)

type pageKey struct {
	fileID pagemanager.FileID
	pageID pagemanager.PageID
}

// BufferPoolManager caches pages of many open files in a fixed set of frames.
// A pinned page stays resident until every pin is released; unpinned frames
// are reused in LRU order and written back first if dirty.
type BufferPoolManager struct {
	poolSize   int
	pageSize   int
	pages      []*pagemanager.Page // Page frames
	pageTable  map[pageKey]int     // (file, page) to frame index
	lruList    *list.List          // frame indices, most recently used at the front
	files      map[pagemanager.FileID]*diskmanager.DiskManager
	nextFileID pagemanager.FileID
	mu         sync.Mutex
	logger     *zap.Logger
}

// NewBufferPoolManager creates a pool of poolSize frames of pageSize bytes.
func NewBufferPoolManager(poolSize, pageSize int, logger *zap.Logger) (*BufferPoolManager, error) {
	if poolSize <= 0 {
		return nil, common.ErrInvalidPoolSize
	}
	if pageSize <= 0 {
		return nil, common.ErrInvalidPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bpm := &BufferPoolManager{
		poolSize:   poolSize,
		pageSize:   pageSize,
		pages:      make([]*pagemanager.Page, poolSize),
		pageTable:  make(map[pageKey]int),
		lruList:    list.New(),
		files:      make(map[pagemanager.FileID]*diskmanager.DiskManager),
		nextFileID: pagemanager.InvalidFileID + 1,
		logger:     logger.Named("buffer_pool"),
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = pagemanager.NewPage(pageSize)
	}
	bpm.logger.Info("BufferPoolManager initialized", zap.Int("poolSize", poolSize), zap.Int("pageSize", pageSize))
	return bpm, nil
}

func (bpm *BufferPoolManager) PageSize() int { return bpm.pageSize }

// MaxPinnedPages is the number of pages that can be pinned simultaneously.
func (bpm *BufferPoolManager) MaxPinnedPages() int { return bpm.poolSize }

// CreateFile creates an empty paged file. It fails if path already exists.
func (bpm *BufferPoolManager) CreateFile(path string) error {
	dm, err := diskmanager.NewDiskManager(path, bpm.pageSize)
	if err != nil {
		return err
	}
	if err := dm.OpenOrCreateFile(true); err != nil {
		return err
	}
	return dm.Close()
}

// OpenFile opens an existing paged file and registers it with the pool.
func (bpm *BufferPoolManager) OpenFile(path string) (pagemanager.FileID, error) {
	dm, err := diskmanager.NewDiskManager(path, bpm.pageSize)
	if err != nil {
		return pagemanager.InvalidFileID, err
	}
	if err := dm.OpenOrCreateFile(false); err != nil {
		return pagemanager.InvalidFileID, err
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	fileID := bpm.nextFileID
	bpm.nextFileID++
	bpm.files[fileID] = dm
	bpm.logger.Debug("Opened file", zap.String("path", path), zap.Uint32("fileID", uint32(fileID)), zap.Uint32("pages", dm.NumPages()))
	return fileID, nil
}

// CloseFile writes back and evicts every cached page of the file, then
// closes it. It fails with ErrPagePinned while any page of the file is pinned.
func (bpm *BufferPoolManager) CloseFile(fileID pagemanager.FileID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	dm, ok := bpm.files[fileID]
	if !ok {
		return fmt.Errorf("%w: file %d", common.ErrFileNotOpen, fileID)
	}
	for key, frameIdx := range bpm.pageTable {
		if key.fileID == fileID && bpm.pages[frameIdx].GetPinCount() > 0 {
			return fmt.Errorf("%w: page %d of %s", common.ErrPagePinned, key.pageID, dm.GetFilePath())
		}
	}
	var errs error
	for key, frameIdx := range bpm.pageTable {
		if key.fileID != fileID {
			continue
		}
		if err := bpm.evictFrameInternal(frameIdx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}
	delete(bpm.files, fileID)
	bpm.logger.Debug("Closed file", zap.String("path", dm.GetFilePath()), zap.Uint32("fileID", uint32(fileID)))
	return dm.Close()
}

// PageCount returns the number of pages in the file, the metadata page included.
func (bpm *BufferPoolManager) PageCount(fileID pagemanager.FileID) (int, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	dm, ok := bpm.files[fileID]
	if !ok {
		return 0, fmt.Errorf("%w: file %d", common.ErrFileNotOpen, fileID)
	}
	return int(dm.NumPages()), nil
}

// FetchPage retrieves a page from the buffer pool. If not present, it reads it from disk.
// It pins the page and moves it to the front of the LRU list.
func (bpm *BufferPoolManager) FetchPage(fileID pagemanager.FileID, pageID pagemanager.PageID) (*pagemanager.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	dm, ok := bpm.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: file %d", common.ErrFileNotOpen, fileID)
	}

	// 1. Check if page is already in the buffer pool
	key := pageKey{fileID: fileID, pageID: pageID}
	if frameIdx, ok := bpm.pageTable[key]; ok {
		page := bpm.pages[frameIdx]
		page.Pin()
		if page.GetLruElement() != nil {
			bpm.lruList.MoveToFront(page.GetLruElement())
		}
		return page, nil
	}

	// 2. Page not in pool, find a victim frame to replace
	frameIdx, err := bpm.getVictimFrameInternal()
	if err != nil {
		return nil, fmt.Errorf("fetching page %d of %s: %w", pageID, dm.GetFilePath(), err)
	}
	if err := bpm.evictFrameInternal(frameIdx); err != nil {
		return nil, err
	}

	// 3. Load new page data from disk
	page := bpm.pages[frameIdx]
	if err := dm.ReadPage(pageID, page.GetData()); err != nil {
		page.Reset()
		return nil, err
	}
	bpm.trackInternal(frameIdx, key, false)
	return page, nil
}

// NewPage appends a zeroed page to the file and returns it pinned and dirty.
func (bpm *BufferPoolManager) NewPage(fileID pagemanager.FileID) (*pagemanager.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	dm, ok := bpm.files[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: file %d", common.ErrFileNotOpen, fileID)
	}

	// Find the frame first so a full pool does not leave an orphan page on disk.
	frameIdx, err := bpm.getVictimFrameInternal()
	if err != nil {
		return nil, fmt.Errorf("allocating page in %s: %w", dm.GetFilePath(), err)
	}
	if err := bpm.evictFrameInternal(frameIdx); err != nil {
		return nil, err
	}

	newPageID, err := dm.AllocatePage()
	if err != nil {
		return nil, err
	}
	bpm.trackInternal(frameIdx, pageKey{fileID: fileID, pageID: newPageID}, true)
	return bpm.pages[frameIdx], nil
}

// UnpinPage decrements the pin count for a page. If isDirty is true, it marks the page as dirty.
func (bpm *BufferPoolManager) UnpinPage(fileID pagemanager.FileID, pageID pagemanager.PageID, isDirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageKey{fileID: fileID, pageID: pageID}]
	if !ok {
		return fmt.Errorf("%w: page %d of file %d not found to unpin", common.ErrPageNotFound, pageID, fileID)
	}
	page := bpm.pages[frameIdx]
	if page.GetPinCount() == 0 {
		return fmt.Errorf("cannot unpin page %d of file %d with pin count 0", pageID, fileID)
	}
	page.Unpin()
	if isDirty {
		page.MarkDirty()
	}
	return nil
}

// FlushFile writes back every dirty resident page of one file and syncs it.
func (bpm *BufferPoolManager) FlushFile(fileID pagemanager.FileID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	dm, ok := bpm.files[fileID]
	if !ok {
		return fmt.Errorf("%w: file %d", common.ErrFileNotOpen, fileID)
	}
	var errs error
	for key, frameIdx := range bpm.pageTable {
		if key.fileID == fileID {
			errs = multierr.Append(errs, bpm.flushFrameInternal(frameIdx))
		}
	}
	return multierr.Append(errs, dm.Sync())
}

// FlushAllPages flushes all dirty pages in the buffer pool to disk.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	var errs error
	for i, page := range bpm.pages {
		if page.IsValid() && page.IsDirty() {
			errs = multierr.Append(errs, bpm.flushFrameInternal(i))
		}
	}
	for _, dm := range bpm.files {
		errs = multierr.Append(errs, dm.Sync())
	}
	return errs
}

// Close flushes and closes every open file. Pinned pages are written back
// but their pins are dropped.
func (bpm *BufferPoolManager) Close() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	var errs error
	for i, page := range bpm.pages {
		if page.IsValid() {
			errs = multierr.Append(errs, bpm.evictFrameInternal(i))
		}
	}
	for fileID, dm := range bpm.files {
		errs = multierr.Append(errs, dm.Close())
		delete(bpm.files, fileID)
	}
	return errs
}

// PinnedPages returns the number of frames currently pinned.
func (bpm *BufferPoolManager) PinnedPages() int {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	n := 0
	for _, page := range bpm.pages {
		if page.IsValid() && page.GetPinCount() > 0 {
			n++
		}
	}
	return n
}

// getVictimFrameInternal finds a free frame, or else the least recently used unpinned one.
// This method MUST be called with bpm.mu locked.
func (bpm *BufferPoolManager) getVictimFrameInternal() (int, error) {
	for i, page := range bpm.pages {
		if !page.IsValid() {
			return i, nil
		}
	}
	for e := bpm.lruList.Back(); e != nil; e = e.Prev() {
		frameIdx := e.Value.(int)
		if bpm.pages[frameIdx].GetPinCount() == 0 {
			return frameIdx, nil
		}
	}
	bpm.logger.Error("Buffer pool is full, and all pages are pinned", zap.Int("poolSize", bpm.poolSize))
	return -1, common.ErrBufferPoolFull
}

// evictFrameInternal writes back a dirty frame and detaches it from the page table.
// This method MUST be called with bpm.mu locked.
func (bpm *BufferPoolManager) evictFrameInternal(frameIdx int) error {
	page := bpm.pages[frameIdx]
	if !page.IsValid() {
		return nil
	}
	if err := bpm.flushFrameInternal(frameIdx); err != nil {
		// If flush fails, we cannot reuse this frame safely.
		return fmt.Errorf("failed to flush dirty victim page %d: %w", page.GetPageID(), err)
	}
	delete(bpm.pageTable, pageKey{fileID: page.GetFileID(), pageID: page.GetPageID()})
	if page.GetLruElement() != nil {
		bpm.lruList.Remove(page.GetLruElement())
	}
	page.Reset()
	return nil
}

// This method MUST be called with bpm.mu locked.
func (bpm *BufferPoolManager) flushFrameInternal(frameIdx int) error {
	page := bpm.pages[frameIdx]
	if !page.IsDirty() {
		return nil
	}
	dm, ok := bpm.files[page.GetFileID()]
	if !ok {
		return fmt.Errorf("%w: file %d owning page %d", common.ErrFileNotOpen, page.GetFileID(), page.GetPageID())
	}
	if err := dm.WritePage(page.GetPageID(), page.GetData()); err != nil {
		return err
	}
	page.SetDirty(false)
	return nil
}

// This method MUST be called with bpm.mu locked.
func (bpm *BufferPoolManager) trackInternal(frameIdx int, key pageKey, dirty bool) {
	page := bpm.pages[frameIdx]
	page.SetFileID(key.fileID)
	page.SetPageID(key.pageID)
	page.SetPinCount(1)
	page.SetDirty(dirty)
	bpm.pageTable[key] = frameIdx
	page.SetLruElement(bpm.lruList.PushFront(frameIdx))
}
