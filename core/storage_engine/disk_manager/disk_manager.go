package diskmanager

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/sushant-115/gojosort/core/storage_engine/common"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
)

// --- DiskManager ---

// DiskManager views one OS file as a dense array of fixed-size pages.
type DiskManager struct {
	filePath string
	file     *os.File
	pageSize int
	numPages uint32 // file size / page size
	mu       sync.Mutex
}

func NewDiskManager(filePath string, pageSize int) (*DiskManager, error) {
	if pageSize <= 0 {
		return nil, common.ErrInvalidPageSize
	}
	return &DiskManager{
		filePath: filePath,
		pageSize: pageSize,
	}, nil
}

// OpenOrCreateFile opens the backing file. With create set the file must not
// exist yet; without it the file must exist and hold a whole number of pages.
func (dm *DiskManager) OpenOrCreateFile(create bool) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.file != nil {
		return fmt.Errorf("file %s already open", dm.filePath)
	}

	if create {
		file, err := os.OpenFile(dm.filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%w: %s", common.ErrFileExists, dm.filePath)
			}
			return fmt.Errorf("%w: creating file %s: %v", common.ErrIO, dm.filePath, err)
		}
		dm.file = file
		dm.numPages = 0
		return nil
	}

	file, err := os.OpenFile(dm.filePath, os.O_RDWR, 0666)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrFileNotFound, dm.filePath)
		}
		return fmt.Errorf("%w: opening file %s: %v", common.ErrIO, dm.filePath, err)
	}
	fi, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: getting file info: %v", common.ErrIO, err)
	}
	if fi.Size()%int64(dm.pageSize) != 0 {
		_ = file.Close()
		return fmt.Errorf("%w: size %d of %s is not a multiple of page size %d",
			common.ErrInvalidPageData, fi.Size(), dm.filePath, dm.pageSize)
	}
	dm.file = file
	dm.numPages = uint32(fi.Size() / int64(dm.pageSize))
	return nil
}

// ReadPage reads a page's data from disk into the provided pageData buffer.
func (dm *DiskManager) ReadPage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return fmt.Errorf("%w: %s", common.ErrFileNotOpen, dm.filePath)
	}
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("page data buffer size (%d) != disk manager page size (%d)", len(pageData), dm.pageSize)
	}
	if uint32(pageID) >= dm.numPages {
		return fmt.Errorf("%w: page %d of %s (%d pages)", common.ErrPageOutOfRange, pageID, dm.filePath, dm.numPages)
	}
	offset := int64(pageID) * int64(dm.pageSize)
	bytesRead, err := dm.file.ReadAt(pageData, offset)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: EOF reading page %d at offset %d", common.ErrIO, pageID, offset)
		}
		return fmt.Errorf("%w: reading page %d at offset %d: %v", common.ErrIO, pageID, offset, err)
	}
	if bytesRead != dm.pageSize {
		return fmt.Errorf("%w: short read for page %d, expected %d, got %d", common.ErrIO, pageID, dm.pageSize, bytesRead)
	}
	return nil
}

// WritePage writes pageData to disk at the specified pageID's location.
func (dm *DiskManager) WritePage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return fmt.Errorf("%w: %s", common.ErrFileNotOpen, dm.filePath)
	}
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("page data buffer size (%d) != disk manager page size (%d)", len(pageData), dm.pageSize)
	}
	if uint32(pageID) >= dm.numPages {
		return fmt.Errorf("%w: page %d of %s (%d pages)", common.ErrPageOutOfRange, pageID, dm.filePath, dm.numPages)
	}
	offset := int64(pageID) * int64(dm.pageSize)
	if _, err := dm.file.WriteAt(pageData, offset); err != nil {
		return fmt.Errorf("%w: writing page %d at offset %d: %v", common.ErrIO, pageID, offset, err)
	}
	// Syncing is left to Sync and Close.
	return nil
}

// AllocatePage extends the file by one zeroed page and returns its ID.
func (dm *DiskManager) AllocatePage() (pagemanager.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: %s", common.ErrFileNotOpen, dm.filePath)
	}
	newPageID := pagemanager.PageID(dm.numPages)
	emptyPageData := make([]byte, dm.pageSize)
	offset := int64(newPageID) * int64(dm.pageSize)
	if _, err := dm.file.WriteAt(emptyPageData, offset); err != nil {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: extending file for new page %d: %v", common.ErrIO, newPageID, err)
	}
	dm.numPages++
	return newPageID, nil
}

// NumPages returns the number of pages currently in the file.
func (dm *DiskManager) NumPages() uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.numPages
}

func (dm *DiskManager) GetPageSize() int    { return dm.pageSize }
func (dm *DiskManager) GetFilePath() string { return dm.filePath }

// Sync flushes all buffered data to disk.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file != nil {
		if err := dm.file.Sync(); err != nil {
			return fmt.Errorf("%w: syncing %s: %v", common.ErrIO, dm.filePath, err)
		}
	}
	return nil
}

// Close syncs and closes the underlying file handle.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	syncErr := dm.file.Sync()
	closeErr := dm.file.Close()
	dm.file = nil
	if syncErr != nil {
		return fmt.Errorf("%w: syncing %s on close: %v", common.ErrIO, dm.filePath, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing %s: %v", common.ErrIO, dm.filePath, closeErr)
	}
	return nil
}
