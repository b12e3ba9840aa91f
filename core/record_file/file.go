package recordfile

import (
	"context"
	"fmt"
	"io"

	bufferpool "github.com/sushant-115/gojosort/core/storage_engine/buffer_pool"
	"github.com/sushant-115/gojosort/core/storage_engine/common"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const metadataPageID pagemanager.PageID = 0

// File is a handle to an open record file.
type File struct {
	id   pagemanager.FileID
	path string
}

func (f *File) ID() pagemanager.FileID { return f.id }
func (f *File) Path() string           { return f.path }

// Manager creates, opens and appends to record files through a buffer pool.
type Manager struct {
	bpm    *bufferpool.BufferPoolManager
	logger *zap.Logger
}

// NewManager returns a Manager on top of bpm. The pool's page size must fit
// the metadata block and at least one record.
func NewManager(bpm *bufferpool.BufferPoolManager, logger *zap.Logger) (*Manager, error) {
	if bpm.PageSize() < RecordSize || bpm.PageSize() < MetadataSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPageTooSmall, bpm.PageSize())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{bpm: bpm, logger: logger.Named("record_file")}, nil
}

// BufferPool returns the pool all page access goes through.
func (m *Manager) BufferPool() *bufferpool.BufferPoolManager { return m.bpm }

// RecordsPerPage is the record capacity of one data page.
func (m *Manager) RecordsPerPage() int { return m.bpm.PageSize() / RecordSize }

// CreateFile creates an empty record file: one metadata page, no records.
func (m *Manager) CreateFile(path string) (err error) {
	if err := m.bpm.CreateFile(path); err != nil {
		return err
	}
	fid, err := m.bpm.OpenFile(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, m.bpm.CloseFile(fid)) }()

	page, err := m.bpm.NewPage(fid)
	if err != nil {
		return err
	}
	encErr := NewMetadata(m.bpm.PageSize()).Encode(page.GetData())
	if err := m.bpm.UnpinPage(fid, page.GetPageID(), true); err != nil {
		return multierr.Append(encErr, err)
	}
	if encErr != nil {
		return encErr
	}
	m.logger.Debug("Created record file", zap.String("path", path))
	return nil
}

// OpenFile opens a record file and checks its identifier.
func (m *Manager) OpenFile(path string) (*File, error) {
	fid, err := m.bpm.OpenFile(path)
	if err != nil {
		return nil, err
	}
	f := &File{id: fid, path: path}
	if _, err := m.Metadata(f); err != nil {
		closeErr := m.bpm.CloseFile(fid)
		m.logger.Debug("Rejected file", zap.String("path", path), zap.Error(err))
		return nil, multierr.Append(fmt.Errorf("opening %s: %w", path, err), closeErr)
	}
	return f, nil
}

// CloseFile writes back the file's cached pages and closes it.
func (m *Manager) CloseFile(f *File) error {
	return m.bpm.CloseFile(f.id)
}

// Metadata reads and validates page 0 of the file.
func (m *Manager) Metadata(f *File) (Metadata, error) {
	count, err := m.bpm.PageCount(f.id)
	if err != nil {
		return Metadata{}, err
	}
	if count == 0 {
		return Metadata{}, fmt.Errorf("%w: %s has no metadata page", ErrNotRecordFile, f.path)
	}
	page, err := m.bpm.FetchPage(f.id, metadataPageID)
	if err != nil {
		return Metadata{}, err
	}
	md, decErr := DecodeMetadata(page.GetData())
	if err := m.bpm.UnpinPage(f.id, metadataPageID, false); err != nil {
		return Metadata{}, multierr.Append(decErr, err)
	}
	return md, decErr
}

// WriteMetadata overwrites page 0 of the file with md.
func (m *Manager) WriteMetadata(f *File, md Metadata) error {
	page, err := m.bpm.FetchPage(f.id, metadataPageID)
	if err != nil {
		return err
	}
	encErr := md.Encode(page.GetData())
	return multierr.Append(encErr, m.bpm.UnpinPage(f.id, metadataPageID, encErr == nil))
}

// InsertEntry appends rec after the last record, allocating a new data page
// when the last one is full.
func (m *Manager) InsertEntry(f *File, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	md, err := m.Metadata(f)
	if err != nil {
		return err
	}

	rpp := int(md.RecordsPerPage)
	slot := int(md.RecordCount) % rpp
	var page *pagemanager.Page
	if slot == 0 {
		page, err = m.bpm.NewPage(f.id)
	} else {
		page, err = m.bpm.FetchPage(f.id, pagemanager.PageID(md.PageCount-1))
	}
	if err != nil {
		return err
	}
	encErr := rec.Encode(page.GetData()[slot*RecordSize:])
	if err := m.bpm.UnpinPage(f.id, page.GetPageID(), encErr == nil); err != nil {
		return multierr.Append(encErr, err)
	}
	if encErr != nil {
		return encErr
	}

	md.SetRecordCount(int(md.RecordCount) + 1)
	return m.WriteMetadata(f, md)
}

// ScanEntries calls fn for every record in file order, pinning one data page at a time.
func (m *Manager) ScanEntries(f *File, fn func(i int, rec Record) error) error {
	md, err := m.Metadata(f)
	if err != nil {
		return err
	}
	rpp := int(md.RecordsPerPage)
	for p := 0; p < md.DataPages(); p++ {
		pageID := pagemanager.PageID(p + 1)
		page, err := m.bpm.FetchPage(f.id, pageID)
		if err != nil {
			return err
		}
		first := p * rpp
		last := min(first+rpp, int(md.RecordCount))
		var scanErr error
		for i := first; i < last && scanErr == nil; i++ {
			var rec Record
			rec, scanErr = DecodeRecord(page.GetData()[(i-first)*RecordSize:])
			if scanErr == nil {
				scanErr = fn(i, rec)
			}
		}
		if err := m.bpm.UnpinPage(f.id, pageID, false); err != nil {
			return multierr.Append(scanErr, err)
		}
		if scanErr != nil {
			return scanErr
		}
	}
	return nil
}

// ReadAll returns every record of the file in order. An empty file yields an
// empty, non-nil slice.
func (m *Manager) ReadAll(f *File) ([]Record, error) {
	md, err := m.Metadata(f)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, md.RecordCount)
	err = m.ScanEntries(f, func(_ int, rec Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// PrintAllEntries writes one line per record to w.
func (m *Manager) PrintAllEntries(f *File, w io.Writer) error {
	return m.ScanEntries(f, func(_ int, rec Record) error {
		_, err := fmt.Fprintln(w, rec.String())
		return err
	})
}

// CopyFile creates dst and copies every page of the record file src into it
// byte for byte. throttle may be nil.
func (m *Manager) CopyFile(ctx context.Context, src, dst string, throttle *common.Throttle) (err error) {
	in, err := m.OpenFile(src)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, m.CloseFile(in)) }()

	if err := m.CreateFile(dst); err != nil {
		return err
	}
	out, err := m.OpenFile(dst)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, m.CloseFile(out)) }()

	pageCount, err := m.bpm.PageCount(in.id)
	if err != nil {
		return err
	}
	for i := 0; i < pageCount; i++ {
		if err := m.copyPage(ctx, in, out, pagemanager.PageID(i), throttle); err != nil {
			return fmt.Errorf("copying page %d of %s: %w", i, src, err)
		}
	}
	m.logger.Debug("Copied record file", zap.String("src", src), zap.String("dst", dst), zap.Int("pages", pageCount))
	return m.bpm.FlushFile(out.id)
}

func (m *Manager) copyPage(ctx context.Context, in, out *File, pageID pagemanager.PageID, throttle *common.Throttle) error {
	if err := throttle.WaitN(ctx, m.bpm.PageSize()); err != nil {
		return err
	}
	srcPage, err := m.bpm.FetchPage(in.id, pageID)
	if err != nil {
		return err
	}
	var dstPage *pagemanager.Page
	if pageID == metadataPageID {
		dstPage, err = m.bpm.FetchPage(out.id, metadataPageID)
	} else {
		dstPage, err = m.bpm.NewPage(out.id)
	}
	if err != nil {
		return multierr.Append(err, m.bpm.UnpinPage(in.id, pageID, false))
	}
	copy(dstPage.GetData(), srcPage.GetData())
	return multierr.Combine(
		m.bpm.UnpinPage(in.id, pageID, false),
		m.bpm.UnpinPage(out.id, dstPage.GetPageID(), true),
	)
}
