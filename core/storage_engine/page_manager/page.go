package pagemanager

import (
	"container/list" // For LRU
)

// --- Page Management ---

// PageID is the index of a page inside one file. Page 0 is the first page of
// the file; the record layer stores its metadata there.
type PageID uint32

// FileID identifies a file opened through the buffer pool.
type FileID uint32

const (
	InvalidPageID PageID = ^PageID(0)
	InvalidFileID FileID = 0
)

// Page represents an in-memory copy of a disk page held in a buffer pool frame.
type Page struct {
	fileID   FileID
	id       PageID
	data     []byte
	pinCount uint32
	isDirty  bool
	// For LRU
	lruElement *list.Element
}

// NewPage creates an empty frame of the given size.
func NewPage(size int) *Page {
	return &Page{
		fileID: InvalidFileID,
		id:     InvalidPageID,
		data:   make([]byte, size),
	}
}

// Reset clears the frame so it can hold another page.
func (p *Page) Reset() {
	p.fileID = InvalidFileID
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	p.lruElement = nil
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) GetLruElement() *list.Element     { return p.lruElement }
func (p *Page) SetLruElement(elem *list.Element) { p.lruElement = elem }
func (p *Page) GetData() []byte                  { return p.data }
func (p *Page) GetPageID() PageID                { return p.id }
func (p *Page) SetPageID(id PageID)              { p.id = id }
func (p *Page) GetFileID() FileID                { return p.fileID }
func (p *Page) SetFileID(id FileID)              { p.fileID = id }
func (p *Page) IsDirty() bool                    { return p.isDirty }
func (p *Page) SetDirty(dirty bool)              { p.isDirty = dirty }
func (p *Page) Pin()                             { p.pinCount++ }
func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}
func (p *Page) GetPinCount() uint32         { return p.pinCount }
func (p *Page) SetPinCount(pinCount uint32) { p.pinCount = pinCount }

// IsValid reports whether the frame currently holds a page.
func (p *Page) IsValid() bool {
	return p.fileID != InvalidFileID && p.id != InvalidPageID
}

// MarkDirty flags the page for write-back before its frame is reused.
func (p *Page) MarkDirty() { p.isDirty = true }
