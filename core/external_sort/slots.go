package externalsort

import (
	"fmt"

	recordfile "github.com/sushant-115/gojosort/core/record_file"
	bufferpool "github.com/sushant-115/gojosort/core/storage_engine/buffer_pool"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
	"go.uber.org/multierr"
)

// slots is the fixed set of page handles one sort works through. Each slot
// is empty or holds exactly one pinned page, so the number of pages the sort
// pins never exceeds the slot count.
type slots struct {
	bpm   *bufferpool.BufferPoolManager
	pages []*pagemanager.Page
	dirty []bool
}

func newSlots(bpm *bufferpool.BufferPoolManager, n int) *slots {
	return &slots{
		bpm:   bpm,
		pages: make([]*pagemanager.Page, n),
		dirty: make([]bool, n),
	}
}

func (s *slots) Len() int { return len(s.pages) }

func (s *slots) checkSlot(slot int) error {
	if slot < 0 || slot >= len(s.pages) {
		return fmt.Errorf("%w: slot %d of %d", ErrSlotOutOfRange, slot, len(s.pages))
	}
	return nil
}

func (s *slots) checkFree(slot int) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if s.pages[slot] != nil {
		return fmt.Errorf("%w: slot %d", ErrSlotInUse, slot)
	}
	return nil
}

// Pin fetches page pageID of fileID into an empty slot.
func (s *slots) Pin(slot int, fileID pagemanager.FileID, pageID pagemanager.PageID) error {
	if err := s.checkFree(slot); err != nil {
		return err
	}
	page, err := s.bpm.FetchPage(fileID, pageID)
	if err != nil {
		return err
	}
	s.pages[slot] = page
	s.dirty[slot] = false
	return nil
}

// Allocate appends a new page to fileID and holds it in an empty slot.
func (s *slots) Allocate(slot int, fileID pagemanager.FileID) error {
	if err := s.checkFree(slot); err != nil {
		return err
	}
	page, err := s.bpm.NewPage(fileID)
	if err != nil {
		return err
	}
	s.pages[slot] = page
	s.dirty[slot] = true
	return nil
}

func (s *slots) page(slot int) (*pagemanager.Page, error) {
	if err := s.checkSlot(slot); err != nil {
		return nil, err
	}
	if s.pages[slot] == nil {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotEmpty, slot)
	}
	return s.pages[slot], nil
}

// Data returns the whole page held in slot.
func (s *slots) Data(slot int) ([]byte, error) {
	page, err := s.page(slot)
	if err != nil {
		return nil, err
	}
	return page.GetData(), nil
}

// MarkDirty records that the page in slot must be written back on unpin.
func (s *slots) MarkDirty(slot int) error {
	if _, err := s.page(slot); err != nil {
		return err
	}
	s.dirty[slot] = true
	return nil
}

// Unpin releases the page held in slot and empties the slot.
func (s *slots) Unpin(slot int) error {
	page, err := s.page(slot)
	if err != nil {
		return err
	}
	s.pages[slot] = nil
	return s.bpm.UnpinPage(page.GetFileID(), page.GetPageID(), s.dirty[slot])
}

// ReleaseAll unpins every held page. Used on error paths and at the end of a sort.
func (s *slots) ReleaseAll() error {
	var errs error
	for i := range s.pages {
		if s.pages[i] != nil {
			errs = multierr.Append(errs, s.Unpin(i))
		}
	}
	return errs
}

// Held returns the number of slots holding a page.
func (s *slots) Held() int {
	n := 0
	for _, p := range s.pages {
		if p != nil {
			n++
		}
	}
	return n
}

// recordBytes is the checked (slot, offset) -> record view.
func (s *slots) recordBytes(slot, offset int) ([]byte, error) {
	data, err := s.Data(slot)
	if err != nil {
		return nil, err
	}
	start := offset * recordfile.RecordSize
	if offset < 0 || start+recordfile.RecordSize > len(data) {
		return nil, fmt.Errorf("%w: offset %d in slot %d", ErrOffsetOutOfRange, offset, slot)
	}
	return data[start : start+recordfile.RecordSize], nil
}

// ReadRecord decodes the record at offset of the page in slot.
func (s *slots) ReadRecord(slot, offset int) (recordfile.Record, error) {
	b, err := s.recordBytes(slot, offset)
	if err != nil {
		return recordfile.Record{}, err
	}
	return recordfile.DecodeRecord(b)
}

// CopyRecord copies raw record bytes between two slot positions and marks the
// destination page dirty.
func (s *slots) CopyRecord(dstSlot, dstOffset, srcSlot, srcOffset int) error {
	src, err := s.recordBytes(srcSlot, srcOffset)
	if err != nil {
		return err
	}
	dst, err := s.recordBytes(dstSlot, dstOffset)
	if err != nil {
		return err
	}
	copy(dst, src)
	s.dirty[dstSlot] = true
	return nil
}

// SwapRecords exchanges two records in place and marks both pages dirty.
func (s *slots) SwapRecords(slotA, offsetA, slotB, offsetB int) error {
	a, err := s.recordBytes(slotA, offsetA)
	if err != nil {
		return err
	}
	b, err := s.recordBytes(slotB, offsetB)
	if err != nil {
		return err
	}
	var tmp [recordfile.RecordSize]byte
	copy(tmp[:], a)
	copy(a, b)
	copy(b, tmp[:])
	s.dirty[slotA] = true
	s.dirty[slotB] = true
	return nil
}
