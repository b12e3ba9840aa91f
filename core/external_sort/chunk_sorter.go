package externalsort

import (
	"fmt"

	recordfile "github.com/sushant-115/gojosort/core/record_file"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// positionOf maps a logical record index of a chunk to the slot holding its
// page and its offset inside that page. Slot k holds data page k+1.
func positionOf(i, recordsPerPage int) (slot, offset int) {
	return i / recordsPerPage, i % recordsPerPage
}

// chunkSorter sorts the records of one chunk whose data pages are all pinned
// in slots 0..dataPages-1.
type chunkSorter struct {
	slots          *slots
	field          FieldNo
	recordsPerPage int
}

func (cs *chunkSorter) get(i int) (recordfile.Record, error) {
	slot, offset := positionOf(i, cs.recordsPerPage)
	return cs.slots.ReadRecord(slot, offset)
}

func (cs *chunkSorter) swap(i, j int) error {
	slotI, offsetI := positionOf(i, cs.recordsPerPage)
	slotJ, offsetJ := positionOf(j, cs.recordsPerPage)
	return cs.slots.SwapRecords(slotI, offsetI, slotJ, offsetJ)
}

// quicksort sorts records lo..hi inclusive. The pivot is always the last
// record of the range.
func (cs *chunkSorter) quicksort(lo, hi int) error {
	if lo >= hi {
		return nil
	}
	q, err := cs.partition(lo, hi)
	if err != nil {
		return err
	}
	if err := cs.quicksort(lo, q-1); err != nil {
		return err
	}
	return cs.quicksort(q+1, hi)
}

// partition is Lomuto's scheme. Records equal to the pivot go to the left part.
func (cs *chunkSorter) partition(lo, hi int) (int, error) {
	pivot, err := cs.get(hi)
	if err != nil {
		return 0, err
	}
	i := lo - 1
	for j := lo; j < hi; j++ {
		current, err := cs.get(j)
		if err != nil {
			return 0, err
		}
		if LessOrEqual(&current, &pivot, cs.field) {
			i++
			if err := cs.swap(i, j); err != nil {
				return 0, err
			}
		}
	}
	if err := cs.swap(i+1, hi); err != nil {
		return 0, err
	}
	return i + 1, nil
}

// sortChunk sorts the record file at path in place. All of its data pages are
// pinned once, sorted, and unpinned once.
func (s *Sorter) sortChunk(path string, sl *slots, field FieldNo) (err error) {
	f, err := s.files.OpenFile(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.files.CloseFile(f)) }()

	md, err := s.files.Metadata(f)
	if err != nil {
		return err
	}
	if md.DataPages() > sl.Len() {
		return fmt.Errorf("%w: %s has %d data pages, %d slots", ErrChunkTooLarge, path, md.DataPages(), sl.Len())
	}

	defer func() { err = multierr.Append(err, sl.ReleaseAll()) }()
	for p := 0; p < md.DataPages(); p++ {
		if err := sl.Pin(p, f.ID(), pagemanager.PageID(p+1)); err != nil {
			return err
		}
	}

	cs := &chunkSorter{slots: sl, field: field, recordsPerPage: int(md.RecordsPerPage)}
	if err := cs.quicksort(0, int(md.RecordCount)-1); err != nil {
		return fmt.Errorf("sorting %s: %w", path, err)
	}
	s.logger.Debug("Sorted chunk", zap.String("path", path), zap.Int32("records", md.RecordCount), zap.Int("pages", md.DataPages()))
	return nil
}
