package externalsort

import (
	"context"
	"fmt"

	recordfile "github.com/sushant-115/gojosort/core/record_file"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const mergeOutSlot = 0

// mergeStream is one sorted input of a merge. Its current page stays pinned
// in slot for as long as the stream is live.
type mergeStream struct {
	file   *recordfile.File
	md     recordfile.Metadata
	slot   int
	cursor int // records consumed so far
	head   recordfile.Record
}

func (ms *mergeStream) position() (pagemanager.PageID, int) {
	rpp := int(ms.md.RecordsPerPage)
	return pagemanager.PageID(ms.cursor/rpp + 1), ms.cursor % rpp
}

// merger merges sorted inputs into one output file.
type merger struct {
	s     *Sorter
	slots *slots
	field FieldNo
	live  []*mergeStream
}

// merge writes the records of inputs, in sorted order, into a new record file
// at outPath. len(inputs) must be at most slots-1: slot 0 holds the current
// output page and slots 1..len(inputs) each hold one input's current page.
func (s *Sorter) merge(outPath string, inputs []run, sl *slots, field FieldNo) (result run, err error) {
	if len(inputs) > sl.Len()-1 {
		return run{}, fmt.Errorf("%w: %d inputs, %d slots", ErrTooManyInputs, len(inputs), sl.Len())
	}

	if err := s.files.CreateFile(outPath); err != nil {
		return run{}, err
	}
	out, err := s.files.OpenFile(outPath)
	if err != nil {
		return run{}, err
	}
	m := &merger{s: s, slots: sl, field: field}
	defer func() {
		err = multierr.Combine(err, sl.ReleaseAll(), m.closeLive(), s.files.CloseFile(out))
	}()

	for i, in := range inputs {
		if err := m.open(in.path, i+1); err != nil {
			return run{}, err
		}
	}

	written, err := m.drain(out)
	if err != nil {
		return run{}, fmt.Errorf("merging into %s: %w", outPath, err)
	}
	s.logger.Debug("Merged batch", zap.String("output", outPath), zap.Int("inputs", len(inputs)), zap.Int("records", written))
	return run{path: outPath, records: written}, nil
}

// open adds a live stream for the file at path using slot. Empty inputs are
// closed right away and never become live.
func (m *merger) open(path string, slot int) error {
	f, err := m.s.files.OpenFile(path)
	if err != nil {
		return err
	}
	md, err := m.s.files.Metadata(f)
	if err != nil {
		return multierr.Append(err, m.s.files.CloseFile(f))
	}
	if md.RecordCount == 0 {
		return m.s.files.CloseFile(f)
	}
	ms := &mergeStream{file: f, md: md, slot: slot}
	m.live = append(m.live, ms)
	if err := m.slots.Pin(slot, f.ID(), 1); err != nil {
		return err
	}
	return m.loadHead(ms)
}

func (m *merger) loadHead(ms *mergeStream) error {
	_, offset := ms.position()
	head, err := m.slots.ReadRecord(ms.slot, offset)
	if err != nil {
		return err
	}
	ms.head = head
	return nil
}

// smallest returns the index of the live stream with the minimum head. On a
// tie the later stream wins, since each candidate that is <= the current
// minimum replaces it.
func (m *merger) smallest() int {
	minIdx := 0
	for i := 1; i < len(m.live); i++ {
		if LessOrEqual(&m.live[i].head, &m.live[minIdx].head, m.field) {
			minIdx = i
		}
	}
	return minIdx
}

// drain moves every record of the live streams into out and finalizes its
// metadata. It returns the number of records written.
func (m *merger) drain(out *recordfile.File) (int, error) {
	outMD, err := m.s.files.Metadata(out)
	if err != nil {
		return 0, err
	}
	rpp := int(outMD.RecordsPerPage)

	written := 0
	for len(m.live) > 0 {
		idx := m.smallest()
		ms := m.live[idx]

		if written%rpp == 0 {
			if written != 0 {
				if err := m.slots.Unpin(mergeOutSlot); err != nil {
					return written, err
				}
			}
			if err := m.slots.Allocate(mergeOutSlot, out.ID()); err != nil {
				return written, err
			}
		}
		_, srcOffset := ms.position()
		if err := m.slots.CopyRecord(mergeOutSlot, written%rpp, ms.slot, srcOffset); err != nil {
			return written, err
		}
		written++

		if err := m.advance(idx); err != nil {
			return written, err
		}
	}

	if written > 0 {
		if err := m.slots.MarkDirty(mergeOutSlot); err != nil {
			return written, err
		}
		if err := m.slots.Unpin(mergeOutSlot); err != nil {
			return written, err
		}
	}
	outMD.SetRecordCount(written)
	return written, m.s.files.WriteMetadata(out, outMD)
}

// advance consumes the head of live stream idx. An exhausted stream is closed
// and the last live stream is moved into its position.
func (m *merger) advance(idx int) error {
	ms := m.live[idx]
	ms.cursor++

	if ms.cursor == int(ms.md.RecordCount) {
		if err := m.slots.Unpin(ms.slot); err != nil {
			return err
		}
		last := len(m.live) - 1
		m.live[idx] = m.live[last]
		m.live[last] = nil
		m.live = m.live[:last]
		return m.s.files.CloseFile(ms.file)
	}

	pageID, offset := ms.position()
	if offset == 0 {
		if err := m.slots.Unpin(ms.slot); err != nil {
			return err
		}
		if err := m.slots.Pin(ms.slot, ms.file.ID(), pageID); err != nil {
			return err
		}
	}
	return m.loadHead(ms)
}

// closeLive closes the files of streams still live after a failure.
func (m *merger) closeLive() error {
	var errs error
	for _, ms := range m.live {
		errs = multierr.Append(errs, m.s.files.CloseFile(ms.file))
	}
	m.live = nil
	return errs
}

// mergeRound merges runs in batches of at most fanIn files and deletes the
// consumed inputs. It returns the round's outputs in batch order.
func (s *Sorter) mergeRound(ctx context.Context, round int, runs []run, fanIn int, area *scratchArea, sl *slots, field FieldNo) ([]run, error) {
	_, span := s.tracer.Start(ctx, "externalsort.merge_round")
	defer span.End()

	var next []run
	for start := 0; start < len(runs); start += fanIn {
		end := min(start+fanIn, len(runs))
		batch := runs[start:end]
		merged, err := s.merge(area.runPath(round, len(next)), batch, sl, field)
		if err != nil {
			return nil, fmt.Errorf("round %d, batch %d: %w", round, len(next), err)
		}
		for _, in := range batch {
			if err := area.remove(in.path); err != nil {
				return nil, err
			}
		}
		next = append(next, merged)
	}
	s.logger.Debug("Merge round finished", zap.Int("round", round), zap.Int("inputs", len(runs)), zap.Int("outputs", len(next)))
	return next, nil
}
