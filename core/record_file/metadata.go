package recordfile

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/gojosort/core/storage_engine/common"
)

// Identifier marks page 0 of every record file ("SRT1").
const Identifier uint32 = 0x31545253

// MetadataSize is the encoded size of Metadata at the start of page 0.
const MetadataSize = 16

// Metadata is stored at the start of page 0 of every record file.
// IMPORTANT: All fields must have fixed sizes to keep binary.Read/Write consistent.
type Metadata struct {
	Identifier     uint32
	RecordCount    int32
	PageCount      int32 // data pages + the metadata page
	RecordsPerPage int32
}

// NewMetadata returns the metadata of an empty file with the given page size.
func NewMetadata(pageSize int) Metadata {
	return Metadata{
		Identifier:     Identifier,
		RecordCount:    0,
		PageCount:      1,
		RecordsPerPage: int32(pageSize / RecordSize),
	}
}

// PageCountFor returns ceil(recordCount/recordsPerPage) + 1.
func PageCountFor(recordCount, recordsPerPage int) int {
	if recordsPerPage <= 0 {
		return 1
	}
	return (recordCount+recordsPerPage-1)/recordsPerPage + 1
}

// SetRecordCount updates the record count and derives the page count from it.
func (m *Metadata) SetRecordCount(n int) {
	m.RecordCount = int32(n)
	m.PageCount = int32(PageCountFor(n, int(m.RecordsPerPage)))
}

// DataPages is the number of pages holding records.
func (m Metadata) DataPages() int { return int(m.PageCount) - 1 }

// Validate checks the marker and the count invariants.
func (m Metadata) Validate() error {
	if m.Identifier != Identifier {
		return fmt.Errorf("%w: identifier 0x%x", ErrNotRecordFile, m.Identifier)
	}
	if m.RecordsPerPage <= 0 || m.RecordCount < 0 {
		return fmt.Errorf("%w: %d records, %d per page", ErrCorruptMetadata, m.RecordCount, m.RecordsPerPage)
	}
	if want := PageCountFor(int(m.RecordCount), int(m.RecordsPerPage)); int(m.PageCount) != want {
		return fmt.Errorf("%w: page count %d, expected %d for %d records", ErrCorruptMetadata, m.PageCount, want, m.RecordCount)
	}
	return nil
}

// Encode writes the metadata at the start of dst.
func (m Metadata) Encode(dst []byte) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, m); err != nil {
		return fmt.Errorf("%w: serializing metadata: %v", common.ErrSerialization, err)
	}
	if len(dst) < buf.Len() {
		return fmt.Errorf("%w: metadata needs %d bytes, page has %d", ErrShortBuffer, buf.Len(), len(dst))
	}
	copy(dst, buf.Bytes())
	return nil
}

// DecodeMetadata reads metadata from the start of src and validates it.
func DecodeMetadata(src []byte) (Metadata, error) {
	var m Metadata
	if len(src) < MetadataSize {
		return m, fmt.Errorf("%w: metadata needs %d bytes, got %d", ErrShortBuffer, MetadataSize, len(src))
	}
	if err := binary.Read(bytes.NewReader(src[:MetadataSize]), binary.LittleEndian, &m); err != nil {
		return m, fmt.Errorf("%w: deserializing metadata: %v", common.ErrDeserialization, err)
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}
