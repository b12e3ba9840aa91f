package recordfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Fixed record layout. Strings are NUL padded and always NUL terminated, so a
// field holds at most size-1 bytes.
const (
	NameSize    = 15
	SurnameSize = 20
	CitySize    = 20

	idOffset      = 0
	nameOffset    = idOffset + 4
	surnameOffset = nameOffset + NameSize
	cityOffset    = surnameOffset + SurnameSize

	// RecordSize is the encoded size of one record, trailing pad byte included.
	RecordSize = 60
)

// Record is one fixed-format entry of a record file.
type Record struct {
	ID      int32
	Name    string
	Surname string
	City    string
}

// Validate reports whether every string fits its fixed-size field.
func (r Record) Validate() error {
	if err := checkField("name", r.Name, NameSize); err != nil {
		return err
	}
	if err := checkField("surname", r.Surname, SurnameSize); err != nil {
		return err
	}
	return checkField("city", r.City, CitySize)
}

func checkField(name, value string, size int) error {
	if len(value) > size-1 {
		return fmt.Errorf("%w: %s %q is %d bytes, max %d", ErrFieldTooLong, name, value, len(value), size-1)
	}
	if bytes.IndexByte([]byte(value), 0) >= 0 {
		return fmt.Errorf("%w: %s %q contains a NUL byte", ErrFieldTooLong, name, value)
	}
	return nil
}

// Encode writes the record into dst, which must hold at least RecordSize bytes.
func (r Record) Encode(dst []byte) error {
	if len(dst) < RecordSize {
		return fmt.Errorf("%w: record buffer is %d bytes, need %d", ErrShortBuffer, len(dst), RecordSize)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	buf := dst[:RecordSize]
	clear(buf)
	binary.LittleEndian.PutUint32(buf[idOffset:], uint32(r.ID))
	copy(buf[nameOffset:nameOffset+NameSize], r.Name)
	copy(buf[surnameOffset:surnameOffset+SurnameSize], r.Surname)
	copy(buf[cityOffset:cityOffset+CitySize], r.City)
	return nil
}

// DecodeRecord reads a record from the first RecordSize bytes of src.
func DecodeRecord(src []byte) (Record, error) {
	if len(src) < RecordSize {
		return Record{}, fmt.Errorf("%w: record buffer is %d bytes, need %d", ErrShortBuffer, len(src), RecordSize)
	}
	return Record{
		ID:      int32(binary.LittleEndian.Uint32(src[idOffset:])),
		Name:    cString(src[nameOffset : nameOffset+NameSize]),
		Surname: cString(src[surnameOffset : surnameOffset+SurnameSize]),
		City:    cString(src[cityOffset : cityOffset+CitySize]),
	}, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// String renders the record the way PrintAllEntries lists it.
func (r Record) String() string {
	return fmt.Sprintf("Id: %-5d Name: %-15s Surname: %-20s City: %-20s", r.ID, r.Name, r.Surname, r.City)
}
