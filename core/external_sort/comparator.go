package externalsort

import (
	"fmt"
	"strconv"
	"strings"

	recordfile "github.com/sushant-115/gojosort/core/record_file"
)

// FieldNo selects the record field one sort orders by.
type FieldNo int

// Sortable fields, numbered as on the command line.
const (
	FieldID      FieldNo = iota // numeric order of Record.ID
	FieldName                   // bytewise order of Record.Name
	FieldSurname                // bytewise order of Record.Surname
	FieldCity                   // bytewise order of Record.City
)

var fieldNames = [...]string{"id", "name", "surname", "city"}

// Valid reports whether f names one of the four record fields.
func (f FieldNo) Valid() bool { return f >= FieldID && f <= FieldCity }

// String returns the lower-case field name, or "field(n)" for invalid values.
func (f FieldNo) String() string {
	if !f.Valid() {
		return "field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// ParseField accepts a field name ("id", "name", "surname", "city") or its number.
func ParseField(s string) (FieldNo, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range fieldNames {
		if s == name {
			return FieldNo(i), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !FieldNo(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidField, s)
	}
	return FieldNo(n), nil
}

// LessOrEqual reports whether a sorts at or before b on field. Ties are not
// broken by any other field. field must be valid.
func LessOrEqual(a, b *recordfile.Record, field FieldNo) bool {
	switch field {
	case FieldID:
		return a.ID <= b.ID
	case FieldName:
		return a.Name <= b.Name
	case FieldSurname:
		return a.Surname <= b.Surname
	case FieldCity:
		return a.City <= b.City
	default:
		panic(fmt.Sprintf("externalsort: invalid field %d", int(field)))
	}
}
