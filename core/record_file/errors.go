package recordfile

import "errors"

var (
	ErrNotRecordFile    = errors.New("file is not a sortable record file")
	ErrFieldTooLong     = errors.New("record field does not fit its fixed size")
	ErrShortBuffer      = errors.New("buffer too small")
	ErrPageTooSmall     = errors.New("page size too small for record file layout")
	ErrCorruptMetadata  = errors.New("record file metadata is inconsistent")
	ErrRecordOutOfRange = errors.New("record index out of range")
)
