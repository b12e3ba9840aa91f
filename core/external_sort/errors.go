package externalsort

import "errors"

var (
	ErrInvalidBufferBudget = errors.New("buffer budget out of range")
	ErrInvalidField        = errors.New("sort field out of range")
	ErrSlotOutOfRange      = errors.New("buffer slot out of range")
	ErrSlotEmpty           = errors.New("buffer slot holds no page")
	ErrSlotInUse           = errors.New("buffer slot already holds a page")
	ErrOffsetOutOfRange    = errors.New("record offset outside page")
	ErrChunkTooLarge       = errors.New("chunk does not fit in buffer slots")
	ErrTooManyInputs       = errors.New("merge fan-in exceeds buffer slots")
)
