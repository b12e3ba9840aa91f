package common

import "errors"

// --- Error Definitions ---

var (
	ErrPageNotFound    = errors.New("page not found in buffer pool")
	ErrBufferPoolFull  = errors.New("buffer pool is full and no pages can be evicted")
	ErrPagePinned      = errors.New("page is pinned and cannot be evicted")
	ErrIO              = errors.New("i/o error")
	ErrFileExists      = errors.New("file already exists")
	ErrFileNotFound    = errors.New("file not found")
	ErrFileNotOpen     = errors.New("file is not open in buffer pool")
	ErrPageOutOfRange  = errors.New("page id beyond end of file")
	ErrInvalidPageSize = errors.New("page size must be positive")
	ErrInvalidPoolSize = errors.New("buffer pool size must be positive")
	ErrInvalidPageData = errors.New("invalid page data")
	ErrSerialization   = errors.New("error during serialization")
	ErrDeserialization = errors.New("error during deserialization")
	ErrRateLimiterWait = errors.New("rate limiter wait failed")
)
