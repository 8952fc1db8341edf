package source

import "errors"

// Sentinel errors for source operations.
var (
	ErrKeyNotFound   = errors.New("dataset not found")
	ErrInvalidKey    = errors.New("invalid dataset key")
	ErrFetchFailed   = errors.New("fetch failed")
	ErrWriteFailed   = errors.New("write failed")
	ErrUnknownSource = errors.New("unknown source type")
	ErrUnsupported   = errors.New("unsupported dataset format")
)
