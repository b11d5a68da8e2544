package models

import "errors"

// Error taxonomy shared by the capture, storage and query layers. Lookup
// misses are not errors; they are reported as absent values. ErrNotFound
// is only returned by mutations that name an id with no Item.
var (
	ErrIO                = errors.New("io error")
	ErrPersist           = errors.New("persist error")
	ErrAssistUnavailable = errors.New("assist unavailable")
	ErrDisposed          = errors.New("disposed")
	ErrInvalidState      = errors.New("invalid state")
	ErrNotFound          = errors.New("not found")
)
