package storage

import "errors"

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict indicates the document changed since it was read.
var ErrVersionConflict = errors.New("version conflict")
