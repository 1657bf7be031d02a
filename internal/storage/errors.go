package storage

import "errors"

// Common storage errors
var (
	// ErrValueSetNotFound indicates that no value-set is stored under the key
	ErrValueSetNotFound = errors.New("value-set not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidKey indicates that an attribute key cannot be parsed
	ErrInvalidKey = errors.New("invalid attribute key")
)
