package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique constraint (id or email) was violated.
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrCorruptEntry indicates a cached value could not be decrypted or decoded.
	ErrCorruptEntry = errors.New("repository: corrupt cache entry")
)
