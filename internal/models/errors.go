package models

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or is not owned by the caller
	ErrNotFound = errors.New("not found")
	// ErrInvalidSymbol is returned for symbols that are empty, too long or not alphanumeric
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrDuplicatePosition is returned when a live position already exists for (portfolio, symbol)
	ErrDuplicatePosition = errors.New("position already exists")
	// ErrDuplicateTransaction is returned when a (source, external_id) pair was already ingested
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	// ErrVersionConflict is returned when a position changed since it was read
	ErrVersionConflict = errors.New("position was modified concurrently")
	// ErrLockTimeout is returned when another writer holds a position for too long
	ErrLockTimeout = errors.New("position is locked by another writer")
)
