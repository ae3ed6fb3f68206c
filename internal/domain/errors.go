package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrLockLost means a conditional write lost to a concurrent writer.
	ErrLockLost = errors.New("conditional write lost")
)
