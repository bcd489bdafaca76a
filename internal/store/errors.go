package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record or blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID is returned when creating a record whose id is taken.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrAlreadyClaimed is returned when updating a record that is already
	// claimed. Claimed records are final.
	ErrAlreadyClaimed = errors.New("item already claimed")
)

// IOError reports a failed blob read or write.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s blob %s: %v", e.Op, e.Name, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
