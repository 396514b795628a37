package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyQueued      = errors.New("already queued")
	ErrAlreadyDownloaded  = errors.New("already downloaded")
	ErrNotFound           = errors.New("not found")
	ErrInvalidPermutation = errors.New("invalid permutation")
	ErrFetch              = errors.New("fetch failed")
	ErrPersistence        = errors.New("persistence failed")
	ErrValidation         = errors.New("validation failed")
	ErrInvalidState       = errors.New("invalid worker state")
)

// FetchError is returned by fetchers when a transfer fails for a reason other
// than cancellation.
type FetchError struct {
	ContentID ContentID
	Op        string
	Err       error
}

func NewFetchError(id ContentID, op string, err error) *FetchError {
	return &FetchError{ContentID: id, Op: op, Err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.ContentID, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
