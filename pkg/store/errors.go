package store

import (
	"errors"
	"fmt"
)

// Common store errors
var (
	ErrResolution        = errors.New("storage root could not be resolved")
	ErrNotFound          = errors.New("document not found")
	ErrUnreadable        = errors.New("document could not be opened")
	ErrMalformedDocument = errors.New("malformed document")
	ErrEmptyFilename     = errors.New("empty filename")
	ErrUnknownRoot       = errors.New("unknown storage root")
)

// ResolutionError reports a storage root that could not be determined.
type ResolutionError struct {
	Root  Root
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s root: %v", e.Root, e.Cause)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Cause}
}

// LoadError describes a failed load. Kind is one of ErrResolution,
// ErrNotFound, ErrUnreadable or ErrMalformedDocument.
type LoadError struct {
	File  string
	Path  string
	Root  Root
	Kind  error
	Cause error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load %s (%s): %v", e.File, e.Path, e.Cause)
	}
	return fmt.Sprintf("load %s from %s root: %v", e.File, e.Root, e.Cause)
}

func (e *LoadError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// SaveError describes a failed save.
type SaveError struct {
	File  string
	Path  string
	Root  Root
	Cause error
}

func (e *SaveError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("save %s (%s): %v", e.File, e.Path, e.Cause)
	}
	return fmt.Sprintf("save %s to %s root: %v", e.File, e.Root, e.Cause)
}

func (e *SaveError) Unwrap() error {
	return e.Cause
}
