package dvid

import (
	"errors"
	"fmt"
)

// ErrSizeLimit is returned when a volume request spans more voxels than the
// protocol ceiling for a single transfer.  It is detected before any I/O.
var ErrSizeLimit = errors.New("requested voxels exceed the per-request ceiling")

// ErrNotFound signals a lookup that must return a value found nothing.
// Absence that is an expected outcome (exists queries, coarse bodies) is
// reported as data, not with this error.
var ErrNotFound = errors.New("not found")

// ShapeError reports a buffer whose length disagrees with its declared
// extents and voxel width, on either encode or decode.
type ShapeError struct {
	Expected int64
	Actual   int64
}

func (e ShapeError) Error() string {
	return fmt.Sprintf("buffer of %d bytes disagrees with declared shape needing %d bytes",
		e.Actual, e.Expected)
}

// AlignmentError reports a write whose offset or extents are not aligned to
// the store's block grid.
type AlignmentError struct {
	Reason string
}

func (e AlignmentError) Error() string {
	return "write not block-aligned: " + e.Reason
}

// CompressionError reports a payload that failed to decompress, distinct
// from a transport failure.
type CompressionError struct {
	Err error
}

func (e CompressionError) Error() string {
	return fmt.Sprintf("payload failed to decompress: %v", e.Err)
}

func (e CompressionError) Unwrap() error {
	return e.Err
}

// StructuralError reports a request that violated a structural precondition
// of the store, e.g. posting edges whose endpoint vertices do not exist.
// The whole batch fails; nothing is partially applied.
type StructuralError struct {
	Reason string
}

func (e StructuralError) Error() string {
	return "structural precondition failed: " + e.Reason
}
