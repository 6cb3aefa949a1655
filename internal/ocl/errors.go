package ocl

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedField   = errors.New("malformed field")
	ErrByteCount        = errors.New("record byte count mismatch")
	ErrBathymetryDesync = errors.New("bathymetry side channel out of step")
)

// RecordError wraps a fatal decode failure with the position of the record
// that caused it. Unexpected end of input surfaces as io.ErrUnexpectedEOF.
type RecordError struct {
	Index  int64
	Offset int64
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d at offset %d: %v", e.Index, e.Offset, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
