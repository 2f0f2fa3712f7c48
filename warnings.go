// This package decodes the read-only FAT24 on-disk filesystem used by
// Topfield TF5000 PVR hard disks.
package fat24

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrorClass distinguishes the taxonomy of failures spec'd for this
// decoder. Only IO, Format, and NotFound are ever returned from an
// exported call; Fatal conditions are programmer errors and are raised
// through log.Panicf instead (see byteswap.go, fat.go).
type ErrorClass int

const (
	// ClassIO indicates the underlying BlockSource failed a read.
	ClassIO ErrorClass = iota

	// ClassFormat indicates the on-disk structures don't match what this
	// decoder understands (bad magic, mismatched superblocks, FAT
	// integrity failure, unrecognized directory-entry type).
	ClassFormat

	// ClassNotFound indicates a path component could not be resolved.
	ClassNotFound
)

// String returns a descriptive label for the class.
func (ec ErrorClass) String() string {
	switch ec {
	case ClassIO:
		return "IO"
	case ClassFormat:
		return "Format"
	case ClassNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// DecodeError carries a class alongside the underlying failure so callers
// can distinguish "disk read failed" from "this isn't a FAT24 disk" from
// "no such file," per spec.md §7.
type DecodeError struct {
	Class   ErrorClass
	Message string
	Cause   error
}

// Error satisfies the error interface.
func (de *DecodeError) Error() string {
	if de.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", de.Class, de.Message, de.Cause)
	}

	return fmt.Sprintf("%s: %s", de.Class, de.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (de *DecodeError) Unwrap() error {
	return de.Cause
}

func ioErrorf(cause error, format string, args ...interface{}) error {
	return &DecodeError{Class: ClassIO, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func formatErrorf(format string, args ...interface{}) error {
	return &DecodeError{Class: ClassFormat, Message: fmt.Sprintf(format, args...)}
}

func notFoundErrorf(format string, args ...interface{}) error {
	return &DecodeError{Class: ClassNotFound, Message: fmt.Sprintf(format, args...)}
}

// Warnings accumulates the non-fatal diagnostics spec.md §7 calls out:
// a superblock/derived blocks-per-cluster mismatch, or a walked chain
// length that disagrees with a directory entry's stated cluster count.
// Unlike the original's single "last error wins" global buffer, every
// warning raised during a call is kept.
type Warnings struct {
	err *multierror.Error
}

// Add appends a warning. A nil Warnings is not valid; always start from
// the zero value.
func (w *Warnings) Add(format string, args ...interface{}) {
	w.err = multierror.Append(w.err, fmt.Errorf(format, args...))
}

// Len returns the number of warnings raised so far.
func (w *Warnings) Len() int {
	if w.err == nil {
		return 0
	}

	return len(w.err.Errors)
}

// List returns the accumulated warnings in the order they were raised.
func (w *Warnings) List() []error {
	if w.err == nil {
		return nil
	}

	return w.err.Errors
}

// String renders all warnings, one per line, for diagnostic output.
func (w *Warnings) String() string {
	if w.err == nil {
		return ""
	}

	return w.err.Error()
}
