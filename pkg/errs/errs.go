// Package errs provides a small typed-error wrapper used across the
// index core so callers can branch on Code() instead of matching
// error strings.
package errs

import "fmt"

// Code categorizes an error for programmatic handling.
type Code string

const (
	CodeIO           Code = "IO_ERROR"            // page/file read or write failed
	CodeCorrupted    Code = "CORRUPTED"           // checksum mismatch or malformed layout
	CodeNotFound     Code = "NOT_FOUND"           // block, segment or key not found
	CodeInvalidInput Code = "INVALID_INPUT"       // schema/config validation failure
	CodeConflict     Code = "CONFLICT"            // merge or directory conflict
	CodeCancelled    Code = "CANCELLED"           // operation cancelled by host
	CodeInternal     Code = "INTERNAL"            // invariant violation
)

// Error is a chainable, structured error.
type Error struct {
	cause   error
	code    Code
	message string
	details map[string]any
}

func New(code Code, msg string) *Error {
	return &Error{code: code, message: msg}
}

func Wrap(err error, code Code, msg string) *Error {
	return &Error{cause: err, code: code, message: msg}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() Code { return e.code }

func (e *Error) Details() map[string]any { return e.details }

func (e *Error) WithDetail(key string, val any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = val
	return e
}

func (e *Error) WithSegment(id string) *Error { return e.WithDetail("segment_id", id) }

func (e *Error) WithBlock(blk uint32) *Error { return e.WithDetail("block", blk) }

// Is lets errors.Is match on Code via a sentinel constructed with New(code, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// CodeOf extracts the Code from err, or "" if err isn't (or doesn't wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.code
}
