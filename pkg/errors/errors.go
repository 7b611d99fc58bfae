// Package errors provides common domain error types for the sqr CLI.
//
// This package defines sentinel errors for the load/validate/synthesize
// failure modes that can be used across all packages. Using typed errors
// enables consistent error handling patterns with errors.Is() checks.
package errors

import (
	"errors"
	"fmt"
)

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrFormat indicates a transaction log whose top-level structure is
	// not a HAR container (missing the "log" key).
	ErrFormat = errors.New("unrecognized transaction log format")

	// ErrParse indicates malformed encoding in a transaction log.
	ErrParse = errors.New("transaction log parse error")

	// ErrValidation indicates a chunk sequence that violates the
	// zero-based first index invariant.
	ErrValidation = errors.New("chunk sequence validation error")

	// ErrNoPatterns indicates a template that yielded no usable
	// audio/speaker patterns.
	ErrNoPatterns = errors.New("no audio-speaker patterns in template")
)

// IsFormat reports whether any error in err's chain is ErrFormat.
func IsFormat(err error) bool {
	return errors.Is(err, ErrFormat)
}

// IsParse reports whether any error in err's chain is ErrParse.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNoPatterns reports whether any error in err's chain is ErrNoPatterns.
func IsNoPatterns(err error) bool {
	return errors.Is(err, ErrNoPatterns)
}

// ParseError carries position context for a malformed transaction log.
type ParseError struct {
	// Offset is the byte offset of the failure in the input, when known.
	Offset int64

	// Line and Column are derived from Offset when the input is available.
	Line   int
	Column int

	// Err is the underlying decoding error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parse error at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns ErrParse so errors.Is(err, ErrParse) matches.
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// NewParseError builds a ParseError, deriving line/column from the input
// when the offset falls inside it.
func NewParseError(data []byte, offset int64, err error) *ParseError {
	pe := &ParseError{Offset: offset, Err: err}
	if offset > 0 && offset <= int64(len(data)) {
		line, col := 1, 1
		for _, b := range data[:offset] {
			if b == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
		pe.Line = line
		pe.Column = col
	}
	return pe
}
