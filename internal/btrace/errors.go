package btrace

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported is returned by Enable when the producer refuses the
	// requested trace format.
	ErrNotSupported = errors.New("target does not support branch tracing")

	// ErrNoTrace is returned by cursor constructors when the thread has no
	// trace.
	ErrNoTrace = errors.New("no trace")
)

// GapCode - format-specific reason a gap segment was created. A segment with
// a nonzero gap code carries no instructions.
type GapCode int

const (
	// GapNone - not a gap.
	GapNone GapCode = 0

	// GapOverflow - a block's end address was passed without reaching it;
	// the recorded trace is corrupted around this point.
	GapOverflow GapCode = 1

	// GapInsnSize - the size of an instruction could not be determined, so
	// decoding could not continue to the block's end.
	GapInsnSize GapCode = 2
)

// String returns a printable description of the gap code.
func (c GapCode) String() string {
	switch c {
	case GapNone:
		return "none"
	case GapOverflow:
		return "overflow"
	case GapInsnSize:
		return "unknown instruction size"
	default:
		return fmt.Sprintf("gap(%d)", int(c))
	}
}

// ParseError - a malformed btrace or btrace-conf record. No partial state is
// kept when parsing fails.
type ParseError struct {
	Msg string
}

// Error implements error.
func (e *ParseError) Error() string {
	return e.Msg
}

// parseErrorf - builds a *ParseError from a format string.
func parseErrorf(format string, args ...interface{}) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}
