package replay

import (
	"errors"
	"fmt"
)

// Parse error kinds. Parsers return these unchanged to the dispatcher;
// only ErrSchemaMismatch is recoverable (the dispatcher tries the next
// candidate schema for ambiguous extensions).
var (
	// ErrUnknownFormat is returned when no parser claims the file
	// extension.
	ErrUnknownFormat = errors.New("replay: unknown replay format")
	// ErrInvalidMagic is returned when the first bytes do not match
	// the format's sentinel.
	ErrInvalidMagic = errors.New("replay: invalid magic")
	// ErrUnexpectedEOF is returned on a binary read past end of data.
	ErrUnexpectedEOF = errors.New("replay: unexpected end of data")
	// ErrSchemaMismatch is returned when a polymorphic format fails
	// its schema probe.
	ErrSchemaMismatch = errors.New("replay: schema mismatch")
)

// UnsupportedVersionError reports a version field outside a format's
// declared range.
type UnsupportedVersionError struct {
	Format  string
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("replay: unsupported %s version %d", e.Format, e.Version)
}

// InvalidDataError reports structurally valid but semantically
// impossible data (oversize string, bad UTF-8, overlong varint).
type InvalidDataError struct {
	Msg string
}

func (e *InvalidDataError) Error() string {
	return "replay: invalid data: " + e.Msg
}

func invalidData(format string, a ...any) error {
	return &InvalidDataError{Msg: fmt.Sprintf(format, a...)}
}
