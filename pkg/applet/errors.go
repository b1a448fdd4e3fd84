package applet

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers a missing reader, a failed connect and any
	// transport failure.
	ErrConnection = errors.New("card connection failure")

	// ErrLocked is reported for status 6982.
	ErrLocked = errors.New("card locked")

	// ErrFormat is wrapped by FormatError.
	ErrFormat = errors.New("malformed card record")
)

// ConnectionError wraps a transport failure met during op.
func ConnectionError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}

// ProtocolError is an unexpected or unclassified status word.
// SW is 0 when the response was too short to carry one.
type ProtocolError struct {
	Op string
	SW int
}

func (e *ProtocolError) Error() string {
	op := e.Op
	if op == "" {
		op = "applet"
	}
	if e.SW == 0 {
		return fmt.Sprintf("%s: response without status word", op)
	}
	return fmt.Sprintf("%s: unexpected status %04X", op, e.SW)
}

// WrongSecretError is a rejected PIN (63CX).
type WrongSecretError struct {
	Remaining int
}

func (e *WrongSecretError) Error() string {
	return fmt.Sprintf("wrong PIN, %d tries remaining", e.Remaining)
}

// FormatError is a text record that cannot be decoded.
type FormatError struct {
	Record string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v: %s (%q)", ErrFormat, e.Reason, e.Record)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// PartialTransferError reports an image upload that failed after Written
// bytes had already been stored. The card is not rolled back: it keeps the
// new text record and a truncated or stale image.
type PartialTransferError struct {
	Offset  int
	Written int
	SW      int
	Err     error
}

func (e *PartialTransferError) Error() string {
	cause := fmt.Sprintf("status %04X", e.SW)
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return fmt.Sprintf("image upload stopped at offset %d after %d bytes: %s", e.Offset, e.Written, cause)
}

func (e *PartialTransferError) Unwrap() error { return e.Err }
