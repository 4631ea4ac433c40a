package propval

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated means the input ended before the value did. Supplying more
	// data and retrying may succeed.
	ErrTruncated = errors.New("truncated")

	// ErrUnknownType means the type code is not one the codec understands.
	// Retrying will never succeed.
	ErrUnknownType = errors.New("unknown property type")

	// ErrCorrupt means the data is internally inconsistent.
	ErrCorrupt = errors.New("corrupt data")

	ErrTypeMismatch = errors.New("value does not match property type")
)

// DataError describes a failure to decode a particular byte sequence.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// IsTruncated is a shorthand for errors.Is(err, ErrTruncated).
func IsTruncated(err error) bool {
	return errors.Is(err, ErrTruncated)
}
