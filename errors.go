package mapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/mapi/propval"
)

var (
	// ErrHandleMisuse is matched by every *HandleMisuseError.
	ErrHandleMisuse = errors.New("handle misuse")

	// ErrPartialSuccess is returned by strict operations when the server
	// completed the request with per-item errors (MAPI_W_ERRORS_RETURNED).
	ErrPartialSuccess = errors.New("partially succeeded")

	// ErrNoColumns means rows were requested before the column set was known.
	ErrNoColumns = errors.New("no columns selected")

	ErrInvalidArgument = errors.New("invalid argument")
)

// ProtocolError is an application-level failure status returned by the
// server for one ROP.
type ProtocolError struct {
	Rop    RopID
	Status propval.ErrorCode
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v failed: %v", e.Rop, e.Status)
}

// Partial reports whether the status means the operation partially succeeded
// with per-row errors rather than failing outright.
func (e *ProtocolError) Partial() bool {
	return e.Status == propval.CodeErrorsReturned
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrPartialSuccess && e.Partial()
}

// TransportError wraps a failure of the transport itself: the request never
// produced a response.
type TransportError struct {
	Rop RopID
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: transport: %v", e.Rop, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Canceled reports whether the request was abandoned because its context was
// canceled.
func (e *TransportError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// Timeout reports whether the request ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

func (e *TransportError) retryable() bool {
	return !e.Canceled() && !e.Timeout()
}

// HandleMisuseError reports a call that can never succeed because of how the
// caller used a handle: an operation on a released table, or a bookmark
// presented to a table it does not belong to.
type HandleMisuseError struct {
	Rop    RopID
	Handle uint32
	Msg    string
}

func misusef(rop RopID, handle uint32, format string, args ...any) error {
	return &HandleMisuseError{rop, handle, fmt.Sprintf(format, args...)}
}

func (e *HandleMisuseError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Rop.String())
	fmt.Fprintf(&buf, " on handle 0x%08x", e.Handle)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}

func (e *HandleMisuseError) Unwrap() error {
	return ErrHandleMisuse
}

// ResponseError reports a response buffer that could not be decoded.
type ResponseError struct {
	Rop RopID
	Err error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%v: bad response: %v", e.Rop, e.Err)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// StatusOf extracts the server status from err, if err is a *ProtocolError.
func StatusOf(err error) (propval.ErrorCode, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Status, true
	}
	return 0, false
}
