// Package errno defines the typed failures surfaced by the ticketing core.
// Every failure carries a stable numeric code so the transport layer and
// tests can branch on it with errors.Is regardless of the wrapped cause.
package errno

import (
	"errors"
	"fmt"
)

// Code is a machine-readable failure kind.
type Code int

const (
	OK Code = 0

	InvalidRequest Code = 10000

	LockAcquisitionTimeout Code = 20001
	LockAcquisitionFailure Code = 20002
	DuplicateRequest       Code = 20003

	ProgramNotFound           Code = 30001
	TicketCategoryNotFound    Code = 30002
	SeatNotExist              Code = 30003
	InventorySeatNotAvailable Code = 30004
	InventoryInsufficient     Code = 30005
	PriceMismatch             Code = 30006
	OperationNotPermitted     Code = 30007

	DownstreamSubmissionFailure Code = 40001
	InterruptedWait             Code = 40002
)

// Error is a coded failure with an optional cause.
type Error struct {
	Code  Code
	Msg   string
	cause error
}

// New returns an Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%d] %s: %v", e.Code, e.Msg, e.cause)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error carrying the same code, so sentinel comparisons
// keep working after Wrap or WithMsg.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// Wrap returns a copy of e that carries cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Msg: e.Msg, cause: cause}
}

// WithMsg returns a copy of e with a more specific message.
func (e *Error) WithMsg(format string, args ...any) *Error {
	return &Error{Code: e.Code, Msg: fmt.Sprintf(format, args...), cause: e.cause}
}

// CodeOf extracts the code of the first *Error in err's chain. Errors that
// carry no code report -1.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

var (
	ErrInvalidRequest = New(InvalidRequest, "invalid request")

	ErrLockAcquisitionTimeout = New(LockAcquisitionTimeout, "timed out acquiring lock")
	ErrLockAcquisitionFailure = New(LockAcquisitionFailure, "lock acquisition failed")
	ErrDuplicateRequest       = New(DuplicateRequest, "request is already being processed")

	ErrProgramNotFound           = New(ProgramNotFound, "program not found")
	ErrTicketCategoryNotFound    = New(TicketCategoryNotFound, "ticket category not found")
	ErrSeatNotExist              = New(SeatNotExist, "seat does not exist")
	ErrInventorySeatNotAvailable = New(InventorySeatNotAvailable, "seat is not available")
	ErrInventoryInsufficient     = New(InventoryInsufficient, "remaining tickets are insufficient")
	ErrPriceMismatch             = New(PriceMismatch, "declared price exceeds seat price")
	ErrOperationNotPermitted     = New(OperationNotPermitted, "operation not permitted for seat state")

	ErrDownstreamSubmissionFailure = New(DownstreamSubmissionFailure, "order submission failed")
	ErrInterruptedWait             = New(InterruptedWait, "interrupted while waiting for order submission")
)
