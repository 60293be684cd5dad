package transport

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
)

var (
	ErrHandleReleased        = errors.New("transport: handle already released")
	ErrHandleBusy            = errors.New("transport: handle is attached to a multi handle")
	ErrWaitAgain             = errors.New("transport: wait interrupted, try again")
	ErrInvalidOption         = errors.New("transport: invalid option")
	ErrUnsupportedScheme     = errors.New("transport: unsupported URL scheme")
	ErrActiveModeUnsupported = errors.New("transport: FTP active mode is not supported")
	ErrNotConfigured         = errors.New("transport: handle has no options")
)

// TransferError is a structured error from a transfer.
// Use errors.As to extract and inspect transfer errors.
type TransferError struct {
	// Protocol identifies the protocol that produced the error ("http", "ftp").
	Protocol string
	// Op is the step that failed (e.g. "connect", "retr", "response").
	Op string
	// Code is the server response code when one was received.
	Code int
	// Cause is the underlying error.
	Cause error
	// transient indicates whether the error may go away on its own.
	transient bool
}

// Error implements the error interface.
// Format: "protocol op: cause"
func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s", e.Protocol, e.Op, e.Cause.Error())
	}
	return fmt.Sprintf("%s %s", e.Protocol, e.Op)
}

// Unwrap returns the underlying cause, enabling errors.Is/As chaining.
func (e *TransferError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true if this error is transient.
func (e *TransferError) IsTransient() bool {
	return e.transient
}

func newTransientError(protocol, op string, cause error) *TransferError {
	return &TransferError{Protocol: protocol, Op: op, Cause: cause, transient: true}
}

func newPermanentError(protocol, op string, cause error) *TransferError {
	return &TransferError{Protocol: protocol, Op: op, Cause: cause}
}

// classifyError classifies transfer errors into transient or permanent.
// RFC 959: 4xx replies are transient, 5xx are permanent.
// Network errors are treated as transient.
func classifyError(proto, op string, err error) *TransferError {
	if err == nil {
		return nil
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		e := newPermanentError(proto, op, err)
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			e.transient = true
		}
		e.Code = tpErr.Code
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newTransientError(proto, op, err)
	}
	return newPermanentError(proto, op, err)
}
