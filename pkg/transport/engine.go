// Package transport defines the handle-based, non-blocking transfer engine
// used by fetchlib and provides NetEngine, an implementation on top of
// net/http and github.com/jlaffaye/ftp.
//
// Lifecycle of a transfer:
//  1. Engine.NewHandle creates a Handle
//  2. Handle.SetOptions commits an Options value (fails fast on invalid combinations)
//  3. Either Handle.Exec runs the transfer synchronously, or the handle is
//     added to a Multi which runs many transfers at once
//  4. Handle.Close releases the handle exactly once
package transport

import (
	"context"
	"fmt"
	"time"
)

// Engine creates transfer handles and multiplex handles.
type Engine interface {
	// NewHandle creates a single-transfer handle.
	NewHandle() (Handle, error)
	// NewMulti creates a multiplex handle able to drive many handles at once.
	NewMulti() (Multi, error)
}

// Handle is one transfer's wire-level state. A Handle is singly owned and
// must be closed exactly once; any use after Close reports ErrHandleReleased.
type Handle interface {
	// SetOptions replaces the options of the handle. It validates the whole
	// option set and fails without side effects on invalid combinations.
	SetOptions(opts Options) error
	// Exec runs the transfer synchronously. The returned body is nil when
	// the transfer produced no buffered output or the output went to
	// Options.Output.
	Exec(ctx context.Context) ([]byte, error)
	// Output returns the buffered body of the last transfer.
	Output() []byte
	// HeaderLines returns the response header lines of the last transfer.
	// The status line comes first; HTTP headers follow sorted by name.
	HeaderLines() []string
	// Info returns the summary metrics of the last transfer.
	Info() Info
	// Close releases the handle.
	Close() error
}

// Multi drives several handles concurrently without blocking the caller
// except in Wait.
type Multi interface {
	// Add registers a handle. The transfer starts on the next Perform.
	Add(h Handle) Code
	// Remove deregisters a handle, aborting its transfer if still running.
	Remove(h Handle) Code
	// SetOption sets a multiplex-level option.
	SetOption(opt MultiOption, value int) Code
	// Perform advances all registered transfers and reports how many are
	// still in flight. CodeCallMultiPerform asks the caller to call again.
	Perform() (Code, int)
	// InfoRead pops one completion message. The second result is false
	// when no message is queued.
	InfoRead() (Message, bool)
	// Wait blocks until a transfer completes, timeout elapses or ctx is
	// done. It returns the number of queued completion messages.
	// ErrWaitAgain reports a spurious wake-up; callers should retry.
	Wait(ctx context.Context, timeout time.Duration) (int, error)
	// Close aborts all transfers and releases the multiplex handle.
	Close() error
}

// Message is a completion event for one handle.
type Message struct {
	Handle Handle
	// Err is nil when the transfer succeeded.
	Err error
}

// MultiOption identifies a multiplex-level option.
type MultiOption int

const (
	// MultiMaxTotalConnections caps the transfers running at the same time.
	// Extra registered handles wait in the multi. 0 means no cap.
	MultiMaxTotalConnections MultiOption = iota + 1
	// MultiDNSCacheTimeout sets the default lifetime, in seconds, of the
	// multi's shared DNS cache entries.
	MultiDNSCacheTimeout
)

// Code is a multiplex status code.
type Code int

const (
	CodeCallMultiPerform Code = -1
	CodeOK               Code = 0
	CodeBadHandle        Code = 1
	CodeBadEasyHandle    Code = 2
	CodeOutOfMemory      Code = 3
	CodeInternalError    Code = 4
	CodeUnknownOption    Code = 6
	CodeAddedAlready     Code = 7
	CodeBadArgument      Code = 10
)

// String translates a status code to text.
func (c Code) String() string {
	switch c {
	case CodeCallMultiPerform:
		return "please call perform again"
	case CodeOK:
		return "no error"
	case CodeBadHandle:
		return "invalid multi handle"
	case CodeBadEasyHandle:
		return "invalid transfer handle"
	case CodeOutOfMemory:
		return "out of memory"
	case CodeInternalError:
		return "internal error"
	case CodeUnknownOption:
		return "unknown option"
	case CodeAddedAlready:
		return "the handle is already added to a multi handle"
	case CodeBadArgument:
		return "bad argument"
	default:
		return fmt.Sprintf("unknown error (%d)", int(c))
	}
}
