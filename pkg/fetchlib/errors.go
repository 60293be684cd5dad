package fetchlib

import "errors"

var (
	// ErrInvalidURL is returned by NewRequest when the URL cannot be parsed
	// or does not fit the request kind.
	ErrInvalidURL = errors.New("fetchlib: invalid URL")
	// ErrDestinationRequired is returned by NewRequest for download kinds
	// created without a destination path.
	ErrDestinationRequired = errors.New("fetchlib: download requires a destination")
	// ErrAlreadySent is returned by Send on a request that was already sent.
	ErrAlreadySent = errors.New("fetchlib: request already sent")
	// ErrFinalizedBeforeCompletion is recorded on a request finalized while
	// its transfer was still in flight.
	ErrFinalizedBeforeCompletion = errors.New("fetchlib: request finalized before completion")

	// ErrSessionStarted is returned by Start when the session already ran.
	ErrSessionStarted = errors.New("fetchlib: session already started")
	// ErrNoneSucceeded is recorded when every request of a session failed.
	ErrNoneSucceeded = errors.New("None of the session's requests succeeded.")
	// ErrMultiAdd, ErrMultiRemove and ErrMultiPerform wrap engine status codes
	// that abort a session run.
	ErrMultiAdd     = errors.New("fetchlib: cannot register transfer")
	ErrMultiRemove  = errors.New("fetchlib: cannot deregister transfer")
	ErrMultiPerform = errors.New("fetchlib: cannot drive transfers")
	// ErrSessionAborted wraps a context cancellation that stopped a run.
	ErrSessionAborted = errors.New("fetchlib: session aborted")
)
