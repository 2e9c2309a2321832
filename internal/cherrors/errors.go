// Package cherrors defines the sentinel error taxonomy shared by every
// layer of chancore. Callers compare results with errors.Is; internal
// call sites that need to attach context (a channel ID, a port ID, a
// peer) wrap a sentinel with github.com/pkg/errors, which preserves the
// cause chain so errors.Is still matches after wrapping.
package cherrors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrInvalid signals a bad argument or an operation attempted from the
	// wrong channel state.
	ErrInvalid = errors.New("chancore: invalid argument or state")

	// ErrNotFound signals an unknown port, peer, or channel.
	ErrNotFound = errors.New("chancore: not found")

	// ErrBusy signals a full ring or an already-taken channel ID.
	ErrBusy = errors.New("chancore: busy")

	// ErrAgain signals an operation that would block on a non-blocking
	// call, or a channel that is not yet connected.
	ErrAgain = errors.New("chancore: would block")

	// ErrTimeout signals a wait that expired before its condition was met.
	ErrTimeout = errors.New("chancore: timed out")

	// ErrInterrupted signals a wait that was woken by a signal rather than
	// its condition.
	ErrInterrupted = errors.New("chancore: interrupted")

	// ErrCanceled signals that a listening channel left the Listen state
	// while an accept() was waiting on it.
	ErrCanceled = errors.New("chancore: canceled")

	// ErrConnReset signals that the peer disconnected while a receive was
	// blocked.
	ErrConnReset = errors.New("chancore: connection reset by peer")

	// ErrNoMemory signals a full receive ring or a full inuse table.
	ErrNoMemory = errors.New("chancore: no memory")

	// ErrIO signals a data message received while the channel was not in
	// the Connected state.
	ErrIO = errors.New("chancore: io error")

	// ErrNoDevice signals that the owning port has been torn down.
	ErrNoDevice = errors.New("chancore: no device")
)

// Wrap attaches context (a channel ID, a port ID, a peer) to a sentinel
// error. pkg/errors.Wrap preserves the cause chain, so errors.Is(result,
// ErrNotFound) still holds after wrapping.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

// Wrapf is Wrap with Printf-style formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}
