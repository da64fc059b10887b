package displayloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrAlreadyRunning is returned when Run() is called on an application that is already running.
	ErrAlreadyRunning = errors.New("displayloop: application is already running")

	// ErrTerminated is returned when operations are attempted on a finalized application.
	ErrTerminated = errors.New("displayloop: application has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("displayloop: cannot call Run() from within the loop")

	// ErrTransportClosed indicates the connection to the display server is gone.
	ErrTransportClosed = errors.New("displayloop: transport closed")

	// ErrWindowGone is reported when a window reference no longer resolves.
	ErrWindowGone = errors.New("displayloop: window no longer exists")

	// ErrNilTransport is returned by New when no transport was provided.
	ErrNilTransport = errors.New("displayloop: nil transport")

	// ErrNilHandler is returned by CreateWindow when no handler was provided.
	ErrNilHandler = errors.New("displayloop: nil handler")
)

// Phase identifies where a fatal error happened.
type Phase int

const (
	// PhaseStartup covers connecting and protocol negotiation.
	PhaseStartup Phase = iota + 1
	// PhaseRuntime covers failures of an established connection.
	PhaseRuntime
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStartup:
		return "startup"
	case PhaseRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// FatalError is an unrecoverable transport failure. Startup failures are
// returned by transport constructors and New, runtime failures by Run.
type FatalError struct {
	Err   error
	Phase Phase
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("displayloop: fatal %s error", e.Phase)
	}
	return fmt.Sprintf("displayloop: fatal %s error: %v", e.Phase, e.Err)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Startup wraps err as a [PhaseStartup] [FatalError], returning nil for nil.
func Startup(err error) error {
	if err == nil {
		return nil
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return err
	}
	return &FatalError{Phase: PhaseStartup, Err: err}
}

// HandlerError wraps a failure to handle a single event. It is logged and
// never stops the loop.
type HandlerError struct {
	Err    error
	Kind   string
	Window WindowID
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Window != 0 {
		return fmt.Sprintf("%s (window %d): %v", e.Kind, e.Window, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("displayloop: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, or nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
