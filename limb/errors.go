package limb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations that need an active
	// connection before Connect has succeeded.
	ErrNotConnected = errors.New("limb: not connected, call Connect first")

	// ErrAlreadyConnected is returned by Connect on an Env that is
	// already connected. Close or ForceClose the old connection first.
	ErrAlreadyConnected = errors.New("limb: already connected")

	// ErrClosed is returned by operations invoked after Close/ForceClose.
	ErrClosed = errors.New("limb: connection closed")

	// ErrWrongActionLength is returned by Step when the action vector
	// length does not match the muscle count.
	ErrWrongActionLength = errors.New("limb: action vector length != muscle count")
)

// Fault is an unrecoverable failure captured inside a worker, surfaced to
// the caller by the first GetObs or Step that observes it. Trace holds the
// goroutine stack at capture time.
type Fault struct {
	Worker string
	Trace  string
	cause  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("limb: %s worker fault: %v", f.Worker, f.cause)
}

func (f *Fault) Unwrap() error { return f.cause }
