package limb

// Signal is a worker-to-worker coordination message carried over the duplex
// pipe. The orchestrator wires the two endpoints at Connect and never
// touches them afterwards.
type Signal int

const (
	// SignalPeerFault tells the other worker that this side hit an
	// unrecoverable failure and is stopping.
	SignalPeerFault Signal = iota + 1
)

// Endpoint is one end of a duplex worker-to-worker pipe.
type Endpoint struct {
	send chan<- Signal
	recv <-chan Signal
}

// NewPipe builds a connected pair of endpoints with one buffered slot in
// each direction.
func NewPipe() (*Endpoint, *Endpoint) {
	ab := make(chan Signal, 1)
	ba := make(chan Signal, 1)
	return &Endpoint{send: ab, recv: ba}, &Endpoint{send: ba, recv: ab}
}

// Send delivers a signal without blocking. It reports false when the peer
// has not drained the previous signal; coordination signals are advisory,
// so dropping a duplicate is fine.
func (e *Endpoint) Send(s Signal) bool {
	select {
	case e.send <- s:
		return true
	default:
		return false
	}
}

// Recv exposes the receive side for use in a select.
func (e *Endpoint) Recv() <-chan Signal {
	return e.recv
}

// Poll receives a pending signal without blocking.
func (e *Endpoint) Poll() (Signal, bool) {
	select {
	case s := <-e.recv:
		return s, true
	default:
		return 0, false
	}
}
