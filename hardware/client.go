// Package hardware talks to the pressure-generation bridge that fronts the
// pneumatic limb. A Client is one logical connection to the bridge; the
// orchestrator opens one for the connect handshake and one per worker so
// that a wedged worker connection never stalls the others.
package hardware

import (
	"context"
	"errors"
	"fmt"
)

// Client is a connection to the pressure-hardware bridge.
//
// Lifecycle calls (StartPressureGen, StopPressureGen, WaitForDesiredPressure)
// may block until the hardware confirms the requested state; callers bound
// them with the context.
type Client interface {
	// NumMuscles reports the number of independently actuated muscles,
	// fixed for the lifetime of the connection.
	NumMuscles() int

	StartPressureGen(ctx context.Context) error
	StopPressureGen(ctx context.Context) error
	WaitForDesiredPressure(ctx context.Context) error

	// Contractions returns the current contraction reading for each muscle.
	Contractions(ctx context.Context) ([]float64, error)

	// Actuate forwards an actuation vector to the valves. Values are
	// -1 (loose), 0 (hold), 1 (contract); anything else is inert.
	Actuate(ctx context.Context, actions []float64) error

	Close() error
}

// Dialer opens Client connections to a named bridge host.
type Dialer interface {
	Dial(ctx context.Context, hostname string) (Client, error)
}

// ErrClosed is returned by requests on a client whose connection was closed.
var ErrClosed = errors.New("hardware: client closed")

// Bridge wire ops shared by the MQTT and WebSocket transports.
const (
	opHello            = "hello"
	opStartPressureGen = "pressuregen/start"
	opStopPressureGen  = "pressuregen/stop"
	opWaitPressure     = "pressure/wait"
	opContractions     = "contractions"
	opActuate          = "actuate"
)

// request is the JSON envelope sent to the bridge.
type request struct {
	RequestID string    `json:"request_id"`
	Op        string    `json:"op"`
	Actions   []float64 `json:"actions,omitempty"`
}

// response is the JSON envelope the bridge replies with, correlated to the
// originating request by RequestID.
type response struct {
	RequestID    string    `json:"request_id"`
	OK           bool      `json:"ok"`
	Error        string    `json:"error,omitempty"`
	Muscles      int       `json:"muscles,omitempty"`
	Contractions []float64 `json:"contractions,omitempty"`
}

func (r *response) err(op string) error {
	if r.OK {
		return nil
	}
	if r.Error == "" {
		return fmt.Errorf("hardware: %s refused by bridge", op)
	}
	return fmt.Errorf("hardware: %s: %s", op, r.Error)
}
