package limb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pneumalab/airlimb/hardware"
)

// CtrlWorker blocks on the capacity-1 command channel and forwards each
// received action vector to the hardware actuation path. After a successful
// forward it records the vector into the shared action buffer so the
// orchestrator can report the last actuation applied.
type CtrlWorker struct {
	*Handle

	client  hardware.Client
	cmds    <-chan []float64
	last    *Buffer
	pipe    *Endpoint
	timeout time.Duration
}

// NewCtrlWorker builds the worker; Start launches its drain loop.
func NewCtrlWorker(client hardware.Client, cmds <-chan []float64, last *Buffer, pipe *Endpoint, timeout time.Duration, logger *slog.Logger) *CtrlWorker {
	w := &CtrlWorker{
		client:  client,
		cmds:    cmds,
		last:    last,
		pipe:    pipe,
		timeout: timeout,
	}
	w.Handle = newHandle("ctrl", logger, w.run)
	return w
}

func (w *CtrlWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-w.pipe.Recv():
			if s == SignalPeerFault {
				return errPeerFault
			}
		case actions := <-w.cmds:
			cycle, cancel := context.WithTimeout(ctx, w.timeout)
			err := w.client.Actuate(cycle, actions)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil // terminated mid-call
				}
				w.pipe.Send(SignalPeerFault)
				return fmt.Errorf("actuate: %w", err)
			}

			w.last.Write(actions)
		}
	}
}
