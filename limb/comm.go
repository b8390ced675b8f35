package limb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pneumalab/airlimb/hardware"
)

// errPeerFault marks a stop triggered through the duplex pipe by the other
// worker rather than by this worker's own hardware path.
var errPeerFault = errors.New("peer worker failed")

// CommWorker polls the bridge for per-muscle contraction readings and
// writes each vector into the shared observation buffer under its lock.
// It owns a dedicated hardware connection so a wedged control path never
// blocks sensor updates.
type CommWorker struct {
	*Handle

	client  hardware.Client
	obs     *Buffer
	pipe    *Endpoint
	timeout time.Duration
}

// NewCommWorker builds the worker; Start launches its polling loop.
func NewCommWorker(client hardware.Client, obs *Buffer, pipe *Endpoint, timeout time.Duration, logger *slog.Logger) *CommWorker {
	w := &CommWorker{
		client:  client,
		obs:     obs,
		pipe:    pipe,
		timeout: timeout,
	}
	w.Handle = newHandle("comm", logger, w.run)
	return w
}

func (w *CommWorker) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if s, ok := w.pipe.Poll(); ok && s == SignalPeerFault {
			return errPeerFault
		}

		cycle, cancel := context.WithTimeout(ctx, w.timeout)
		readings, err := w.client.Contractions(cycle)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil // terminated mid-call
			}
			w.pipe.Send(SignalPeerFault)
			return fmt.Errorf("poll contractions: %w", err)
		}

		w.obs.Write(readings)
	}
}
