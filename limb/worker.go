package limb

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// WorkerState is the lifecycle state of a worker handle.
type WorkerState int32

const (
	WorkerNotStarted WorkerState = iota
	WorkerRunning
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerNotStarted:
		return "not-started"
	case WorkerRunning:
		return "running"
	case WorkerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Handle supervises one worker goroutine. It owns the lifecycle state and
// the fault slot: a worker that returns an error from its loop has the
// error (plus the stack at capture time) recorded exactly once, where the
// orchestrator inspects it lazily on the next GetObs/Step. Nothing is ever
// pushed to the orchestrator asynchronously.
type Handle struct {
	name   string
	logger *slog.Logger
	loop   func(ctx context.Context) error

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	termOnce sync.Once

	faultMu sync.Mutex
	fault   *Fault
}

func newHandle(name string, logger *slog.Logger, loop func(ctx context.Context) error) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		name:   name,
		logger: logger.With("worker", name),
		loop:   loop,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the worker goroutine. Starting twice is a no-op.
func (h *Handle) Start() {
	if !h.state.CompareAndSwap(int32(WorkerNotStarted), int32(WorkerRunning)) {
		return
	}

	go func() {
		defer close(h.done)
		defer h.state.Store(int32(WorkerTerminated))

		h.logger.Debug("worker started")
		if err := h.loop(h.ctx); err != nil {
			h.setFault(err)
		}
		h.logger.Debug("worker stopped")
	}()
}

// Terminate stops the worker abruptly and waits for its goroutine to exit.
// It is safe to call any number of times and on a handle that was never
// started.
func (h *Handle) Terminate() {
	h.termOnce.Do(func() {
		if h.state.CompareAndSwap(int32(WorkerNotStarted), int32(WorkerTerminated)) {
			h.cancel()
			close(h.done)
			return
		}
		h.cancel()
		<-h.done
	})
}

// State reports the current lifecycle state.
func (h *Handle) State() WorkerState {
	return WorkerState(h.state.Load())
}

// Done is closed when the worker goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Fault returns the captured fault, or nil while the worker is healthy.
func (h *Handle) Fault() *Fault {
	h.faultMu.Lock()
	defer h.faultMu.Unlock()
	return h.fault
}

// setFault records the first unrecoverable failure with the stack at
// capture time. Later failures are dropped; the first cause is the one
// that matters.
func (h *Handle) setFault(err error) {
	h.faultMu.Lock()
	defer h.faultMu.Unlock()
	if h.fault != nil {
		return
	}
	h.fault = &Fault{Worker: h.name, Trace: string(debug.Stack()), cause: err}
	h.logger.Error("worker fault", "error", err)
}
