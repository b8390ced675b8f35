package limb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pneumalab/airlimb/hardware"
)

// Defaults for the two timing constants. Both are configuration, not
// behavior: the cycle timeout bounds each worker's poll/actuate cycle, the
// loose period is how long LooseAll and Reset keep issuing the de-actuation
// vector.
const (
	DefaultHostname     = "clonepiext"
	DefaultCycleTimeout = 4500 * time.Microsecond
	DefaultLoosePeriod  = 500 * time.Millisecond
)

// State is the orchestrator lifecycle state.
type State int

const (
	Unconnected State = iota
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures an Env. Zero values fall back to the defaults above.
type Options struct {
	Hostname     string
	CycleTimeout time.Duration
	LoosePeriod  time.Duration
	Logger       *slog.Logger
	Clock        Clock
}

// Env is the orchestrator: it owns the two workers, the shared buffers and
// the command channel, and exposes the synchronous observe/act surface.
// Public operations are meant to be driven from a single controlling
// goroutine; GetObs and Step block only on the lock or the channel, the
// timed sequences block for the full requested duration.
type Env struct {
	dialer       hardware.Dialer
	hostname     string
	cycleTimeout time.Duration
	loosePeriod  time.Duration
	logger       *slog.Logger
	clock        Clock

	mu      sync.Mutex
	state   State
	muscles int
	obs     *Buffer
	last    *Buffer
	cmds    chan []float64
	comm    *CommWorker
	ctrl    *CtrlWorker
}

// New builds an unconnected Env that will reach the bridge through dialer.
func New(dialer hardware.Dialer, opts Options) *Env {
	if opts.Hostname == "" {
		opts.Hostname = DefaultHostname
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = DefaultCycleTimeout
	}
	if opts.LoosePeriod <= 0 {
		opts.LoosePeriod = DefaultLoosePeriod
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Env{
		dialer:       dialer,
		hostname:     opts.Hostname,
		cycleTimeout: opts.CycleTimeout,
		loosePeriod:  opts.LoosePeriod,
		logger:       opts.Logger.With("component", "limb"),
		clock:        opts.Clock,
	}
}

// conn is the set of connection-scoped resources handed out under the lock
// so operations never touch fields that a later Connect may replace.
type conn struct {
	muscles int
	obs     *Buffer
	last    *Buffer
	cmds    chan []float64
	comm    *CommWorker
	ctrl    *CtrlWorker
}

func (e *Env) connected() (conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case Unconnected:
		return conn{}, ErrNotConnected
	case Closed:
		return conn{}, ErrClosed
	}
	return conn{
		muscles: e.muscles,
		obs:     e.obs,
		last:    e.last,
		cmds:    e.cmds,
		comm:    e.comm,
		ctrl:    e.ctrl,
	}, nil
}

// Connect performs the hardware handshake (start pressure generation, wait
// until the desired pressure is reached), reads the muscle count, builds
// the shared buffers, command channel and worker pipe fresh, and starts
// both workers on dedicated bridge connections. Connecting an
// already-connected Env fails with ErrAlreadyConnected; a closed Env may
// connect again.
func (e *Env) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Connected {
		return ErrAlreadyConnected
	}

	hs, err := e.dialer.Dial(ctx, e.hostname)
	if err != nil {
		return fmt.Errorf("limb: connect %s: %w", e.hostname, err)
	}
	defer hs.Close() //nolint:errcheck

	if err := hs.StartPressureGen(ctx); err != nil {
		return fmt.Errorf("limb: start pressuregen: %w", err)
	}
	if err := hs.WaitForDesiredPressure(ctx); err != nil {
		return fmt.Errorf("limb: wait for pressure: %w", err)
	}
	muscles := hs.NumMuscles()
	if muscles <= 0 {
		_ = hs.StopPressureGen(ctx)
		return fmt.Errorf("limb: bridge reported %d muscles", muscles)
	}

	// Pressure generation is already running; a failure past this point
	// must not leave it on with no workers attached.
	commClient, err := e.dialer.Dial(ctx, e.hostname)
	if err != nil {
		_ = hs.StopPressureGen(ctx)
		return fmt.Errorf("limb: dial comm connection: %w", err)
	}
	ctrlClient, err := e.dialer.Dial(ctx, e.hostname)
	if err != nil {
		_ = commClient.Close()
		_ = hs.StopPressureGen(ctx)
		return fmt.Errorf("limb: dial ctrl connection: %w", err)
	}

	e.muscles = muscles
	e.obs = NewBuffer(muscles)
	e.last = NewBuffer(muscles)
	e.cmds = make(chan []float64, 1)
	commEnd, ctrlEnd := NewPipe()
	e.comm = NewCommWorker(commClient, e.obs, commEnd, e.cycleTimeout, e.logger)
	e.ctrl = NewCtrlWorker(ctrlClient, e.cmds, e.last, ctrlEnd, e.cycleTimeout, e.logger)
	e.comm.Start()
	e.ctrl.Start()
	e.state = Connected

	e.logger.Info("connected", "host", e.hostname, "muscles", muscles)
	return nil
}

// checkWorkers inspects both fault slots. On any fault it force-closes the
// connection and surfaces the fault to the caller. Faults are only ever
// detected here, lazily, never pushed. When one worker failed on its
// hardware path and the other merely stopped on the peer-fault signal, the
// hardware fault is the one reported.
func (e *Env) checkWorkers(c conn) error {
	commF := c.comm.Fault()
	ctrlF := c.ctrl.Fault()
	if commF == nil && ctrlF == nil {
		return nil
	}
	e.ForceClose()

	pick := commF
	if pick == nil || (errors.Is(pick, errPeerFault) && ctrlF != nil && !errors.Is(ctrlF, errPeerFault)) {
		pick = ctrlF
	}
	return pick
}

// GetObs returns a snapshot of the current contraction reading for each
// muscle. Each reading is non-negative, bounded by the system pressure.
// The snapshot is atomic with respect to concurrent comm-worker writes but
// carries no freshness guarantee relative to the most recent Step.
func (e *Env) GetObs() ([]float64, error) {
	c, err := e.connected()
	if err != nil {
		return nil, err
	}
	if err := e.checkWorkers(c); err != nil {
		return nil, err
	}
	return c.obs.Snapshot(), nil
}

// Step queues one action vector for the control worker. Values are -1
// (loose), 0 (hold) and 1 (contract) per muscle; in-between values are
// accepted but inert, reserved for future continuous control. Step blocks
// while a previous action is still unconsumed, pacing command issuance to
// the worker's consumption rate.
func (e *Env) Step(actions []float64) error {
	c, err := e.connected()
	if err != nil {
		return err
	}
	if len(actions) != c.muscles {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongActionLength, len(actions), c.muscles)
	}

	vec := make([]float64, len(actions))
	copy(vec, actions)

	select {
	case c.cmds <- vec:
	case <-c.ctrl.Done():
		// Consumer is gone; surface its fault instead of blocking forever.
		if err := e.checkWorkers(c); err != nil {
			return err
		}
		return ErrClosed
	}

	return e.checkWorkers(c)
}

// KeepStep re-issues the same action vector until wall-clock elapsed time
// reaches period. At least one Step is always issued; the iteration count
// otherwise depends on backpressure pacing, so elapsed time is the
// contract, not call count.
func (e *Env) KeepStep(actions []float64, period time.Duration) error {
	start := e.clock.Now()
	for {
		if err := e.Step(actions); err != nil {
			return err
		}
		if e.clock.Now().Sub(start) >= period {
			return nil
		}
	}
}

// LooseAll de-actuates every muscle for the given period. A non-positive
// period means the configured default (nominal 500ms).
func (e *Env) LooseAll(period time.Duration) error {
	c, err := e.connected()
	if err != nil {
		return err
	}
	if period <= 0 {
		period = e.loosePeriod
	}

	loose := make([]float64, c.muscles)
	for i := range loose {
		loose[i] = -1
	}
	return e.KeepStep(loose, period)
}

// Reset brings the limb back to a neutral position: LooseAll when actions
// is nil, otherwise KeepStep with the given vector. A non-positive period
// means the configured default on either branch. Reset finishes with a
// GetObs, which both returns the post-reset state and acts as a liveness
// check on the workers.
func (e *Env) Reset(actions []float64, period time.Duration) ([]float64, error) {
	if period <= 0 {
		period = e.loosePeriod
	}

	var err error
	if actions == nil {
		err = e.LooseAll(period)
	} else {
		err = e.KeepStep(actions, period)
	}
	if err != nil {
		return nil, err
	}
	return e.GetObs()
}

// Close resets the limb, asks the bridge to stop pressure generation and
// then force-closes the workers.
func (e *Env) Close(ctx context.Context) error {
	if _, err := e.Reset(nil, 0); err != nil {
		return err
	}

	hs, err := e.dialer.Dial(ctx, e.hostname)
	if err != nil {
		e.ForceClose()
		return fmt.Errorf("limb: close %s: %w", e.hostname, err)
	}
	stopErr := hs.StopPressureGen(ctx)
	_ = hs.Close()

	e.ForceClose()

	if stopErr != nil {
		return fmt.Errorf("limb: stop pressuregen: %w", stopErr)
	}
	e.logger.Info("closed", "host", e.hostname)
	return nil
}

// ForceClose terminates both workers and drops their bridge connections,
// regardless of state. Not a graceful drain. Safe to call repeatedly and
// before Connect.
func (e *Env) ForceClose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.comm != nil {
		e.comm.Terminate()
		_ = e.comm.client.Close()
	}
	if e.ctrl != nil {
		e.ctrl.Terminate()
		_ = e.ctrl.client.Close()
	}
	if e.state == Connected {
		e.state = Closed
	}
}

// NumMuscles reports the muscle count fixed at Connect, 0 before then.
func (e *Env) NumMuscles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muscles
}

// State reports the orchestrator lifecycle state.
func (e *Env) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CommWorker returns the communication worker handle. It fails before the
// first successful Connect, when no worker exists yet.
func (e *Env) CommWorker() (*CommWorker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.comm == nil {
		return nil, ErrNotConnected
	}
	return e.comm, nil
}

// CtrlWorker returns the control worker handle, with the same
// before-Connect contract as CommWorker.
func (e *Env) CtrlWorker() (*CtrlWorker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return nil, ErrNotConnected
	}
	return e.ctrl, nil
}

// LastActions snapshots the last action vector the control worker forwarded
// to the hardware, all zeros until the first Step is consumed.
func (e *Env) LastActions() ([]float64, error) {
	c, err := e.connected()
	if err != nil {
		return nil, err
	}
	return c.last.Snapshot(), nil
}
