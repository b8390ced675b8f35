package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// WSDialer opens wsClient connections to a bridge exposing a WebSocket
// endpoint instead of sitting on an MQTT broker.
type WSDialer struct {
	// URL of the bridge endpoint, e.g. "ws://clonepiext:9030/ctl". When
	// empty, it is derived from the hostname passed to Dial.
	URL    string
	Logger *slog.Logger

	DialTimeout time.Duration
}

// Dial establishes the WebSocket, starts the read pump and performs the
// hello exchange.
func (d *WSDialer) Dial(ctx context.Context, hostname string) (Client, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	url := d.URL
	if url == "" {
		url = fmt.Sprintf("ws://%s:9030/ctl", hostname)
	}
	timeout := d.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("hardware: dial %s: %w", url, err)
	}

	pumpCtx, stop := context.WithCancel(context.Background())
	c := &wsClient{
		conn:     conn,
		logger:   logger.With("transport", "ws", "host", hostname),
		inflight: make(map[string]chan response),
		done:     make(chan struct{}),
		stop:     stop,
	}
	c.group, pumpCtx = errgroup.WithContext(pumpCtx)
	c.group.Go(func() error { return c.readPump(pumpCtx) })

	resp, err := c.roundTrip(ctx, request{Op: opHello})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("hardware: hello: %w", err)
	}
	if resp.Muscles <= 0 {
		_ = c.Close()
		return nil, fmt.Errorf("hardware: bridge reported %d muscles", resp.Muscles)
	}
	c.muscles = resp.Muscles

	c.logger.Info("bridge connected", "muscles", c.muscles)
	return c, nil
}

// wsClient implements Client over a WebSocket request/reply exchange.
type wsClient struct {
	conn    *websocket.Conn
	muscles int
	logger  *slog.Logger
	group   *errgroup.Group
	stop    context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight map[string]chan response
	done     chan struct{} // closed once when the client shuts down

	closeOnce sync.Once
	closeErr  error
}

func (c *wsClient) NumMuscles() int { return c.muscles }

func (c *wsClient) StartPressureGen(ctx context.Context) error {
	_, err := c.roundTrip(ctx, request{Op: opStartPressureGen})
	return err
}

func (c *wsClient) StopPressureGen(ctx context.Context) error {
	_, err := c.roundTrip(ctx, request{Op: opStopPressureGen})
	return err
}

func (c *wsClient) WaitForDesiredPressure(ctx context.Context) error {
	_, err := c.roundTrip(ctx, request{Op: opWaitPressure})
	return err
}

func (c *wsClient) Contractions(ctx context.Context) ([]float64, error) {
	resp, err := c.roundTrip(ctx, request{Op: opContractions})
	if err != nil {
		return nil, err
	}
	if len(resp.Contractions) != c.muscles {
		return nil, fmt.Errorf("hardware: bridge sent %d readings, want %d", len(resp.Contractions), c.muscles)
	}
	return resp.Contractions, nil
}

func (c *wsClient) Actuate(ctx context.Context, actions []float64) error {
	_, err := c.roundTrip(ctx, request{Op: opActuate, Actions: actions})
	return err
}

func (c *wsClient) Close() error {
	c.closeOnce.Do(func() {
		c.failAll()
		c.stop()
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, "client closed")
		_ = c.group.Wait()
	})
	return c.closeErr
}

func (c *wsClient) roundTrip(ctx context.Context, req request) (response, error) {
	req.RequestID = uuid.NewString()

	ch := make(chan response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return response{}, ErrClosed
	}
	c.inflight[req.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, req.RequestID)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return response{}, fmt.Errorf("write %s: %w", req.Op, err)
	}

	select {
	case resp := <-ch:
		return resp, resp.err(req.Op)
	case <-c.done:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// readPump decodes bridge replies and routes them to waiting callers. It
// exits when the connection drops, failing all in-flight requests.
func (c *wsClient) readPump(ctx context.Context) error {
	for {
		var resp response
		if err := wsjson.Read(ctx, c.conn, &resp); err != nil {
			c.failAll()
			return err
		}

		c.mu.Lock()
		ch, ok := c.inflight[resp.RequestID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("reply for unknown request", "request_id", resp.RequestID)
			continue
		}
		select {
		case ch <- resp:
		default: // duplicate reply, drop it
		}
	}
}

// failAll flags the client closed and releases every waiting roundTrip.
func (c *wsClient) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
