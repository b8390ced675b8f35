package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	// Request/reply topics on the bridge broker. Replies are fanned out to
	// a per-client topic so concurrent connections never steal each other's
	// responses.
	reqTopic  = "airlimb/%s/req"     // hostname
	respTopic = "airlimb/%s/resp/%s" // hostname, client id

	publishTimeout = 5 * time.Second
)

// MQTTDialer opens mqttClient connections through an MQTT broker that the
// bridge is attached to.
type MQTTDialer struct {
	Broker   string
	Port     int
	Username string
	Password string
	Logger   *slog.Logger

	// ConnFactory builds the underlying MQTT connection; tests swap it for
	// a fake broker.
	ConnFactory func(opts *mqtt.ClientOptions) MQTTConn
}

// Dial connects to the broker, subscribes to this client's reply topic and
// performs the hello exchange that reports the muscle count.
func (d *MQTTDialer) Dial(ctx context.Context, hostname string) (Client, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := d.ConnFactory
	if factory == nil {
		factory = func(opts *mqtt.ClientOptions) MQTTConn {
			return &DefaultMQTTConn{client: mqtt.NewClient(opts)}
		}
	}

	c := &mqttClient{
		hostname: hostname,
		clientID: uuid.NewString(),
		logger:   logger.With("transport", "mqtt", "host", hostname),
		inflight: make(map[string]chan response),
		done:     make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", d.Broker, d.Port))
	opts.SetClientID("airlimb-" + c.clientID)
	if d.Username != "" {
		opts.SetUsername(d.Username)
		opts.SetPassword(d.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("broker connection lost", "error", err)
	})

	c.conn = factory(opts)

	if tok := c.conn.Connect(); !tok.WaitTimeout(publishTimeout) || tok.Error() != nil {
		return nil, fmt.Errorf("hardware: broker connect: %w", tokenErr(tok))
	}

	topic := fmt.Sprintf(respTopic, hostname, c.clientID)
	if tok := c.conn.Subscribe(topic, 1, c.onMessage); !tok.WaitTimeout(publishTimeout) || tok.Error() != nil {
		c.conn.Disconnect(0)
		return nil, fmt.Errorf("hardware: subscribe %s: %w", topic, tokenErr(tok))
	}

	resp, err := c.roundTrip(ctx, request{Op: opHello})
	if err != nil {
		c.conn.Disconnect(0)
		return nil, fmt.Errorf("hardware: hello: %w", err)
	}
	if resp.Muscles <= 0 {
		c.conn.Disconnect(0)
		return nil, fmt.Errorf("hardware: bridge reported %d muscles", resp.Muscles)
	}
	c.muscles = resp.Muscles

	c.logger.Info("bridge connected", "muscles", c.muscles)
	return c, nil
}

// mqttClient implements Client over an MQTT request/reply exchange.
type mqttClient struct {
	hostname string
	clientID string
	muscles  int
	logger   *slog.Logger
	conn     MQTTConn

	mu       sync.Mutex
	closed   bool
	inflight map[string]chan response
	done     chan struct{} // closed once when the client shuts down
}

func (c *mqttClient) NumMuscles() int { return c.muscles }

func (c *mqttClient) StartPressureGen(ctx context.Context) error {
	_, err := c.roundTrip(ctx, request{Op: opStartPressureGen})
	return err
}

func (c *mqttClient) StopPressureGen(ctx context.Context) error {
	_, err := c.roundTrip(ctx, request{Op: opStopPressureGen})
	return err
}

func (c *mqttClient) WaitForDesiredPressure(ctx context.Context) error {
	_, err := c.roundTrip(ctx, request{Op: opWaitPressure})
	return err
}

func (c *mqttClient) Contractions(ctx context.Context) ([]float64, error) {
	resp, err := c.roundTrip(ctx, request{Op: opContractions})
	if err != nil {
		return nil, err
	}
	if len(resp.Contractions) != c.muscles {
		return nil, fmt.Errorf("hardware: bridge sent %d readings, want %d", len(resp.Contractions), c.muscles)
	}
	return resp.Contractions, nil
}

func (c *mqttClient) Actuate(ctx context.Context, actions []float64) error {
	_, err := c.roundTrip(ctx, request{Op: opActuate, Actions: actions})
	return err
}

func (c *mqttClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.conn.Disconnect(250)
	return nil
}

// roundTrip publishes one request and waits for its correlated response or
// context expiry.
func (c *mqttClient) roundTrip(ctx context.Context, req request) (response, error) {
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

	payload, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}
	tok := c.conn.Publish(fmt.Sprintf(reqTopic, c.hostname), 1, false, payload)
	if !tok.WaitTimeout(publishTimeout) || tok.Error() != nil {
		return response{}, fmt.Errorf("publish %s: %w", req.Op, tokenErr(tok))
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

// onMessage routes bridge replies to the waiting roundTrip call.
func (c *mqttClient) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var resp response
	if err := json.Unmarshal(msg.Payload(), &resp); err != nil {
		c.logger.Warn("undecodable bridge reply", "error", err)
		return
	}

	c.mu.Lock()
	ch, ok := c.inflight[resp.RequestID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("reply for unknown request", "request_id", resp.RequestID)
		return
	}
	select {
	case ch <- resp:
	default: // duplicate reply, drop it
	}
}

func tokenErr(tok mqtt.Token) error {
	if err := tok.Error(); err != nil {
		return err
	}
	return fmt.Errorf("timed out after %s", publishTimeout)
}
