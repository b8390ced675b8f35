package hardware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken implements mqtt.Token.
type mockToken struct {
	err     error
	timeout bool
}

func (m *mockToken) Wait() bool { return true }

func (m *mockToken) WaitTimeout(time.Duration) bool { return !m.timeout }

func (m *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (m *mockToken) Error() error { return m.err }

// mockMessage implements mqtt.Message.
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// fakeBroker implements MQTTConn and behaves like a bridge sitting behind a
// broker: every request published to the req topic gets a scripted reply on
// the subscribed response topic.
type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	handler   mqtt.MessageHandler
	respTopic string

	muscles  int
	readings []float64
	failOp   string // op name that should be refused
	silentOp string // op name that should get no reply at all

	requests []request

	connectErr error
	publishErr error
}

func (b *fakeBroker) Connect() mqtt.Token {
	if b.connectErr != nil {
		return &mockToken{err: b.connectErr}
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return &mockToken{}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *fakeBroker) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	b.handler = callback
	b.respTopic = topic
	b.mu.Unlock()
	return &mockToken{}
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if b.publishErr != nil {
		return &mockToken{err: b.publishErr}
	}
	if !strings.HasPrefix(topic, "airlimb/") || !strings.HasSuffix(topic, "/req") {
		return &mockToken{err: fmt.Errorf("unexpected topic %s", topic)}
	}

	var req request
	if err := json.Unmarshal(payload.([]byte), &req); err != nil {
		return &mockToken{err: err}
	}

	b.mu.Lock()
	b.requests = append(b.requests, req)
	handler := b.handler
	respTopic := b.respTopic
	silent := b.silentOp == req.Op
	resp := response{RequestID: req.RequestID, OK: true}
	switch {
	case b.failOp == req.Op:
		resp.OK = false
		resp.Error = "refused"
	case req.Op == opHello:
		resp.Muscles = b.muscles
	case req.Op == opContractions:
		resp.Contractions = append([]float64(nil), b.readings...)
	}
	b.mu.Unlock()

	if handler != nil && !silent {
		raw, _ := json.Marshal(resp)
		handler(nil, &mockMessage{topic: respTopic, payload: raw})
	}
	return &mockToken{}
}

func (b *fakeBroker) requestOps() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ops := make([]string, len(b.requests))
	for i, r := range b.requests {
		ops[i] = r.Op
	}
	return ops
}

func dialFake(t *testing.T, broker *fakeBroker) Client {
	t.Helper()
	d := &MQTTDialer{
		Broker: "broker.local",
		Port:   1883,
		ConnFactory: func(*mqtt.ClientOptions) MQTTConn {
			return broker
		},
	}
	c, err := d.Dial(context.Background(), "clonepiext")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMQTTDialHello(t *testing.T) {
	broker := &fakeBroker{muscles: 6}
	c := dialFake(t, broker)

	if got := c.NumMuscles(); got != 6 {
		t.Fatalf("NumMuscles = %d, want 6", got)
	}
	ops := broker.requestOps()
	if len(ops) != 1 || ops[0] != opHello {
		t.Fatalf("request ops = %v, want [hello]", ops)
	}
	broker.mu.Lock()
	id := broker.requests[0].RequestID
	broker.mu.Unlock()
	if id == "" {
		t.Fatal("hello carried no request id")
	}
}

func TestMQTTDialZeroMuscles(t *testing.T) {
	broker := &fakeBroker{muscles: 0}
	d := &MQTTDialer{
		ConnFactory: func(*mqtt.ClientOptions) MQTTConn { return broker },
	}
	if _, err := d.Dial(context.Background(), "clonepiext"); err == nil {
		t.Fatal("Dial accepted a bridge with zero muscles")
	}
	if broker.IsConnected() {
		t.Fatal("broker connection leaked after failed dial")
	}
}

func TestMQTTContractions(t *testing.T) {
	broker := &fakeBroker{muscles: 3, readings: []float64{0.1, 0.2, 0.3}}
	c := dialFake(t, broker)

	got, err := c.Contractions(context.Background())
	if err != nil {
		t.Fatalf("Contractions: %v", err)
	}
	if got[0] != 0.1 || got[1] != 0.2 || got[2] != 0.3 {
		t.Fatalf("Contractions = %v", got)
	}
}

func TestMQTTContractionsLengthMismatch(t *testing.T) {
	broker := &fakeBroker{muscles: 3, readings: []float64{0.1}}
	c := dialFake(t, broker)

	if _, err := c.Contractions(context.Background()); err == nil {
		t.Fatal("accepted a readings vector shorter than the muscle count")
	}
}

func TestMQTTActuateAndLifecycle(t *testing.T) {
	broker := &fakeBroker{muscles: 3}
	c := dialFake(t, broker)

	ctx := context.Background()
	if err := c.Actuate(ctx, []float64{1, 0, -1}); err != nil {
		t.Fatalf("Actuate: %v", err)
	}
	if err := c.StartPressureGen(ctx); err != nil {
		t.Fatalf("StartPressureGen: %v", err)
	}
	if err := c.WaitForDesiredPressure(ctx); err != nil {
		t.Fatalf("WaitForDesiredPressure: %v", err)
	}
	if err := c.StopPressureGen(ctx); err != nil {
		t.Fatalf("StopPressureGen: %v", err)
	}

	want := []string{opHello, opActuate, opStartPressureGen, opWaitPressure, opStopPressureGen}
	got := broker.requestOps()
	if len(got) != len(want) {
		t.Fatalf("request ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("request ops = %v, want %v", got, want)
		}
	}

	broker.mu.Lock()
	actuate := broker.requests[1]
	broker.mu.Unlock()
	if len(actuate.Actions) != 3 || actuate.Actions[2] != -1 {
		t.Fatalf("actuate payload = %v", actuate.Actions)
	}
}

func TestMQTTBridgeRefusal(t *testing.T) {
	broker := &fakeBroker{muscles: 3, failOp: opActuate}
	c := dialFake(t, broker)

	err := c.Actuate(context.Background(), []float64{1, 1, 1})
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("Actuate = %v, want bridge refusal", err)
	}
}

func TestMQTTRequestTimeout(t *testing.T) {
	broker := &fakeBroker{muscles: 3, silentOp: opContractions}
	c := dialFake(t, broker)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Contractions(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Contractions = %v, want deadline exceeded", err)
	}
}

func TestMQTTCloseFailsInflight(t *testing.T) {
	broker := &fakeBroker{muscles: 3, silentOp: opContractions}
	c := dialFake(t, broker)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Contractions(context.Background())
		errCh <- err
	}()

	// Let the request get registered before closing underneath it.
	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("in-flight request = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight request never failed after Close")
	}

	// Requests after Close fail immediately, and Close stays idempotent.
	if _, err := c.Contractions(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("request after Close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
