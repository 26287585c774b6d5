package connmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport hands out scripted fakeConns and records every dial.
type fakeTransport struct {
	mu       sync.Mutex
	dialErrs int // fail this many dials before succeeding
	dials    chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dials: make(chan *fakeConn, 8)}
}

func (t *fakeTransport) Dial(ctx context.Context, credential string) (Conn, error) {
	t.mu.Lock()
	if t.dialErrs > 0 {
		t.dialErrs--
		t.mu.Unlock()
		return nil, errors.New("dial refused")
	}
	t.mu.Unlock()

	conn := newFakeConn()
	t.dials <- conn
	return conn, nil
}

type publishRecord struct {
	topic   string
	payload []byte
}

type fakeConn struct {
	mu        sync.Mutex
	subs      []string
	published []publishRecord

	frames chan Frame
	dead   chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan Frame, 16),
		dead:   make(chan struct{}),
	}
}

func (c *fakeConn) Subscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, topic)
	return nil
}

func (c *fakeConn) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s == topic {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	return nil
}

func (c *fakeConn) Publish(ctx context.Context, topic string, payload []byte) error {
	select {
	case <-c.dead:
		return errors.New("connection dead")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishRecord{topic: topic, payload: payload})
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.dead:
		return Frame{}, errors.New("connection dead")
	case f := <-c.frames:
		return f, nil
	}
}

func (c *fakeConn) Close() error {
	c.kill()
	return nil
}

// kill simulates an unexpected drop.
func (c *fakeConn) kill() {
	c.once.Do(func() { close(c.dead) })
}

func (c *fakeConn) deliver(topic string, payload []byte) {
	c.frames <- Frame{Topic: topic, Payload: payload}
}

func (c *fakeConn) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.subs))
	copy(out, c.subs)
	return out
}

func mustState(t *testing.T, states <-chan State, want State) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s, ok := <-states:
			if !ok {
				t.Fatalf("state channel closed while waiting for %q", want)
			}
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %q not observed", want)
		}
	}
}

func mustDial(t *testing.T, transport *fakeTransport) *fakeConn {
	t.Helper()

	select {
	case conn := <-transport.dials:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no dial observed")
		return nil
	}
}
