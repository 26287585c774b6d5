package connmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/haeun9634/chatsync/internal/chat"
)

// Handler consumes raw frames delivered on a subscribed topic.
type Handler func(topic string, payload []byte)

// Subscription is one (topic, handler) registration. The Manager replays
// it on every reconnect until Cancel is called.
type Subscription struct {
	Topic string

	id  uint64
	mgr *Manager
}

// Cancel releases the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.mgr.unsubscribe(s)
}

// Manager owns one logical push-channel connection per session. It dials,
// watches the connection, and redials with a constant delay after an
// unexpected drop. Every registered subscription is replayed in
// registration order before the state is published as Connected, so no
// consumer ever observes Connected with a missing subscription.
type Manager struct {
	transport Transport
	delay     time.Duration
	log       *zerolog.Logger

	mu         sync.Mutex
	state      State
	conn       Conn
	subs       []*Subscription
	handlers   map[uint64]Handler
	nextSubID  uint64
	credential string
	opened     bool
	closed     bool
	cancelRun  context.CancelFunc
	states     chan State
	runDone    chan struct{}
}

// New builds a Manager over the given transport. delay is the constant
// wait between reconnect attempts.
func New(transport Transport, delay time.Duration, logger *zerolog.Logger) *Manager {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Manager{
		transport: transport,
		delay:     delay,
		log:       logger,
		state:     StateDisconnected,
		handlers:  make(map[uint64]Handler),
		states:    make(chan State, 16),
		runDone:   make(chan struct{}),
	}
}

// Open establishes the channel and returns the state signal. Dial
// failures do not surface as errors here; the Manager falls into
// Reconnecting and keeps retrying until Close.
func (m *Manager) Open(ctx context.Context, credential string) (<-chan State, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, chat.ErrClosed
	}
	if m.opened {
		m.mu.Unlock()
		return m.states, nil
	}
	m.opened = true
	m.credential = credential
	runCtx, cancel := context.WithCancel(ctx)
	m.cancelRun = cancel
	m.mu.Unlock()

	go m.run(runCtx)
	return m.states, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a handler for a topic. While the channel is not
// connected the registration is queued and activated on the next
// successful connect.
func (m *Manager) Subscribe(topic string, handler Handler) *Subscription {
	m.mu.Lock()
	m.nextSubID++
	sub := &Subscription{Topic: topic, id: m.nextSubID, mgr: m}
	m.subs = append(m.subs, sub)
	m.handlers[sub.id] = handler
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if connected && conn != nil {
		// Best effort: a failure here drops the connection shortly and
		// the reconnect replay picks the topic up again.
		if err := conn.Subscribe(context.Background(), topic); err != nil && m.log != nil {
			m.log.Warn().Err(err).Str("topic", topic).Msg("live subscribe failed")
		}
	}
	return sub
}

// Publish sends a payload to a topic. It fails with ErrNotConnected
// unless the state is Connected; queueing is the caller's policy.
func (m *Manager) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return chat.ErrNotConnected
	}
	if err := conn.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close tears the connection down for good: reconnection stops, all
// subscriptions are released, and the state goes terminally Disconnected.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancelRun
	conn := m.conn
	m.conn = nil
	m.subs = nil
	m.handlers = make(map[uint64]Handler)
	opened := m.opened
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if opened {
		<-m.runDone
	}
	m.setState(StateDisconnected)
	close(m.states)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.runDone)

	first := true
	for {
		if ctx.Err() != nil || m.isClosed() {
			return
		}
		if first {
			m.setState(StateConnecting)
		} else {
			m.setState(StateReconnecting)
		}
		first = false

		conn, err := m.transport.Dial(ctx, m.credential)
		if err != nil {
			if m.log != nil {
				m.log.Warn().Err(err).Dur("retry_in", m.delay).Msg("dial failed")
			}
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		if err := m.replaySubscriptions(ctx, conn); err != nil {
			if m.log != nil {
				m.log.Warn().Err(err).Msg("subscription replay failed")
			}
			_ = conn.Close()
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()
		m.setState(StateConnected)
		if m.log != nil {
			m.log.Info().Msg("push channel connected")
		}

		err = m.readLoop(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil || m.isClosed() {
			return
		}
		if m.log != nil {
			m.log.Warn().Err(err).Dur("retry_in", m.delay).Msg("push channel dropped")
		}
		if !m.sleep(ctx) {
			return
		}
	}
}

// replaySubscriptions activates every registered topic in registration
// order. The Connected state is only published after this succeeds.
func (m *Manager) replaySubscriptions(ctx context.Context, conn Conn) error {
	m.mu.Lock()
	topics := make([]string, 0, len(m.subs))
	seen := make(map[string]struct{}, len(m.subs))
	for _, s := range m.subs {
		if _, dup := seen[s.Topic]; dup {
			continue
		}
		seen[s.Topic] = struct{}{}
		topics = append(topics, s.Topic)
	}
	m.mu.Unlock()

	for _, topic := range topics {
		if err := conn.Subscribe(ctx, topic); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		m.dispatch(frame)
	}
}

func (m *Manager) dispatch(frame Frame) {
	m.mu.Lock()
	var handlers []Handler
	for _, s := range m.subs {
		if s.Topic == frame.Topic {
			if h, ok := m.handlers[s.id]; ok {
				handlers = append(handlers, h)
			}
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(frame.Topic, frame.Payload)
	}
}

func (m *Manager) unsubscribe(sub *Subscription) {
	m.mu.Lock()
	found := false
	for i, s := range m.subs {
		if s.id == sub.id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			delete(m.handlers, s.id)
			found = true
			break
		}
	}
	var stillWanted bool
	for _, s := range m.subs {
		if s.Topic == sub.Topic {
			stillWanted = true
			break
		}
	}
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if found && !stillWanted && connected && conn != nil {
		_ = conn.Unsubscribe(context.Background(), sub.Topic)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	closed := m.closed
	m.mu.Unlock()

	if closed && s != StateDisconnected {
		return
	}
	select {
	case m.states <- s:
	default:
		// Drop if the consumer is slow; State() stays authoritative.
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// sleep waits the constant reconnect delay, honoring cancellation.
func (m *Manager) sleep(ctx context.Context) bool {
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
