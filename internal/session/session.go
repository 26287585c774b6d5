// Package session composes the sync core over a login lifecycle: one
// connection manager, one room aggregator, and a lazily built timeline
// store per open room.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haeun9634/chatsync/internal/api"
	"github.com/haeun9634/chatsync/internal/auth"
	"github.com/haeun9634/chatsync/internal/chat"
	"github.com/haeun9634/chatsync/internal/connmgr"
	"github.com/haeun9634/chatsync/internal/proto"
	"github.com/haeun9634/chatsync/internal/roomlist"
	"github.com/haeun9634/chatsync/internal/timeline"
)

// BroadcastTopic is the list-wide room digest topic. Some deployments
// fan out per room instead; both shapes end up in the aggregator.
const BroadcastTopic = "/topic/rooms"

// Options tune the session.
type Options struct {
	ReconnectDelay time.Duration
	PageSize       int
}

// Session is the façade the consumer layer talks to.
type Session struct {
	client   *api.Client
	mgr      *connmgr.Manager
	agg      *roomlist.Aggregator
	identity auth.Identity
	pageSize int
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	timelines map[string]*timeline.Store
	roomSubs  map[string]*connmgr.Subscription // timeline wiring, open rooms only
	feedSubs  map[string]*connmgr.Subscription // aggregator wiring, all known rooms
	roomCtxs  map[string]roomContext
	states    chan connmgr.State
	loggedIn  bool
	closed    bool
}

// New builds a Session. Call Login to bring it up.
func New(client *api.Client, transport connmgr.Transport, opts Options, logger *zerolog.Logger) *Session {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Session{
		client:    client,
		mgr:       connmgr.New(transport, opts.ReconnectDelay, logger),
		pageSize:  pageSize,
		log:       logger,
		timelines: make(map[string]*timeline.Store),
		roomSubs:  make(map[string]*connmgr.Subscription),
		feedSubs:  make(map[string]*connmgr.Subscription),
		roomCtxs:  make(map[string]roomContext),
		states:    make(chan connmgr.State, 16),
	}
}

// Login reads the local identity from the credential, loads the initial
// room list, and opens the push channel. The connection itself comes up
// asynchronously; watch States for the Connected transition.
func (s *Session) Login(ctx context.Context, credential string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return chat.ErrClosed
	}
	if s.loggedIn {
		s.mu.Unlock()
		return fmt.Errorf("already logged in")
	}
	s.loggedIn = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	id, err := auth.IdentityFromToken(credential)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.identity = id
	s.agg = roomlist.New(s.client, id.Username, s.log)

	if err := s.agg.LoadInitial(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	// Digest broadcasts and per-room feeds both land in the aggregator.
	s.mgr.Subscribe(BroadcastTopic, s.handleDigest)
	for _, room := range s.agg.Rooms() {
		s.ensureFeed(room.RoomID)
	}

	mgrStates, err := s.mgr.Open(s.ctx, credential)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	go s.watchStates(mgrStates)

	if s.log != nil {
		s.log.Info().Str("user", id.Username).Int("rooms", len(s.agg.Rooms())).Msg("session started")
	}
	return nil
}

// Identity returns the local user parsed from the credential.
func (s *Session) Identity() auth.Identity {
	return s.identity
}

// States signals connection-state transitions to the consumer layer.
func (s *Session) States() <-chan connmgr.State {
	return s.states
}

// Rooms returns the current recency-ordered room list.
func (s *Session) Rooms() []chat.RoomSummary {
	if s.agg == nil {
		return nil
	}
	return s.agg.Rooms()
}

// OpenRoom wires a timeline store to the room's topic, creating both on
// first open and reusing the cached store afterwards. The first history
// page is loaded before returning.
func (s *Session) OpenRoom(roomID string) (*timeline.Store, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, chat.ErrClosed
	}
	store, ok := s.timelines[roomID]
	if !ok {
		store = timeline.NewStore(roomID, s.client, s.pageSize, s.log)
		s.timelines[roomID] = store
	}
	if _, subscribed := s.roomSubs[roomID]; !subscribed {
		s.roomSubs[roomID] = s.mgr.Subscribe(proto.RoomTopic(roomID), s.makeTimelineHandler(store))
	}
	if old, exists := s.roomCtxs[roomID]; exists {
		old.cancel()
	}
	roomCtx, cancel := context.WithCancel(s.ctx)
	s.roomCtxs[roomID] = roomContext{ctx: roomCtx, cancel: cancel}
	s.mu.Unlock()

	s.ensureFeed(roomID)

	if _, err := store.LoadPage(roomCtx); err != nil {
		return store, err
	}
	return store, nil
}

// LoadOlder fetches the next history page for an open room. The fetch is
// cancelled if the room closes or the session ends first.
func (s *Session) LoadOlder(roomID string) ([]chat.Message, error) {
	s.mu.Lock()
	store, ok := s.timelines[roomID]
	roomCtx := s.roomContextLocked(roomID)
	s.mu.Unlock()
	if !ok {
		return nil, chat.NewError(chat.ErrCodeRoomUnknown, "room not open: "+roomID)
	}
	return store.LoadPage(roomCtx)
}

// CloseRoom releases the room's subscription and cancels in-flight
// fetches. The store stays cached for the life of the session.
func (s *Session) CloseRoom(roomID string) {
	s.mu.Lock()
	sub := s.roomSubs[roomID]
	delete(s.roomSubs, roomID)
	rc, hadCtx := s.roomCtxs[roomID]
	delete(s.roomCtxs, roomID)
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if hadCtx {
		rc.cancel()
	}
}

// Send publishes a text message to a room, rendering it locally first.
// It fails with ErrNotConnected while the push channel is down; nothing
// is queued on the caller's behalf.
func (s *Session) Send(ctx context.Context, roomID, text string) (chat.Message, error) {
	s.mu.Lock()
	store, ok := s.timelines[roomID]
	s.mu.Unlock()
	if !ok {
		return chat.Message{}, chat.NewError(chat.ErrCodeRoomUnknown, "room not open: "+roomID)
	}
	if s.mgr.State() != connmgr.StateConnected {
		return chat.Message{}, chat.ErrNotConnected
	}

	msg := store.SendOptimistic(timeline.Draft{
		SenderID:   s.identity.UserID,
		SenderName: s.identity.Username,
		Type:       chat.MessageTalk,
		Content:    text,
	})
	s.agg.MergeUpdate(msg)

	payload, err := proto.EncodeMessage(msg)
	if err != nil {
		return msg, err
	}
	if err := s.mgr.Publish(ctx, proto.RoomTopic(roomID), payload); err != nil {
		return msg, err
	}
	return msg, nil
}

// LeaveRoom announces the exit on the room topic, triggers the
// membership call, and drops the room locally.
func (s *Session) LeaveRoom(ctx context.Context, roomID string) error {
	exit := chat.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   s.identity.UserID,
		SenderName: s.identity.Username,
		Type:       chat.MessageExit,
		Content:    chat.SystemText(chat.MessageExit, s.identity.Username),
		SentAt:     time.Now(),
	}
	if payload, err := proto.EncodeMessage(exit); err == nil {
		// Best effort; the membership call is what actually removes us.
		if err := s.mgr.Publish(ctx, proto.RoomTopic(roomID), payload); err != nil && s.log != nil {
			s.log.Warn().Err(err).Str("room", roomID).Msg("exit publish failed")
		}
	}
	if err := s.client.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}

	s.CloseRoom(roomID)
	s.agg.Remove(roomID)
	s.mu.Lock()
	feed := s.feedSubs[roomID]
	delete(s.feedSubs, roomID)
	delete(s.timelines, roomID)
	s.mu.Unlock()
	if feed != nil {
		feed.Cancel()
	}
	return nil
}

// CreateRoom asks the backend for a new room. The room shows up via the
// room-list feed.
func (s *Session) CreateRoom(ctx context.Context, name string) error {
	return s.client.CreateRoom(ctx, name)
}

// Invite adds a user to a room; the ENTER event follows on the topic.
func (s *Session) Invite(ctx context.Context, roomID, userID string) error {
	return s.client.InviteUser(ctx, roomID, userID)
}

// Logout tears everything down: the push channel stops reconnecting and
// all stores are discarded. The session cannot be reused.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	ctxs := s.roomCtxs
	s.timelines = make(map[string]*timeline.Store)
	s.roomSubs = make(map[string]*connmgr.Subscription)
	s.feedSubs = make(map[string]*connmgr.Subscription)
	s.roomCtxs = make(map[string]roomContext)
	s.mu.Unlock()

	for _, rc := range ctxs {
		rc.cancel()
	}
	if cancel != nil {
		cancel()
	}
	s.mgr.Close()
	if s.log != nil {
		s.log.Info().Msg("session closed")
	}
}

// ensureFeed keeps exactly one aggregator-side subscription per known
// room, covering the per-room fan-out shape.
func (s *Session) ensureFeed(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.feedSubs[roomID]; ok {
		return
	}
	s.feedSubs[roomID] = s.mgr.Subscribe(proto.RoomTopic(roomID), s.handleRoomEvent)
}

// makeTimelineHandler decodes room-topic frames into the store. A
// malformed payload is dropped with a diagnostic, never a crash.
func (s *Session) makeTimelineHandler(store *timeline.Store) connmgr.Handler {
	return func(topic string, payload []byte) {
		msg, err := proto.DecodeMessage(payload)
		if err != nil {
			if s.log != nil {
				s.log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed event")
			}
			return
		}
		store.MergeLive(msg)
	}
}

// handleRoomEvent feeds per-room events into the aggregator.
func (s *Session) handleRoomEvent(topic string, payload []byte) {
	msg, err := proto.DecodeMessage(payload)
	if err != nil {
		if s.log != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed event")
		}
		return
	}
	s.agg.MergeUpdate(msg)
}

// handleDigest feeds list-wide broadcasts into the aggregator and makes
// sure newly discovered rooms get a feed subscription.
func (s *Session) handleDigest(topic string, payload []byte) {
	digests, err := proto.DecodeDigests(payload)
	if err != nil {
		if s.log != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed digest")
		}
		return
	}
	for _, d := range digests {
		s.agg.MergeDigest(d)
		s.ensureFeed(d.RoomID)
	}
}

// watchStates forwards connection transitions to the consumer and
// re-fetches the newest page of every open room after a reconnect,
// closing the gap left by events sent while the channel was down.
func (s *Session) watchStates(mgrStates <-chan connmgr.State) {
	wasConnected := false
	for state := range mgrStates {
		if state == connmgr.StateConnected {
			if wasConnected {
				s.refreshOpenRooms()
			}
			wasConnected = true
		}
		select {
		case s.states <- state:
		default:
		}
	}
	close(s.states)
}

func (s *Session) refreshOpenRooms() {
	s.mu.Lock()
	stores := make([]*timeline.Store, 0, len(s.roomSubs))
	ctxs := make([]context.Context, 0, len(s.roomSubs))
	for roomID := range s.roomSubs {
		if store, ok := s.timelines[roomID]; ok {
			stores = append(stores, store)
			ctxs = append(ctxs, s.roomContextLocked(roomID))
		}
	}
	s.mu.Unlock()

	for i, store := range stores {
		if err := store.Refresh(ctxs[i]); err != nil && s.log != nil {
			s.log.Warn().Err(err).Str("room", store.RoomID()).Msg("post-reconnect refresh failed")
		}
	}
}

// roomContext ties an open room's fetches to its close lifecycle.
type roomContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Session) roomContextLocked(roomID string) context.Context {
	if rc, ok := s.roomCtxs[roomID]; ok {
		return rc.ctx
	}
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
