// Package timeline keeps the ordered, deduplicated message sequence for
// one open room. Page-fetch batches, push-channel events, and local
// optimistic sends all funnel through the same id-keyed merge, which is
// what makes their interleaving safe.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haeun9634/chatsync/internal/chat"
)

// PageFetcher loads one page of historical messages for a room.
type PageFetcher interface {
	FetchMessages(ctx context.Context, roomID string, page, size int) ([]chat.Message, error)
}

// Draft is a local send intent before it becomes a Message.
type Draft struct {
	SenderID   string
	SenderName string
	Type       chat.MessageType
	Content    string
}

// Store holds one room's timeline.
type Store struct {
	roomID   string
	fetcher  PageFetcher
	pageSize int
	log      *zerolog.Logger

	mu       sync.Mutex
	messages []chat.Message
	ids      map[string]struct{}
	nextPage int
	hasMore  bool
	loading  bool
}

// NewStore builds an empty timeline for roomID.
func NewStore(roomID string, fetcher PageFetcher, pageSize int, logger *zerolog.Logger) *Store {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Store{
		roomID:   roomID,
		fetcher:  fetcher,
		pageSize: pageSize,
		log:      logger,
		ids:      make(map[string]struct{}),
		hasMore:  true,
	}
}

// RoomID returns the owning room's id.
func (s *Store) RoomID() string {
	return s.roomID
}

// LoadPage fetches the next uncovered history page and merges it in.
// The cursor only advances on success, so a failed fetch leaves the
// store unchanged and the same page is requested on retry. An empty
// page ends pagination; later calls are no-ops.
func (s *Store) LoadPage(ctx context.Context) ([]chat.Message, error) {
	s.mu.Lock()
	if !s.hasMore {
		s.mu.Unlock()
		return nil, nil
	}
	if s.loading {
		s.mu.Unlock()
		return nil, nil
	}
	s.loading = true
	page := s.nextPage
	s.mu.Unlock()

	batch, err := s.fetcher.FetchMessages(ctx, s.roomID, page, s.pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		return nil, fmt.Errorf("load page %d: %w", page, err)
	}
	// A fetch that completes after cancellation must not be merged.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(batch) == 0 {
		s.hasMore = false
		return nil, nil
	}
	for _, msg := range batch {
		s.mergeLocked(msg)
	}
	s.nextPage = page + 1
	return batch, nil
}

// Refresh re-fetches the newest page without touching the pagination
// cursor. Used after a reconnect to recover events sent while the push
// channel was down; the id-keyed merge makes it idempotent.
func (s *Store) Refresh(ctx context.Context) error {
	batch, err := s.fetcher.FetchMessages(ctx, s.roomID, 0, s.pageSize)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range batch {
		s.mergeLocked(msg)
	}
	return nil
}

// MergeLive absorbs one push-channel message. Duplicates are ignored
// silently; that is a normal outcome, not an error.
func (s *Store) MergeLive(msg chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(msg)
}

// SendOptimistic synthesizes a client-side Message with a locally
// generated id so the sender sees it before server confirmation. The
// server echoes the same id back, which dedups as a no-op.
func (s *Store) SendOptimistic(d Draft) chat.Message {
	msg := chat.Message{
		ID:         uuid.NewString(),
		RoomID:     s.roomID,
		SenderID:   d.SenderID,
		SenderName: d.SenderName,
		Type:       d.Type,
		Content:    d.Content,
		SentAt:     time.Now(),
	}
	if msg.Type == "" {
		msg.Type = chat.MessageTalk
	}
	if msg.Content == "" && msg.Type != chat.MessageTalk {
		msg.Content = chat.SystemText(msg.Type, msg.SenderName)
	}

	s.mu.Lock()
	s.mergeLocked(msg)
	s.mu.Unlock()
	return msg
}

// Messages returns a snapshot of the current sequence, ascending by
// send time.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// HasMore reports whether another history page may exist.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// mergeLocked inserts msg unless its id is already present. Insertion
// is by binary search on SentAt, after any existing equal timestamps,
// which keeps ordering non-decreasing and ties stable.
func (s *Store) mergeLocked(msg chat.Message) bool {
	if _, dup := s.ids[msg.ID]; dup {
		if s.log != nil {
			s.log.Debug().Str("room", s.roomID).Str("id", msg.ID).Msg("duplicate ignored")
		}
		return false
	}
	s.ids[msg.ID] = struct{}{}

	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].SentAt.After(msg.SentAt)
	})
	s.messages = append(s.messages, chat.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
	return true
}
