// Package roomlist maintains the recency-sorted set of rooms the user
// belongs to, annotated with each room's latest message.
package roomlist

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/haeun9634/chatsync/internal/chat"
)

// RoomLister fetches the authenticated user's room set.
type RoomLister interface {
	FetchRooms(ctx context.Context) ([]chat.RoomSummary, error)
}

// Aggregator holds the room list, ordered by latest activity descending
// with inactive rooms last. Live events reposition rooms; an EXIT by the
// local user removes the room entirely.
type Aggregator struct {
	lister    RoomLister
	localUser string
	log       *zerolog.Logger

	mu    sync.Mutex
	rooms []chat.RoomSummary
}

// New builds an empty Aggregator. localUser is the sender name the exit
// rule matches against.
func New(lister RoomLister, localUser string, logger *zerolog.Logger) *Aggregator {
	return &Aggregator{lister: lister, localUser: localUser, log: logger}
}

// LoadInitial replaces the full room list from the collaborator. The
// fetched ordering is not trusted; the list is re-sorted here.
func (a *Aggregator) LoadInitial(ctx context.Context) error {
	rooms, err := a.lister.FetchRooms(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sorted := make([]chat.RoomSummary, len(rooms))
	copy(sorted, rooms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return moreRecent(sorted[i], sorted[j])
	})

	a.mu.Lock()
	a.rooms = sorted
	a.mu.Unlock()
	return nil
}

// MergeUpdate absorbs one live room event, whichever subscription shape
// delivered it. An unknown room gets a bare summary; a room the local
// user exited is dropped.
func (a *Aggregator) MergeUpdate(ev chat.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ev.Type == chat.MessageExit && ev.SenderName == a.localUser {
		a.removeLocked(ev.RoomID)
		if a.log != nil {
			a.log.Debug().Str("room", ev.RoomID).Msg("left room, dropped from list")
		}
		return
	}

	room, ok := a.takeLocked(ev.RoomID)
	if !ok {
		// Room created elsewhere before our list caught up.
		room = chat.RoomSummary{RoomID: ev.RoomID}
	}
	room.LatestMessage = ev.Content
	room.LatestTime = ev.SentAt
	room.LatestType = ev.Type
	a.insertLocked(room)
}

// MergeDigest absorbs a room digest from a list-wide broadcast. Fields
// absent from the digest keep their current values.
func (a *Aggregator) MergeDigest(d chat.RoomSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()

	room, ok := a.takeLocked(d.RoomID)
	if !ok {
		room = chat.RoomSummary{RoomID: d.RoomID}
	}
	if d.Name != "" {
		room.Name = d.Name
	}
	if d.LatestMessage != "" {
		room.LatestMessage = d.LatestMessage
	}
	if !d.LatestTime.IsZero() {
		room.LatestTime = d.LatestTime
	}
	if d.LatestType != "" {
		room.LatestType = d.LatestType
	}
	if len(d.Participants) > 0 {
		room.Participants = d.Participants
	}
	a.insertLocked(room)
}

// Remove drops a room from the list.
func (a *Aggregator) Remove(roomID string) {
	a.mu.Lock()
	a.removeLocked(roomID)
	a.mu.Unlock()
}

// Rooms returns a snapshot in display order.
func (a *Aggregator) Rooms() []chat.RoomSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]chat.RoomSummary, len(a.rooms))
	copy(out, a.rooms)
	return out
}

// takeLocked removes and returns the summary for roomID, if present.
func (a *Aggregator) takeLocked(roomID string) (chat.RoomSummary, bool) {
	for i, r := range a.rooms {
		if r.RoomID == roomID {
			a.rooms = append(a.rooms[:i], a.rooms[i+1:]...)
			return r, true
		}
	}
	return chat.RoomSummary{}, false
}

func (a *Aggregator) removeLocked(roomID string) {
	for i, r := range a.rooms {
		if r.RoomID == roomID {
			a.rooms = append(a.rooms[:i], a.rooms[i+1:]...)
			return
		}
	}
}

// insertLocked places room at its recency position. This is a stable
// re-insertion of one element, not a re-sort of the rest.
func (a *Aggregator) insertLocked(room chat.RoomSummary) {
	i := sort.Search(len(a.rooms), func(i int) bool {
		return !moreRecent(a.rooms[i], room)
	})
	a.rooms = append(a.rooms, chat.RoomSummary{})
	copy(a.rooms[i+1:], a.rooms[i:])
	a.rooms[i] = room
}

// moreRecent orders by latest activity descending, rooms without any
// activity last.
func moreRecent(a, b chat.RoomSummary) bool {
	if !a.HasActivity() {
		return false
	}
	if !b.HasActivity() {
		return true
	}
	return a.LatestTime.After(b.LatestTime)
}
