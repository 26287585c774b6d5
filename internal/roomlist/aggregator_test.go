package roomlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haeun9634/chatsync/internal/chat"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeLister struct {
	rooms []chat.RoomSummary
	err   error
}

func (f *fakeLister) FetchRooms(ctx context.Context) ([]chat.RoomSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rooms, nil
}

func event(roomID string, typ chat.MessageType, sender string, offset time.Duration) chat.Message {
	return chat.Message{
		ID:         "ev-" + roomID,
		RoomID:     roomID,
		SenderName: sender,
		Type:       typ,
		Content:    "content " + roomID,
		SentAt:     t0.Add(offset),
	}
}

func roomIDs(rooms []chat.RoomSummary) []string {
	out := make([]string, len(rooms))
	for i, r := range rooms {
		out[i] = r.RoomID
	}
	return out
}

func assertRoomOrder(t *testing.T, agg *Aggregator, want ...string) {
	t.Helper()

	got := roomIDs(agg.Rooms())
	if len(got) != len(want) {
		t.Fatalf("rooms %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rooms %v, want %v", got, want)
		}
	}
}

func TestLoadInitialSortsByRecency(t *testing.T) {
	lister := &fakeLister{rooms: []chat.RoomSummary{
		{RoomID: "old", LatestTime: t0},
		{RoomID: "quiet"}, // no activity, sorts last
		{RoomID: "new", LatestTime: t0.Add(time.Hour)},
	}}
	agg := New(lister, "alice", nil)

	if err := agg.LoadInitial(context.Background()); err != nil {
		t.Fatalf("load initial: %v", err)
	}
	assertRoomOrder(t, agg, "new", "old", "quiet")
}

func TestLoadInitialFailureSurfaces(t *testing.T) {
	lister := &fakeLister{err: errors.New("boom")}
	agg := New(lister, "alice", nil)

	if err := agg.LoadInitial(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(agg.Rooms()) != 0 {
		t.Fatal("failed load must not change the list")
	}
}

func TestMergeUpdateRepositionsByRecency(t *testing.T) {
	agg := New(&fakeLister{}, "alice", nil)
	agg.MergeDigest(chat.RoomSummary{RoomID: "1", LatestTime: t0})

	agg.MergeUpdate(event("2", chat.MessageTalk, "bob", time.Hour))

	assertRoomOrder(t, agg, "2", "1")
	rooms := agg.Rooms()
	if rooms[0].LatestMessage != "content 2" {
		t.Fatalf("latest message not updated: %+v", rooms[0])
	}
	if !rooms[0].LatestTime.Equal(t0.Add(time.Hour)) {
		t.Fatalf("latest time not updated: %+v", rooms[0])
	}
}

func TestMergeUpdateSynthesizesUnknownRoom(t *testing.T) {
	agg := New(&fakeLister{}, "alice", nil)

	agg.MergeUpdate(event("ghost", chat.MessageTalk, "bob", 0))

	rooms := agg.Rooms()
	if len(rooms) != 1 || rooms[0].RoomID != "ghost" {
		t.Fatalf("expected bare summary for unknown room, got %v", rooms)
	}
}

func TestExitByLocalUserRemovesRoom(t *testing.T) {
	agg := New(&fakeLister{}, "alice", nil)
	agg.MergeDigest(chat.RoomSummary{RoomID: "1", Name: "general", LatestTime: t0})
	agg.MergeDigest(chat.RoomSummary{RoomID: "2", Name: "random", LatestTime: t0.Add(time.Minute)})

	agg.MergeUpdate(event("1", chat.MessageExit, "alice", time.Hour))

	assertRoomOrder(t, agg, "2")
}

func TestExitByOtherUserKeepsRoom(t *testing.T) {
	agg := New(&fakeLister{}, "alice", nil)
	agg.MergeDigest(chat.RoomSummary{RoomID: "1", LatestTime: t0})

	agg.MergeUpdate(event("1", chat.MessageExit, "bob", time.Hour))

	rooms := agg.Rooms()
	if len(rooms) != 1 {
		t.Fatalf("room removed on someone else's exit: %v", rooms)
	}
	if rooms[0].LatestType != chat.MessageExit {
		t.Fatalf("exit not recorded as latest activity: %+v", rooms[0])
	}
}

func TestMergeDigestKeepsExistingFields(t *testing.T) {
	agg := New(&fakeLister{}, "alice", nil)
	agg.MergeDigest(chat.RoomSummary{
		RoomID:       "1",
		Name:         "general",
		Participants: []chat.Profile{{ID: "2", Name: "bob", Emoji: "🦊"}},
	})

	// A sparse digest only carries what changed.
	agg.MergeDigest(chat.RoomSummary{RoomID: "1", LatestMessage: "hi", LatestTime: t0})

	rooms := agg.Rooms()
	if rooms[0].Name != "general" {
		t.Fatalf("name lost on sparse digest: %+v", rooms[0])
	}
	if len(rooms[0].Participants) != 1 {
		t.Fatalf("participants lost on sparse digest: %+v", rooms[0])
	}
	if rooms[0].LatestMessage != "hi" {
		t.Fatalf("latest message not applied: %+v", rooms[0])
	}
}

func TestInactiveRoomsSortLast(t *testing.T) {
	agg := New(&fakeLister{}, "alice", nil)
	agg.MergeDigest(chat.RoomSummary{RoomID: "quiet"})
	agg.MergeDigest(chat.RoomSummary{RoomID: "busy", LatestTime: t0})

	assertRoomOrder(t, agg, "busy", "quiet")
}
