package proto

import (
	"errors"
	"testing"
	"time"

	"github.com/haeun9634/chatsync/internal/chat"
)

func TestDecodeMessageCanonicalShape(t *testing.T) {
	payload := []byte(`{
		"id": "m1", "type": "TALK", "roomId": "7",
		"senderId": "2", "senderName": "bob",
		"content": "hello", "sendAt": "2025-03-01T12:00:00Z"
	}`)

	msg, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.ID != "m1" || msg.RoomID != "7" || msg.SenderName != "bob" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Type != chat.MessageTalk || msg.Content != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if !msg.SentAt.Equal(want) {
		t.Fatalf("sentAt %v, want %v", msg.SentAt, want)
	}
}

func TestDecodeMessageFieldVariants(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"sender instead of senderName", `{"id":"m1","chatRoomId":7,"sender":"bob","message":"hello","createdAt":"2025-03-01T12:00:00Z"}`},
		{"numeric ids", `{"id":"m1","roomId":7,"senderId":2,"senderName":"bob","content":"hello","sendAt":"2025-03-01T12:00:00Z"}`},
		{"unix milli timestamp", `{"id":"m1","roomId":"7","senderName":"bob","content":"hello","sendAt":1740830400000}`},
		{"zoneless timestamp", `{"id":"m1","roomId":"7","senderName":"bob","content":"hello","sendAt":"2025-03-01T12:00:00"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tc.payload))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.RoomID != "7" {
				t.Fatalf("roomId not normalized: %+v", msg)
			}
			if msg.SenderName != "bob" {
				t.Fatalf("senderName not normalized: %+v", msg)
			}
			if msg.Content != "hello" {
				t.Fatalf("content not normalized: %+v", msg)
			}
			if msg.SentAt.IsZero() {
				t.Fatalf("sentAt not normalized: %+v", msg)
			}
		})
	}
}

func TestDecodeMessageSynthesizesMissingID(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"roomId":"7","senderName":"bob","content":"hi"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("missing id was not synthesized")
	}

	other, _ := DecodeMessage([]byte(`{"roomId":"7","senderName":"bob","content":"hi"}`))
	if other.ID == msg.ID {
		t.Fatal("synthesized ids must be unique")
	}
}

func TestDecodeMessageSynthesizesSystemText(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"id":"m1","roomId":"7","type":"EXIT","senderName":"bob"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Content == "" {
		t.Fatal("no system text for membership event")
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	for _, payload := range []string{`not json`, `{"content":"no room"}`} {
		if _, err := DecodeMessage([]byte(payload)); !errors.Is(err, chat.ErrMalformedPayload) {
			t.Fatalf("payload %q: expected ErrMalformedPayload, got %v", payload, err)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := chat.Message{
		ID: "m1", RoomID: "7", SenderID: "2", SenderName: "bob",
		Type: chat.MessageTalk, Content: "hello",
		SentAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := EncodeMessage(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || !out.SentAt.Equal(in.SentAt) || out.Content != in.Content {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestRoomTopic(t *testing.T) {
	topic := RoomTopic("42")
	if topic != "/topic/42" {
		t.Fatalf("unexpected topic %q", topic)
	}
	id, ok := TopicRoomID(topic)
	if !ok || id != "42" {
		t.Fatalf("TopicRoomID(%q) = %q, %v", topic, id, ok)
	}
	if _, ok := TopicRoomID("/other/42"); ok {
		t.Fatal("non-room topic accepted")
	}
}

func TestDecodeDigestsBothShapes(t *testing.T) {
	single := []byte(`{"chatRoomId":1,"chatRoomName":"general","latestMessage":"hi","lastestTime":"2025-03-01T12:00:00Z"}`)
	digests, err := DecodeDigests(single)
	if err != nil {
		t.Fatalf("single digest: %v", err)
	}
	if len(digests) != 1 || digests[0].RoomID != "1" || digests[0].Name != "general" {
		t.Fatalf("unexpected digests: %+v", digests)
	}
	if digests[0].LatestTime.IsZero() {
		t.Fatal("misspelled time variant not normalized")
	}

	list := []byte(`[
		{"roomId":"1","name":"general","userProfiles":[{"id":2,"name":"bob","emoji":"🦊"}]},
		{"chatRoomId":2,"chatRoomName":"random","latestMessageTime":"2025-03-01T13:00:00Z"}
	]`)
	digests, err = DecodeDigests(list)
	if err != nil {
		t.Fatalf("digest list: %v", err)
	}
	if len(digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(digests))
	}
	if len(digests[0].Participants) != 1 || digests[0].Participants[0].Name != "bob" {
		t.Fatalf("participants not normalized: %+v", digests[0])
	}
	if digests[1].Name != "random" || digests[1].LatestTime.IsZero() {
		t.Fatalf("variant fields not normalized: %+v", digests[1])
	}
}
