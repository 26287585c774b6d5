package proto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haeun9634/chatsync/internal/chat"
)

// The push channel speaks a small JSON action protocol. Clients send
// Inbound frames; the server pushes Outbound frames tagged with the topic
// the payload belongs to.

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPublish     = "publish"
	ActionMessage     = "message"
)

// Inbound is the client-to-server frame.
type Inbound struct {
	Action  string          `json:"action"`
	Topic   string          `json:"topic,omitempty"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the server-to-client frame.
type Outbound struct {
	Action  string          `json:"action"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RoomTopic is the push-channel topic carrying one room's events.
func RoomTopic(roomID string) string {
	return "/topic/" + roomID
}

// TopicRoomID extracts the room id from a room topic, if it is one.
func TopicRoomID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, "/topic/")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// flexString decodes JSON strings and numbers into one canonical string.
// Backend revisions disagree on whether ids are numeric.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexTime decodes RFC3339 strings and unix-milli numbers.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(data) == 0 || s == "null" || s == `""` {
		f.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			// Some revisions emit timestamps without a zone.
			t, err = time.Parse("2006-01-02T15:04:05", raw)
			if err != nil {
				return err
			}
		}
		f.Time = t
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	f.Time = time.UnixMilli(ms)
	return nil
}

// wireMessage tolerates every observed field variant of a room event.
type wireMessage struct {
	ID         flexString `json:"id"`
	Type       string     `json:"type"`
	RoomID     flexString `json:"roomId"`
	ChatRoomID flexString `json:"chatRoomId"`
	SenderID   flexString `json:"senderId"`
	Sender     flexString `json:"sender"`
	SenderName flexString `json:"senderName"`
	Content    string     `json:"content"`
	Text       string     `json:"message"`
	SendAt     flexTime   `json:"sendAt"`
	SentAt     flexTime   `json:"sentAt"`
	CreatedAt  flexTime   `json:"createdAt"`
}

// DecodeMessage normalizes one room-topic payload into the canonical
// Message shape. It is the only place wire variants are resolved; nothing
// downstream sees raw payloads. A missing id is synthesized, never fatal.
func DecodeMessage(data []byte) (chat.Message, error) {
	return decodeMessage(data, "")
}

// DecodeRoomMessage is DecodeMessage for payloads already scoped to a
// room: records without an explicit room id inherit roomID.
func DecodeRoomMessage(roomID string, data []byte) (chat.Message, error) {
	return decodeMessage(data, roomID)
}

func decodeMessage(data []byte, fallbackRoom string) (chat.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", chat.ErrMalformedPayload, err)
	}

	msg := chat.Message{
		ID:         string(w.ID),
		RoomID:     firstOf(w.RoomID, w.ChatRoomID),
		SenderID:   firstOf(w.SenderID, w.Sender),
		SenderName: firstOf(w.SenderName, w.Sender),
		Type:       chat.MessageType(w.Type),
		Content:    w.Content,
		SentAt:     firstTime(w.SendAt, w.SentAt, w.CreatedAt),
	}
	if msg.RoomID == "" {
		msg.RoomID = fallbackRoom
	}
	if msg.RoomID == "" {
		return chat.Message{}, fmt.Errorf("%w: missing room id", chat.ErrMalformedPayload)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Type == "" {
		msg.Type = chat.MessageTalk
	}
	if msg.Content == "" {
		if w.Text != "" {
			msg.Content = w.Text
		} else if msg.Type != chat.MessageTalk {
			msg.Content = chat.SystemText(msg.Type, msg.SenderName)
		}
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	return msg, nil
}

// EncodeMessage renders the canonical outbound payload for a publish.
func EncodeMessage(msg chat.Message) ([]byte, error) {
	return json.Marshal(struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		RoomID     string `json:"roomId"`
		SenderID   string `json:"senderId"`
		SenderName string `json:"senderName"`
		Content    string `json:"content"`
		SendAt     string `json:"sendAt"`
	}{
		ID:         msg.ID,
		Type:       string(msg.Type),
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		SendAt:     msg.SentAt.UTC().Format(time.RFC3339),
	})
}

func firstOf(values ...flexString) string {
	for _, v := range values {
		if v != "" {
			return string(v)
		}
	}
	return ""
}

func firstTime(values ...flexTime) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v.Time
		}
	}
	return time.Time{}
}
