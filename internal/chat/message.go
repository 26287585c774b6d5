package chat

import "time"

// MessageType distinguishes chat content from membership-change events.
type MessageType string

const (
	// MessageTalk is a regular text message.
	MessageTalk MessageType = "TALK"
	// MessageEnter announces that a user joined the room.
	MessageEnter MessageType = "ENTER"
	// MessageExit announces that a user left the room.
	MessageExit MessageType = "EXIT"
)

// Message is the domain model for one chat message.
// A Message is immutable once built; derived values are new Messages.
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderName string
	Type       MessageType
	Content    string
	SentAt     time.Time
}

// SystemText returns the synthesized content for membership events.
func SystemText(t MessageType, senderName string) string {
	switch t {
	case MessageEnter:
		return senderName + " joined the room"
	case MessageExit:
		return senderName + " left the room"
	default:
		return ""
	}
}
