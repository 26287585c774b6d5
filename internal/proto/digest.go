package proto

import (
	"encoding/json"
	"fmt"

	"github.com/haeun9634/chatsync/internal/chat"
)

// wireDigest tolerates the observed room-digest field variants.
type wireDigest struct {
	RoomID            flexString    `json:"roomId"`
	ChatRoomID        flexString    `json:"chatRoomId"`
	Name              string        `json:"name"`
	ChatRoomName      string        `json:"chatRoomName"`
	LatestMessage     string        `json:"latestMessage"`
	LatestMessageType string        `json:"latestMessageType"`
	LatestTime        flexTime      `json:"latestTime"`
	LatestMessageTime flexTime      `json:"latestMessageTime"`
	LastestTime       flexTime      `json:"lastestTime"` // historical misspelling, still on the wire
	UserProfiles      []wireProfile `json:"userProfiles"`
	Participants      []wireProfile `json:"participants"`
}

type wireProfile struct {
	ID    flexString `json:"id"`
	Name  string     `json:"name"`
	Emoji string     `json:"emoji"`
}

// DecodeDigests normalizes a room-list payload. Both fan-out shapes are
// accepted: a single updated digest object or a full digest list.
func DecodeDigests(data []byte) ([]chat.RoomSummary, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		// Not an array; try the single-digest shape.
		one, err := decodeDigest(data)
		if err != nil {
			return nil, err
		}
		return []chat.RoomSummary{one}, nil
	}

	out := make([]chat.RoomSummary, 0, len(raws))
	for _, raw := range raws {
		d, err := decodeDigest(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeDigest(data []byte) (chat.RoomSummary, error) {
	var w wireDigest
	if err := json.Unmarshal(data, &w); err != nil {
		return chat.RoomSummary{}, fmt.Errorf("%w: %v", chat.ErrMalformedPayload, err)
	}

	sum := chat.RoomSummary{
		RoomID:        firstOf(w.RoomID, w.ChatRoomID),
		Name:          w.Name,
		LatestMessage: w.LatestMessage,
		LatestType:    chat.MessageType(w.LatestMessageType),
		LatestTime:    firstTime(w.LatestTime, w.LatestMessageTime, w.LastestTime),
	}
	if sum.RoomID == "" {
		return chat.RoomSummary{}, fmt.Errorf("%w: missing room id", chat.ErrMalformedPayload)
	}
	if sum.Name == "" {
		sum.Name = w.ChatRoomName
	}

	profiles := w.UserProfiles
	if len(profiles) == 0 {
		profiles = w.Participants
	}
	for _, p := range profiles {
		sum.Participants = append(sum.Participants, chat.Profile{
			ID:    string(p.ID),
			Name:  p.Name,
			Emoji: p.Emoji,
		})
	}
	return sum, nil
}
