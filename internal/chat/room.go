package chat

import "time"

// Profile is a lightweight participant stub shown in room listings.
type Profile struct {
	ID    string
	Name  string
	Emoji string
}

// RoomSummary is the mutable digest of one room the user belongs to.
type RoomSummary struct {
	RoomID        string
	Name          string
	LatestMessage string
	LatestTime    time.Time // zero when the room has no messages yet
	LatestType    MessageType
	Participants  []Profile
}

// HasActivity reports whether the room has at least one recorded message.
func (r *RoomSummary) HasActivity() bool {
	return !r.LatestTime.IsZero()
}
