package chat

import "errors"

// Error codes for failures that cross component boundaries.
const (
	ErrCodeNotConnected = "not_connected"
	ErrCodeTransport    = "transport_error"
	ErrCodeFetch        = "fetch_failed"
	ErrCodeMalformed    = "malformed_payload"
	ErrCodeClosed       = "session_closed"
	ErrCodeRoomUnknown  = "room_unknown"
)

var (
	// ErrNotConnected is returned by publish attempts while the push
	// channel is not in the connected state.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned once a component has been torn down.
	ErrClosed = errors.New("closed")
	// ErrMalformedPayload marks an undecodable wire payload.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrFetch marks a failed page or room-list fetch. Never retried
	// automatically; the caller owns retry policy.
	ErrFetch = errors.New("fetch failed")
)

// Error wraps a code and human-readable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a coded error.
func NewError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}
