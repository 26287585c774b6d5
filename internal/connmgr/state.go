package connmgr

// State is the connection lifecycle as seen by consumers. It is owned
// exclusively by the Manager; everyone else only reads it.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)
