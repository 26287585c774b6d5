package connmgr

import "context"

// Frame is one push-channel delivery: a topic and its raw payload.
// Payload decoding happens at the session boundary, not here.
type Frame struct {
	Topic   string
	Payload []byte
}

// Conn is one live push-channel connection.
type Conn interface {
	Subscribe(ctx context.Context, topic string) error
	Unsubscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	// Receive blocks until the next frame arrives or the connection dies.
	Receive(ctx context.Context) (Frame, error)
	Close() error
}

// Transport dials push-channel connections. The production implementation
// lives in internal/transport/ws; tests use an in-memory fake.
type Transport interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}
