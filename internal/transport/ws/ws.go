// Package ws implements the push-channel transport over a websocket
// speaking the JSON action protocol from internal/proto.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/haeun9634/chatsync/internal/connmgr"
	"github.com/haeun9634/chatsync/internal/proto"
)

// Transport dials websocket push-channel connections against a base URL.
type Transport struct {
	url string
}

// NewTransport builds a Transport for the given endpoint. http(s) schemes
// are rewritten to ws(s).
func NewTransport(url string) *Transport {
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return &Transport{url: url}
}

// Dial opens one connection, authenticating with the bearer credential.
func (t *Transport) Dial(ctx context.Context, credential string) (connmgr.Conn, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}
	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	return &wsConn{conn: conn, credential: credential}, nil
}

type wsConn struct {
	conn       *websocket.Conn
	credential string
}

func (c *wsConn) Subscribe(ctx context.Context, topic string) error {
	return wsjson.Write(ctx, c.conn, proto.Inbound{
		Action: proto.ActionSubscribe,
		Topic:  topic,
	})
}

func (c *wsConn) Unsubscribe(ctx context.Context, topic string) error {
	return wsjson.Write(ctx, c.conn, proto.Inbound{
		Action: proto.ActionUnsubscribe,
		Topic:  topic,
	})
}

func (c *wsConn) Publish(ctx context.Context, topic string, payload []byte) error {
	// The bearer credential rides on every publish frame, matching the
	// per-message auth headers of the upstream broker.
	return wsjson.Write(ctx, c.conn, proto.Inbound{
		Action:  proto.ActionPublish,
		Topic:   topic,
		Token:   c.credential,
		Payload: payload,
	})
}

func (c *wsConn) Receive(ctx context.Context) (connmgr.Frame, error) {
	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			return connmgr.Frame{}, err
		}
		if out.Action != proto.ActionMessage || out.Topic == "" {
			continue
		}
		return connmgr.Frame{Topic: out.Topic, Payload: out.Payload}, nil
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
