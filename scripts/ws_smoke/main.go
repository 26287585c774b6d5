package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/haeun9634/chatsync/internal/chat"
	"github.com/haeun9634/chatsync/internal/proto"
)

// Connects to a push endpoint, subscribes to a room topic, publishes one
// message and waits for the broadcast echo to come back.
func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws/chat", "WebSocket address")
	room := flag.String("room", "1", "room id to publish into")
	sender := flag.String("sender", "smoke", "sender name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	topic := proto.RoomTopic(*room)
	mustSend := func(v interface{}) {
		if err := wsjson.Write(ctx, conn, v); err != nil {
			log.Fatalf("send: %v", err)
		}
	}

	mustSend(proto.Inbound{Action: proto.ActionSubscribe, Topic: topic})

	id := uuid.NewString()
	payload, err := proto.EncodeMessage(chat.Message{
		ID:         id,
		RoomID:     *room,
		SenderName: *sender,
		Type:       chat.MessageTalk,
		Content:    *text,
		SentAt:     time.Now(),
	})
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	mustSend(proto.Inbound{Action: proto.ActionPublish, Topic: topic, Payload: payload})

	for {
		var frame proto.Outbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			log.Fatalf("read: %v", err)
		}
		if frame.Action != proto.ActionMessage || frame.Topic != topic {
			continue
		}
		msg, err := proto.DecodeMessage(frame.Payload)
		if err != nil {
			log.Fatalf("decode: %v", err)
		}
		if msg.ID != id {
			continue
		}
		pretty, _ := json.Marshal(msg)
		fmt.Printf("echo received: %s\n", pretty)
		return
	}
}
