// devserver is an in-memory stand-in for the chat backend: the REST
// collaborators, the push channel, and a token endpoint. It exists for
// manual end-to-end runs of the client; nothing in it persists.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/haeun9634/chatsync/internal/chat"
	"github.com/haeun9634/chatsync/internal/log"
	"github.com/haeun9634/chatsync/internal/proto"
)

var devSecret = []byte("devserver-secret")

type room struct {
	ID       string
	Name     string
	Members  map[string]struct{}
	Messages []json.RawMessage // stored as received, newest appended
	Times    []time.Time
}

type server struct {
	mu    sync.Mutex
	rooms map[string]*room

	hubMu sync.Mutex
	conns map[*wsjsonConn]map[string]struct{}
}

type wsjsonConn struct {
	conn *websocket.Conn
	ctx  context.Context
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := log.New(*level)

	s := &server{
		rooms: make(map[string]*room),
		conns: make(map[*wsjsonConn]map[string]struct{}),
	}
	s.seed()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/auth/token", s.handleToken)
	r.GET("/chat/rooms/users", s.handleListRooms)
	r.GET("/chat/rooms/:id/messages", s.handleMessages)
	r.POST("/chat/rooms", s.handleCreateRoom)
	r.POST("/chat/rooms/:id/users", s.handleInvite)
	r.DELETE("/chat/rooms/:id/users", s.handleLeave)
	r.GET("/ws/chat", func(c *gin.Context) { s.handleWS(c.Writer, c.Request) })

	srv := &http.Server{Addr: *addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", *addr).Msg("devserver listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("devserver exited")
		os.Exit(1)
	}
}

func (s *server) seed() {
	s.rooms["general"] = &room{
		ID:      "general",
		Name:    "General",
		Members: map[string]struct{}{},
	}
}

func (s *server) handleToken(c *gin.Context) {
	user := c.Query("user")
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is required"})
		return
	}
	id := c.DefaultQuery("id", "1")
	uid, _ := strconv.ParseInt(id, 10, 64)

	claims := jwt.MapClaims{
		"user_id":  uid,
		"username": user,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(devSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *server) handleListRooms(c *gin.Context) {
	s.mu.Lock()
	digests := make([]gin.H, 0, len(s.rooms))
	for _, rm := range s.rooms {
		d := gin.H{
			"chatRoomId":   rm.ID,
			"chatRoomName": rm.Name,
			"userProfiles": []gin.H{},
		}
		if n := len(rm.Messages); n > 0 {
			var last map[string]any
			_ = json.Unmarshal(rm.Messages[n-1], &last)
			if content, ok := last["content"].(string); ok {
				d["latestMessage"] = content
			}
			d["latestMessageTime"] = rm.Times[n-1].UTC().Format(time.RFC3339)
		}
		digests = append(digests, d)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"data": digests})
}

func (s *server) handleMessages(c *gin.Context) {
	roomID := c.Param("id")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if size <= 0 {
		size = 20
	}

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	// Page 0 is the newest slice; clients sort on merge anyway.
	type stamped struct {
		raw json.RawMessage
		at  time.Time
	}
	all := make([]stamped, len(rm.Messages))
	for i := range rm.Messages {
		all[i] = stamped{raw: rm.Messages[i], at: rm.Times[i]}
	}
	s.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].at.After(all[j].at) })
	start := page * size
	if start >= len(all) {
		c.JSON(http.StatusOK, []json.RawMessage{})
		return
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	out := make([]json.RawMessage, 0, end-start)
	for _, m := range all[start:end] {
		out = append(out, m.raw)
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) handleCreateRoom(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	id := uuid.NewString()[:8]
	s.mu.Lock()
	s.rooms[id] = &room{ID: id, Name: name, Members: map[string]struct{}{}}
	s.mu.Unlock()

	digest, _ := json.Marshal(gin.H{"chatRoomId": id, "chatRoomName": name, "userProfiles": []gin.H{}})
	s.broadcast("/topic/rooms", digest)
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"chatRoomId": id}})
}

func (s *server) handleInvite(c *gin.Context) {
	roomID := c.Param("id")
	userID := c.Query("userId")
	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	if ok {
		rm.Members[userID] = struct{}{}
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.Status(http.StatusOK)
}

func (s *server) handleLeave(c *gin.Context) {
	roomID := c.Param("id")
	s.mu.Lock()
	_, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.Status(http.StatusOK)
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	wc := &wsjsonConn{conn: conn, ctx: r.Context()}

	s.hubMu.Lock()
	s.conns[wc] = make(map[string]struct{})
	s.hubMu.Unlock()

	defer func() {
		s.hubMu.Lock()
		delete(s.conns, wc)
		s.hubMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		var in proto.Inbound
		if err := wsjson.Read(r.Context(), conn, &in); err != nil {
			return
		}
		switch in.Action {
		case proto.ActionSubscribe:
			s.hubMu.Lock()
			s.conns[wc][in.Topic] = struct{}{}
			s.hubMu.Unlock()
		case proto.ActionUnsubscribe:
			s.hubMu.Lock()
			delete(s.conns[wc], in.Topic)
			s.hubMu.Unlock()
		case proto.ActionPublish:
			s.acceptPublish(in)
		}
	}
}

// acceptPublish stores the message and echoes it to every subscriber,
// keeping the client-assigned id unchanged.
func (s *server) acceptPublish(in proto.Inbound) {
	roomID, ok := proto.TopicRoomID(in.Topic)
	if !ok {
		return
	}

	payload := in.Payload
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return
	}
	if _, hasID := fields["id"]; !hasID {
		fields["id"] = uuid.NewString()
		payload, _ = json.Marshal(fields)
	}
	at := time.Now()
	if raw, ok := fields["sendAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			at = t
		}
	}

	s.mu.Lock()
	rm, ok := s.rooms[roomID]
	if ok {
		rm.Messages = append(rm.Messages, payload)
		rm.Times = append(rm.Times, at)
		if t, isExit := fields["type"].(string); isExit && t == string(chat.MessageExit) {
			if name, ok := fields["senderName"].(string); ok {
				delete(rm.Members, name)
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.broadcast(in.Topic, payload)
}

func (s *server) broadcast(topic string, payload json.RawMessage) {
	out := proto.Outbound{Action: proto.ActionMessage, Topic: topic, Payload: payload}

	s.hubMu.Lock()
	targets := make([]*wsjsonConn, 0, len(s.conns))
	for wc, topics := range s.conns {
		if _, ok := topics[topic]; ok {
			targets = append(targets, wc)
		}
	}
	s.hubMu.Unlock()

	for _, wc := range targets {
		writeCtx, cancel := context.WithTimeout(wc.ctx, 2*time.Second)
		_ = wsjson.Write(writeCtx, wc.conn, out)
		cancel()
	}
}
