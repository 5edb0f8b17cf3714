// Package realtime pushes entity events to WebSocket clients grouped into
// rooms.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 << 10

	defaultSendBuffer = 64
)

// Room names every connection joins automatically.
const (
	RoomAdmins = "admins"
)

// Control events understood by the hub itself.
const (
	EventJoin   = "join"
	EventLeave  = "leave"
	EventError  = "error"
	EventJoined = "joined"
	EventLeft   = "left"
)

// Authenticator resolves a bearer token to a principal.
type Authenticator interface {
	ValidateBearer(ctx context.Context, token string) (*model.Principal, error)
}

// AuthFunc adapts a plain function to Authenticator.
type AuthFunc func(ctx context.Context, token string) (*model.Principal, error)

// ValidateBearer calls f.
func (f AuthFunc) ValidateBearer(ctx context.Context, token string) (*model.Principal, error) {
	return f(ctx, token)
}

// HandlerFunc answers a client request event. The returned value is sent
// back to the same client under the same event name.
type HandlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

// Inbound is a message read from a client.
type Inbound struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a message written to a client.
type Outbound struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Options configures a Hub.
type Options struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// SendBuffer bounds the per-client outbound queue. A client whose queue
	// is full when a message is published is disconnected.
	SendBuffer int
	// CheckOrigin overrides the upgrader's origin check. Nil allows any
	// origin; callers authenticate with a token before the upgrade.
	CheckOrigin func(r *http.Request) bool
}

// Hub tracks connected clients and their room memberships.
type Hub struct {
	authn    Authenticator
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	buffer   int
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	handlers map[string]HandlerFunc
	closed   bool
}

// New creates a Hub authenticating connections with authn.
func New(authn Authenticator, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		authn:   authn,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		buffer:  opts.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		handlers: make(map[string]HandlerFunc),
	}
}

// On registers h for client request events named event. Registering the
// same event twice replaces the earlier handler.
func (h *Hub) On(event string, fn HandlerFunc) {
	h.mu.Lock()
	h.handlers[event] = fn
	h.mu.Unlock()
}

// UserRoom is the private room of a user account.
func UserRoom(id string) string { return "user:" + id }

// AdminRoom is the private room of an admin account.
func AdminRoom(id string) string { return "admin:" + id }

// isPrivateRoom reports whether clients may not join room by request.
func isPrivateRoom(room string) bool {
	return room == RoomAdmins || strings.HasPrefix(room, "user:") || strings.HasPrefix(room, "admin:")
}

// ServeHTTP authenticates the request, upgrades it and serves the client
// until it disconnects. The token is read from ?token= or the Authorization
// header.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		writeReject(w, http.StatusServiceUnavailable, "Realtime service unavailable")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		writeReject(w, http.StatusUnauthorized, "Unauthorized, token required")
		return
	}
	p, err := h.authn.ValidateBearer(r.Context(), token)
	if err != nil {
		writeReject(w, http.StatusUnauthorized, "Unauthorized, invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		id:        uuid.Must(uuid.NewV7()).String(),
		principal: p,
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, h.buffer),
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	h.logger.Info("realtime client connected", "client_id", c.id, "principal_id", p.ID, "principal_type", string(p.Type))
	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	switch c.principal.Type {
	case model.PrincipalAdmin:
		h.joinLocked(c, AdminRoom(c.principal.ID))
		h.joinLocked(c, RoomAdmins)
	default:
		h.joinLocked(c, UserRoom(c.principal.ID))
	}
	h.metrics.ConnectionOpened()
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()

	h.metrics.ConnectionClosed()
	c.close()
	h.logger.Info("realtime client disconnected", "client_id", c.id, "principal_id", c.principal.ID)
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Publish sends event with data to every client in room. Clients whose send
// queue is full are disconnected.
func (h *Hub) Publish(room, event string, data any) {
	msg, err := json.Marshal(Outbound{Event: event, Room: room, Data: data})
	if err != nil {
		h.logger.Warn("realtime publish encode failed", "room", room, "event", event, "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[room] {
		if !c.enqueue(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow realtime client", "client_id", c.id, "room", room)
		h.unregister(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		h.unregister(c)
	}
	return nil
}

func (h *Hub) handle(c *Client, in Inbound) {
	switch in.Event {
	case EventJoin, EventLeave:
		h.handleMembership(c, in)
		return
	}

	h.mu.RLock()
	fn, ok := h.handlers[in.Event]
	h.mu.RUnlock()
	if !ok {
		c.reply(Outbound{Event: EventError, ID: in.ID, Error: "unknown event: " + in.Event})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	data, err := fn(ctx, c, in.Data)
	if err != nil {
		c.reply(Outbound{Event: in.Event, ID: in.ID, Error: err.Error()})
		return
	}
	c.reply(Outbound{Event: in.Event, ID: in.ID, Data: data})
}

func (h *Hub) handleMembership(c *Client, in Inbound) {
	room := strings.TrimSpace(in.Room)
	if room == "" || isPrivateRoom(room) {
		c.reply(Outbound{Event: EventError, ID: in.ID, Room: room, Error: "room not allowed"})
		return
	}

	h.mu.Lock()
	if in.Event == EventJoin {
		h.joinLocked(c, room)
	} else {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()

	ack := EventJoined
	if in.Event == EventLeave {
		ack = EventLeft
	}
	c.reply(Outbound{Event: ack, ID: in.ID, Room: room})
}

func writeReject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.Envelope{Success: false, Message: msg})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
