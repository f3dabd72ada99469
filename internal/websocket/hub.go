package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"go-liveclass/internal/auth"

	"github.com/gorilla/websocket"
)

var ErrHubClosed = errors.New("hub is shut down")

// Options tune the per-connection transport.
type Options struct {
	// SendBuffer is the depth of each client's outbound queue. A client
	// whose queue is full when a frame is relayed to it is disconnected.
	SendBuffer int

	// MaxMessageSize caps one inbound frame. A larger frame closes the
	// connection with 1009 (message too big).
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration

	// AllowedOrigins restricts the Origin header on upgrade. Empty allows all.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		MaxMessageSize: 64 << 10,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
	}
}

// Relay is one outbound frame together with the rule selecting its
// recipients. It is also the unit exchanged between hub instances.
type Relay struct {
	ClassID string `json:"classId"`

	// SenderConnID excludes the originating connection (no echo).
	SenderConnID string `json:"senderConnId,omitempty"`

	// TargetUserID narrows delivery to connections bound to that user.
	TargetUserID string `json:"targetUserId,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// Matches reports whether c is a recipient of r.
func (r Relay) Matches(c *Client) bool {
	userID, classID := c.Binding()
	if classID == "" || classID != r.ClassID {
		return false
	}
	if r.SenderConnID != "" && c.id == r.SenderConnID {
		return false
	}
	if r.TargetUserID != "" && userID != r.TargetUserID {
		return false
	}
	return true
}

// Publisher forwards relays to other hub instances.
type Publisher interface {
	Publish(ctx context.Context, r Relay) error
}

// ConnectionInfo is a point-in-time view of one connection.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ClassID       string    `json:"classId"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastSeen      time.Time `json:"lastSeen"`
}

// Hub owns the registry of open connections and fans relays out to them.
type Hub struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handler  *MessageHandler

	publisher   Publisher
	publishWait time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub builds a hub whose chat messages are persisted through store.
func NewHub(store MessageStore, opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}

	h := &Hub{
		opts:        opts,
		logger:      logger,
		clients:     make(map[string]*Client),
		publishWait: 2 * time.Second,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	h.handler = NewMessageHandler(h, store, logger)
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// SetPublisher attaches a cross-instance publisher. Call before serving.
func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

// Handler exposes the message handler, mainly for tests.
func (h *Hub) Handler() *MessageHandler {
	return h.handler
}

// ServeWS upgrades the request and starts serving the connection. identity
// is nil for unauthenticated participants.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, identity *auth.Identity) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	client := NewClient(h, conn, identity)
	if err := h.Register(client); err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")) //nolint:errcheck
		conn.Close()
		return
	}

	attrs := []any{"conn", client.id, "remote", r.RemoteAddr}
	if identity != nil {
		attrs = append(attrs, "user", identity.UserID, "role", identity.Role)
	}
	h.logger.Info("websocket connection established", attrs...)

	go client.WritePump()
	go client.ReadPump()
}

// Run blocks until ctx is done, then shuts the hub down.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Shutdown()
}

func (h *Hub) Register(client *Client) error {
	if client == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[client.id] = client
	return nil
}

// Unregister removes the client and closes its send queue. Safe to call
// more than once.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.clients[client.id]
	if ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	h.mu.Unlock()

	if ok {
		userID, classID := client.Binding()
		h.logger.Info("websocket connection closed", "conn", client.id, "user", userID, "class", classID)
	}
}

// Shutdown closes every connection and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// Relay delivers r to local recipients and forwards it to other instances.
// It returns the number of local recipients.
func (h *Hub) Relay(r Relay) int {
	n := h.Deliver(r)
	if h.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.publishWait)
		defer cancel()
		if err := h.publisher.Publish(ctx, r); err != nil {
			h.logger.Warn("relay publish failed", "class", r.ClassID, "err", err)
		}
	}
	return n
}

// Deliver enqueues r on every matching local connection without blocking.
// Recipients whose queue is full are disconnected.
func (h *Hub) Deliver(r Relay) int {
	var (
		delivered int
		overflow  []*Client
	)

	h.mu.RLock()
	for _, c := range h.clients {
		if !r.Matches(c) {
			continue
		}
		select {
		case c.send <- r.Payload:
			delivered++
		default:
			overflow = append(overflow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range overflow {
		h.logger.Warn("send queue full, disconnecting", "conn", c.id, "class", r.ClassID)
		h.Unregister(c)
	}
	return delivered
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ClassClientCount returns the number of connections bound to classID.
func (h *Hub) ClassClientCount(classID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.ClassID() == classID {
			n++
		}
	}
	return n
}

// ClassMembers returns the distinct user ids bound to classID, sorted.
func (h *Hub) ClassMembers(classID string) []string {
	h.mu.RLock()
	seen := make(map[string]struct{})
	for _, c := range h.clients {
		userID, cid := c.Binding()
		if cid == classID && userID != "" {
			seen[userID] = struct{}{}
		}
	}
	h.mu.RUnlock()

	members := make([]string, 0, len(seen))
	for id := range seen {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

// Stats returns connection counts per class. Unjoined connections are
// counted under the empty key.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	stats := make(map[string]int)
	for _, c := range h.clients {
		stats[c.ClassID()]++
	}
	return stats
}

// Connections returns a snapshot of every open connection.
func (h *Hub) Connections() []ConnectionInfo {
	h.mu.RLock()
	out := make([]ConnectionInfo, 0, len(h.clients))
	for _, c := range h.clients {
		userID, classID := c.Binding()
		out = append(out, ConnectionInfo{
			ID:            c.id,
			UserID:        userID,
			ClassID:       classID,
			Authenticated: c.identity != nil,
			ConnectedAt:   c.connectedAt,
			LastSeen:      c.LastSeen(),
		})
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}
