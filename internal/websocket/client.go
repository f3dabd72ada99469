package websocket

import (
	"sync"
	"time"

	"go-liveclass/internal/auth"

	"github.com/gorilla/websocket"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// Client is one participant connection. Its class binding starts empty and
// is set by join_class; a connection is joined once both halves are set.
type Client struct {
	id string

	// nil in tests that drive the hub without a socket
	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub on unregister.
	send chan []byte

	hub *Hub

	// Identity asserted by the auth layer at upgrade time, nil when the
	// participant connected without a token.
	identity *auth.Identity

	mu       sync.RWMutex
	userID   string
	classID  string
	lastSeen time.Time

	connectedAt time.Time
}

// NewClient creates a client with a fresh connection id. It is not
// registered until Hub.Register is called.
func NewClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity) *Client {
	id, err := nanoid.New(10)
	if err != nil {
		// nanoid only fails when the system random source does
		panic(err)
	}
	now := time.Now()
	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, hub.opts.SendBuffer),
		hub:         hub,
		identity:    identity,
		connectedAt: now,
		lastSeen:    now,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Identity returns the authenticated identity, or nil.
func (c *Client) Identity() *auth.Identity {
	return c.identity
}

// Binding returns the declared user and class, either possibly empty.
func (c *Client) Binding() (userID, classID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.classID
}

func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) ClassID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classID
}

// Joined reports whether both user and class are bound.
func (c *Client) Joined() bool {
	userID, classID := c.Binding()
	return userID != "" && classID != ""
}

// Bind sets or replaces the class binding.
func (c *Client) Bind(userID, classID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.classID = classID
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Client) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

func (c *Client) ConnectedAt() time.Time {
	return c.connectedAt
}

// ReadPump pumps frames from the websocket connection to the message
// handler, one at a time, so a sender's messages are handled in order.
// It unregisters the client when the connection ends.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "conn", c.id, "err", err)
			}
			return
		}
		c.touch()
		c.hub.handler.HandleMessage(c, data)
	}
}

// WritePump pumps frames from the send queue to the websocket connection
// and keeps the peer alive with pings.
func (c *Client) WritePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait)) //nolint:errcheck
			if !ok {
				// hub closed the queue
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug("websocket write error", "conn", c.id, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
