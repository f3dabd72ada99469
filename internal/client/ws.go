package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"go-liveclass/pkg/chat"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

type messageReceivedMsg []byte

type disconnectedMsg struct {
	err error
}

// Sender is the outbound half of a class connection.
type Sender interface {
	Send(msg chat.InboundMessage) error
}

type WSClient struct {
	conn *websocket.Conn
	ch   chan tea.Msg

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

// Dial connects to the hub at rawURL. A non-empty token is passed as the
// token query parameter.
func Dial(ctx context.Context, rawURL, token string, ch chan tea.Msg) (*WSClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	return &WSClient{conn: conn, ch: ch}, nil
}

// Start forwards every received frame to the message channel until the
// connection ends.
func (c *WSClient) Start() {
	go func() {
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				c.ch <- disconnectedMsg{err: err}
				return
			}
			c.ch <- messageReceivedMsg(data)
		}
	}()
}

func (c *WSClient) Send(msg chat.InboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSClient) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
	return c.conn.Close()
}
