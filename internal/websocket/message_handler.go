package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go-liveclass/pkg/chat"
)

// persistTimeout bounds the wait on the chat store for one message.
const persistTimeout = 5 * time.Second

// MessageStore durably records chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *chat.ChatMessage) error
}

// MessageHandler runs the live-class protocol for inbound frames. Failures
// are logged and never reported back to the sender.
type MessageHandler struct {
	store  MessageStore
	hub    *Hub
	logger *slog.Logger
	now    func() time.Time
}

func NewMessageHandler(hub *Hub, store MessageStore, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		store:  store,
		hub:    hub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage parses one inbound frame from client and executes it.
func (mh *MessageHandler) HandleMessage(client *Client, data []byte) {
	var msg chat.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		mh.logger.Warn("malformed websocket message", "conn", client.id, "err", err)
		return
	}

	// one timestamp per message, shared by storage and relay
	at := mh.now()

	switch msg.Type {
	case chat.TypeJoinClass:
		mh.handleJoinClass(client, msg)
	case chat.TypeChatMessage:
		mh.handleChatMessage(client, msg, at)
	case chat.TypeRaiseHand:
		mh.handleRaiseHand(client, at)
	case chat.TypeAcceptHand:
		mh.handleAcceptHand(client, msg, at)
	default:
		mh.logger.Warn("unknown websocket message type", "conn", client.id, "type", msg.Type)
	}
}

func (mh *MessageHandler) handleJoinClass(client *Client, msg chat.InboundMessage) {
	userID := msg.UserID
	if id := client.Identity(); id != nil {
		switch {
		case userID == "":
			userID = id.UserID
		case userID != id.UserID:
			mh.logger.Warn("join_class identity mismatch, ignored",
				"conn", client.id, "token_user", id.UserID, "declared_user", userID)
			return
		}
	}

	client.Bind(userID, msg.ClassID)
	mh.logger.Debug("joined class", "conn", client.id, "user", userID, "class", msg.ClassID)
}

func (mh *MessageHandler) handleChatMessage(client *Client, msg chat.InboundMessage, at time.Time) {
	userID, classID := client.Binding()
	if userID == "" || classID == "" {
		return
	}
	if msg.Content == nil {
		mh.logger.Warn("chat_message without content, ignored", "conn", client.id, "user", userID)
		return
	}
	content := *msg.Content

	record := &chat.ChatMessage{
		ClassID:   classID,
		SenderID:  userID,
		Message:   content,
		Timestamp: at,
	}
	if err := mh.saveMessage(record); err != nil {
		mh.logger.Error("failed to persist chat message, not relayed",
			"conn", client.id, "user", userID, "class", classID, "err", err)
		return
	}

	mh.relay(Relay{ClassID: classID, SenderConnID: client.id},
		chat.NewChatMessageEvent(userID, content, at))
}

func (mh *MessageHandler) handleRaiseHand(client *Client, at time.Time) {
	userID, classID := client.Binding()
	if userID == "" || classID == "" {
		return
	}

	mh.relay(Relay{ClassID: classID, SenderConnID: client.id},
		chat.NewHandRaisedEvent(userID, at))
}

// handleAcceptHand targets the accepted student only. The sender's role is
// not checked.
func (mh *MessageHandler) handleAcceptHand(client *Client, msg chat.InboundMessage, at time.Time) {
	userID, classID := client.Binding()
	if userID == "" || classID == "" {
		return
	}
	if msg.StudentID == "" {
		return
	}

	mh.relay(Relay{ClassID: classID, TargetUserID: msg.StudentID},
		chat.NewHandAcceptedEvent(userID, at))
}

func (mh *MessageHandler) saveMessage(record *chat.ChatMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return mh.store.CreateMessage(ctx, record)
}

func (mh *MessageHandler) relay(r Relay, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		mh.logger.Error("failed to encode relay event", "class", r.ClassID, "err", err)
		return
	}
	r.Payload = payload
	mh.hub.Relay(r)
}
