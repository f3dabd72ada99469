package chat

import (
	"encoding/json"
	"time"
)

// Inbound message types (client -> hub).
const (
	TypeJoinClass   = "join_class"
	TypeChatMessage = "chat_message"
	TypeRaiseHand   = "raise_hand"
	TypeAcceptHand  = "accept_hand"
)

// Outbound event types (hub -> client). chat_message is shared with the
// inbound direction.
const (
	TypeHandRaised   = "hand_raised"
	TypeHandAccepted = "hand_accepted"
)

// Roles carried by the identity token.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// TimestampLayout is ISO-8601 with millisecond precision, always in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t the way every outbound event carries it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// InboundMessage is the envelope a participant sends over the socket. Only
// the fields relevant to Type are populated. Content is a pointer so an
// empty chat line can be told apart from a missing one.
type InboundMessage struct {
	Type      string  `json:"type"`
	UserID    string  `json:"userId,omitempty"`
	ClassID   string  `json:"classId,omitempty"`
	Content   *string `json:"content,omitempty"`
	StudentID string  `json:"studentId,omitempty"`
}

// Text returns a pointer to s for InboundMessage.Content.
func Text(s string) *string {
	return &s
}

type ChatMessageEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type HandRaisedEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type HandAcceptedEvent struct {
	Type      string `json:"type"`
	TeacherID string `json:"teacherId"`
	Timestamp string `json:"timestamp"`
}

func NewChatMessageEvent(userID, content string, at time.Time) ChatMessageEvent {
	return ChatMessageEvent{
		Type:      TypeChatMessage,
		UserID:    userID,
		Content:   content,
		Timestamp: FormatTimestamp(at),
	}
}

func NewHandRaisedEvent(userID string, at time.Time) HandRaisedEvent {
	return HandRaisedEvent{
		Type:      TypeHandRaised,
		UserID:    userID,
		Timestamp: FormatTimestamp(at),
	}
}

func NewHandAcceptedEvent(teacherID string, at time.Time) HandAcceptedEvent {
	return HandAcceptedEvent{
		Type:      TypeHandAccepted,
		TeacherID: teacherID,
		Timestamp: FormatTimestamp(at),
	}
}

// OutboundEvent is the union used by clients to decode anything the hub sends.
type OutboundEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	TeacherID string `json:"teacherId,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DecodeOutbound parses a frame received from the hub.
func DecodeOutbound(data []byte) (OutboundEvent, error) {
	var ev OutboundEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}
