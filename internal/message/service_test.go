package message

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go-liveclass/internal/storage"
	. "go-liveclass/pkg/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupMessageTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.Connect(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

func seedMessages(t *testing.T, db *gorm.DB, classID string, n int, start time.Time) []ChatMessage {
	t.Helper()
	out := make([]ChatMessage, 0, n)
	for i := 0; i < n; i++ {
		msg := ChatMessage{
			ClassID:   classID,
			SenderID:  "u1",
			Message:   fmt.Sprintf("Message %d", i+1),
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.Create(&msg).Error)
		out = append(out, msg)
	}
	return out
}

func TestMessageService_CreateMessage(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := &ChatMessage{ClassID: "c1", SenderID: "u1", Message: "hi", Timestamp: at}
	require.NoError(t, service.CreateMessage(context.Background(), msg))

	assert.Len(t, msg.ID, 12)

	var stored ChatMessage
	require.NoError(t, db.First(&stored, "id = ?", msg.ID).Error)
	assert.Equal(t, "c1", stored.ClassID)
	assert.Equal(t, "u1", stored.SenderID)
	assert.Equal(t, "hi", stored.Message)
	assert.True(t, at.Equal(stored.Timestamp), "timestamp should be kept as given")
}

func TestMessageService_CreateMessage_AssignsTimestamp(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)

	before := time.Now().UTC().Add(-time.Second)
	msg := &ChatMessage{ClassID: "c1", SenderID: "u1", Message: "hi"}
	require.NoError(t, service.CreateMessage(context.Background(), msg))

	assert.True(t, msg.Timestamp.After(before))
}

func TestMessageService_CreateMessage_Validation(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)

	err := service.CreateMessage(context.Background(), &ChatMessage{SenderID: "u1", Message: "hi"})
	assert.ErrorIs(t, err, ErrEmptyClass)

	var count int64
	require.NoError(t, db.Model(&ChatMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMessageService_CreateMessage_EmptyContent(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)

	msg := &ChatMessage{ClassID: "c1", SenderID: "u1", Message: ""}
	require.NoError(t, service.CreateMessage(context.Background(), msg))

	var stored ChatMessage
	require.NoError(t, db.First(&stored, "id = ?", msg.ID).Error)
	assert.Equal(t, "", stored.Message)
	assert.Equal(t, "u1", stored.SenderID)
}

func TestMessageService_CreateMessage_ClosedDB(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)
	require.NoError(t, storage.Close(db))

	err := service.CreateMessage(context.Background(), &ChatMessage{ClassID: "c1", SenderID: "u1", Message: "hi"})
	assert.Error(t, err)
}

func TestMessageService_GetClassMessages(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedMessages(t, db, "c1", 3, start)
	seedMessages(t, db, "c2", 2, start)

	messages, total, err := service.GetClassMessages(context.Background(), "c1", 50, 0, "")
	require.NoError(t, err)

	assert.Equal(t, int64(3), total)
	require.Len(t, messages, 3)
	assert.Equal(t, "Message 1", messages[0].Message)
	assert.Equal(t, "Message 3", messages[2].Message)
	for _, m := range messages {
		assert.Equal(t, "c1", m.ClassID)
	}
}

func TestMessageService_GetClassMessages_Pagination(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)

	seedMessages(t, db, "c1", 15, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	messages, total, err := service.GetClassMessages(context.Background(), "c1", 10, 0, "")
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)
	require.Len(t, messages, 10)
	// newest ten, oldest first
	assert.Equal(t, "Message 6", messages[0].Message)
	assert.Equal(t, "Message 15", messages[9].Message)

	messages, _, err = service.GetClassMessages(context.Background(), "c1", 10, 10, "")
	require.NoError(t, err)
	require.Len(t, messages, 5)
	assert.Equal(t, "Message 1", messages[0].Message)
}

func TestMessageService_GetClassMessages_Before(t *testing.T) {
	db := setupMessageTestDB(t)
	service := NewMessageService(db)

	seeded := seedMessages(t, db, "c1", 5, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	messages, total, err := service.GetClassMessages(context.Background(), "c1", 50, 0, seeded[3].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, messages, 3)
	assert.Equal(t, "Message 3", messages[2].Message)

	_, _, err = service.GetClassMessages(context.Background(), "c1", 50, 0, "missing")
	assert.ErrorIs(t, err, ErrCursorMissing)
}

func TestMessageService_GetClassMessages_EmptyClass(t *testing.T) {
	service := NewMessageService(setupMessageTestDB(t))

	_, _, err := service.GetClassMessages(context.Background(), "", 50, 0, "")
	assert.ErrorIs(t, err, ErrEmptyClass)

	messages, total, err := service.GetClassMessages(context.Background(), "nobody-here", 50, 0, "")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, messages)
}
