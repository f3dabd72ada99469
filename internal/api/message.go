package api

import (
	"errors"
	"net/http"
	"strconv"

	m "go-liveclass/internal/message"
	"go-liveclass/pkg/chat"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

type MessageHandlers struct {
	service *m.MessageService
}

func NewMessageHandlers(db *gorm.DB) *MessageHandlers {
	return &MessageHandlers{
		service: m.NewMessageService(db),
	}
}

type MessageInfo struct {
	ID        string `json:"id"`
	ClassID   string `json:"class_id"`
	SenderID  string `json:"sender_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type MessagesResponse struct {
	Messages []MessageInfo `json:"messages"`
	HasMore  bool          `json:"has_more"`
	Total    int64         `json:"total"`
}

// GetClassMessagesHandler retrieves chat history for a class, oldest first.
// @Param limit query int false "Number of messages to retrieve (default: 50, max: 100)"
// @Param offset query int false "Number of messages to skip (default: 0)"
// @Param before query string false "Get messages before this message ID"
// @Router /api/classes/{id}/messages [get]
func (h *MessageHandlers) GetClassMessagesHandler(c *gin.Context) {
	classID := c.Param("id")
	if classID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Class ID is required"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	beforeID := c.Query("before")

	messages, total, err := h.service.GetClassMessages(c.Request.Context(), classID, limit, offset, beforeID)
	if err != nil {
		if errors.Is(err, m.ErrCursorMissing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown before cursor"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve messages"})
		return
	}

	response := MessagesResponse{
		Messages: make([]MessageInfo, 0, len(messages)),
		Total:    total,
		HasMore:  int64(offset+len(messages)) < total,
	}
	for _, msg := range messages {
		response.Messages = append(response.Messages, MessageInfo{
			ID:        msg.ID,
			ClassID:   msg.ClassID,
			SenderID:  msg.SenderID,
			Message:   msg.Message,
			Timestamp: chat.FormatTimestamp(msg.Timestamp),
		})
	}

	c.JSON(http.StatusOK, response)
}
