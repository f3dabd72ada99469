package message

import (
	"context"
	"errors"
	"fmt"

	. "go-liveclass/pkg/chat"

	"gorm.io/gorm"
)

var (
	ErrEmptyClass    = errors.New("class id is required")
	ErrCursorMissing = errors.New("cursor message not found")
)

// MessageService is the chat persistence collaborator of the live hub.
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// CreateMessage durably records one chat line. The caller's Timestamp is
// kept so the stored record and the relayed event agree. Empty content is
// a valid line.
func (s *MessageService) CreateMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.ClassID == "" {
		return ErrEmptyClass
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// GetClassMessages returns one page of a class's chat history in
// chronological order, plus the total number of matching messages.
// beforeID, when set, restricts the page to messages older than that one.
func (s *MessageService) GetClassMessages(ctx context.Context, classID string, limit, offset int, beforeID string) ([]ChatMessage, int64, error) {
	if classID == "" {
		return nil, 0, ErrEmptyClass
	}

	db := s.db.WithContext(ctx)
	query := db.Model(&ChatMessage{}).Where("class_id = ?", classID)

	if beforeID != "" {
		var cursor ChatMessage
		if err := db.First(&cursor, "id = ? AND class_id = ?", beforeID, classID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, ErrCursorMissing
			}
			return nil, 0, fmt.Errorf("load cursor message: %w", err)
		}
		query = query.Where("timestamp < ?", cursor.Timestamp)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	// Most recent first for paging, then flipped to read oldest first.
	var messages []ChatMessage
	err := query.Order("timestamp DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, total, nil
}
