package chat

import (
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

// ChatMessage is a persisted live-class chat line.
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;size:12" json:"id"`
	ClassID   string    `gorm:"index;not null" json:"classId"`
	SenderID  string    `gorm:"not null" json:"senderId"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "messages"
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID, err = nanoid.New(12)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return
}
