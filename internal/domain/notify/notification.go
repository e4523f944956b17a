package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusDead    Status = "dead"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusFailed, StatusDead:
		return true
	}
	return false
}

type Notification struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Channel        Channel        `gorm:"column:channel;not null;index" json:"channel"`
	Event          string         `gorm:"column:event;not null;index" json:"event"`
	EntityID       *uuid.UUID     `gorm:"type:uuid;column:entity_id" json:"entity_id,omitempty"`
	Title          string         `gorm:"not null" json:"title"`
	Body           string         `gorm:"type:text" json:"body"`
	Payload        datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	IdempotencyKey string         `gorm:"column:idempotency_key;not null;uniqueIndex" json:"-"`
	Status         Status         `gorm:"column:status;not null;index:idx_notification_due,priority:1" json:"status"`
	Attempts       int            `gorm:"not null" json:"attempts"`
	NextAttemptAt  time.Time      `gorm:"column:next_attempt_at;not null;index:idx_notification_due,priority:2" json:"next_attempt_at"`
	LockedAt       *time.Time     `gorm:"column:locked_at" json:"-"`
	LastError      string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	SentAt         *time.Time     `gorm:"column:sent_at" json:"sent_at,omitempty"`
	ReadAt         *time.Time     `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Notification) TableName() string { return "notification" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = StatusQueued
	}
	if n.NextAttemptAt.IsZero() {
		n.NextAttemptAt = time.Now().UTC()
	}
	return nil
}

// IdempotencyKey identifies one delivery of one event to one recipient
// over one channel.
func IdempotencyKey(eventType string, entityID, userID uuid.UUID, ch Channel) string {
	return fmt.Sprintf("%s:%s:%s:%s", eventType, entityID, userID, ch)
}
