package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayName  string    `gorm:"size:255;not null"`
	Email        *string   `gorm:"size:255;uniqueIndex:idx_users_email,where:email IS NOT NULL"`
	PhotoURL     string    `gorm:"size:1024"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChannelID string    `gorm:"size:128;uniqueIndex:idx_messages_channel_seq,priority:1;not null"`
	SenderID  uuid.UUID `gorm:"type:uuid;index;not null"`
	Text      string    `gorm:"type:text;not null"`
	Seq       uint64    `gorm:"uniqueIndex:idx_messages_channel_seq,priority:2;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type Presence struct {
	UserID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	State       string    `gorm:"size:16;not null"`
	LastChanged time.Time `gorm:"not null"`
}
