package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one immutable entry in a channel's append-only log. Seq is
// assigned at write time and is monotonic within the channel, so ordering
// never depends on client clocks.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	ChannelID string    `json:"channel_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Text      string    `json:"text"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

func NewChatMessage(channelID string, senderID uuid.UUID, text string) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.New(),
		ChannelID: channelID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}
