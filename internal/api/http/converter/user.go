package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
)

type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Presence    string    `json:"presence,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type MessageResponse struct {
	ID        uuid.UUID `json:"id"`
	ChannelID string    `json:"channel_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Text      string    `json:"text"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

func UserToApi(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
	}
}

func MessageToApi(m *domain.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Seq:       m.Seq,
		Timestamp: m.CreatedAt,
	}
}

func MessagesToApi(msgs []*domain.ChatMessage) []MessageResponse {
	result := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, MessageToApi(m))
	}
	return result
}

// PresenceToApi flattens presence records into the uid -> state map the
// contact list consumes. Users without a record simply do not appear and
// read as offline.
func PresenceToApi(records []domain.PresenceRecord) map[string]string {
	result := make(map[string]string, len(records))
	for _, rec := range records {
		result[rec.UserID.String()] = string(rec.State)
	}
	return result
}
