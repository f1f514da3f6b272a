package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
)

type UserInteractor interface {
	Register(ctx context.Context, displayName, email, password string) (*domain.User, string, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName, photoURL string) (*domain.User, error)
	ListContacts(ctx context.Context, except uuid.UUID) ([]*domain.User, error)
}

type PresenceInteractor interface {
	Connect(ctx context.Context, userID uuid.UUID) (*PresenceLease, error)
	Subscribe() *PresenceSubscription
	Snapshot(ctx context.Context) ([]domain.PresenceRecord, error)
	State(userID uuid.UUID) domain.PresenceState
}

type ChatInteractor interface {
	Send(ctx context.Context, channelID string, senderID uuid.UUID, text string) (*domain.ChatMessage, error)
	Subscribe(ctx context.Context, channelID string, limit int) (*ChatSubscription, error)
	Recent(ctx context.Context, channelID string, limit int) ([]*domain.ChatMessage, error)
}

type SignalRouter interface {
	Attach(sess *domain.Session)
	Detach(sess *domain.Session)
	Route(ctx context.Context, sess *domain.Session, msg *domain.SignalMessage) error
}
