package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserEmailExists = errors.New("user with email already exists")
	ErrSeqConflict     = errors.New("message sequence conflict")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	List(ctx context.Context) ([]*domain.User, error)
}

// MessageRepository is the append-only message log. Append assigns the
// per-channel sequence number and the server timestamp.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.ChatMessage) error
	Recent(ctx context.Context, channelID string, limit int) ([]*domain.ChatMessage, error)
}

type PresenceRepository interface {
	Upsert(ctx context.Context, rec domain.PresenceRecord) error
	Get(ctx context.Context, userID uuid.UUID) (domain.PresenceRecord, error)
	List(ctx context.Context) ([]domain.PresenceRecord, error)
}
