package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
)

type InMemoryUserRepository struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*domain.User
	emails map[string]uuid.UUID
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:  make(map[uuid.UUID]*domain.User),
		emails: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user.Email != "" {
		if _, ok := r.emails[strings.ToLower(user.Email)]; ok {
			return ErrUserEmailExists
		}
	}

	clone := *user
	r.users[user.ID] = &clone
	if user.Email != "" {
		r.emails[strings.ToLower(user.Email)] = user.ID
	}
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

func (r *InMemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

func (r *InMemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	if existing.Email != "" {
		delete(r.emails, strings.ToLower(existing.Email))
	}
	if user.Email != "" {
		if owner, ok := r.emails[strings.ToLower(user.Email)]; ok && owner != user.ID {
			if existing.Email != "" {
				r.emails[strings.ToLower(existing.Email)] = existing.ID
			}
			return ErrUserEmailExists
		}
		r.emails[strings.ToLower(user.Email)] = user.ID
	}

	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *InMemoryUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.User, 0, len(r.users))
	for _, user := range r.users {
		clone := *user
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DisplayName < result[j].DisplayName
	})

	return result, nil
}

type InMemoryMessageRepository struct {
	mu       sync.Mutex
	channels map[string][]*domain.ChatMessage
	seqs     map[string]uint64
}

func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{
		channels: make(map[string][]*domain.ChatMessage),
		seqs:     make(map[string]uint64),
	}
}

func (r *InMemoryMessageRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seqs[msg.ChannelID]++
	msg.Seq = r.seqs[msg.ChannelID]
	msg.CreatedAt = time.Now().UTC()

	clone := *msg
	r.channels[msg.ChannelID] = append(r.channels[msg.ChannelID], &clone)
	return nil
}

func (r *InMemoryMessageRepository) Recent(ctx context.Context, channelID string, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.channels[channelID]
	start := 0
	if len(log) > limit {
		start = len(log) - limit
	}

	result := make([]*domain.ChatMessage, 0, len(log)-start)
	for _, msg := range log[start:] {
		clone := *msg
		result = append(result, &clone)
	}

	return result, nil
}

type InMemoryPresenceRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.PresenceRecord
}

func NewInMemoryPresenceRepository() *InMemoryPresenceRepository {
	return &InMemoryPresenceRepository{
		records: make(map[uuid.UUID]domain.PresenceRecord),
	}
}

func (r *InMemoryPresenceRepository) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.UserID] = rec
	return nil
}

func (r *InMemoryPresenceRepository) Get(ctx context.Context, userID uuid.UUID) (domain.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.PresenceRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return domain.PresenceRecord{UserID: userID, State: domain.PresenceOffline}, nil
	}

	return rec, nil
}

func (r *InMemoryPresenceRepository) List(ctx context.Context) ([]domain.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.PresenceRecord, 0, len(r.records))
	for _, rec := range r.records {
		result = append(result, rec)
	}

	return result, nil
}
