package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	if err := r.db.WithContext(ctx).Create(userModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	updateData := map[string]any{
		"display_name": userModel.DisplayName,
		"photo_url":    userModel.PhotoURL,
		"updated_at":   userModel.UpdatedAt,
	}

	if userModel.Email == nil {
		updateData["email"] = gorm.Expr("NULL")
	} else {
		updateData["email"] = userModel.Email
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userModel.ID).Updates(updateData)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *PostgresUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var users []model.User
	if err := r.db.WithContext(ctx).Order("display_name").Find(&users).Error; err != nil {
		return nil, err
	}

	result := make([]*domain.User, 0, len(users))
	for i := range users {
		result = append(result, toDomainUser(&users[i]))
	}

	return result, nil
}

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

// Append assigns the next per-channel sequence number inside a transaction.
// The unique (channel_id, seq) index catches two writers racing for the same
// slot; the loser retries with a fresh number.
func (r *PostgresMessageRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message is nil")
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var maxSeq uint64
			row := tx.Model(&model.Message{}).
				Where("channel_id = ?", msg.ChannelID).
				Select("COALESCE(MAX(seq), 0)").
				Row()
			if err := row.Scan(&maxSeq); err != nil {
				return err
			}

			msg.Seq = maxSeq + 1
			msg.CreatedAt = time.Now().UTC()

			return tx.Create(toModelMessage(msg)).Error
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return err
	}

	return ErrSeqConflict
}

func (r *PostgresMessageRepository) Recent(ctx context.Context, channelID string, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Reverse into ascending seq order.
	result := make([]*domain.ChatMessage, len(messages))
	for i := range messages {
		result[len(messages)-1-i] = toDomainMessage(&messages[i])
	}

	return result, nil
}

type PostgresPresenceRepository struct {
	db *gorm.DB
}

func NewPostgresPresenceRepository(db *gorm.DB) *PostgresPresenceRepository {
	return &PostgresPresenceRepository{db: db}
}

func (r *PostgresPresenceRepository) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "last_changed"}),
	}).Create(&model.Presence{
		UserID:      rec.UserID,
		State:       string(rec.State),
		LastChanged: rec.LastChanged.UTC(),
	}).Error
}

func (r *PostgresPresenceRepository) Get(ctx context.Context, userID uuid.UUID) (domain.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.PresenceRecord{}, err
	}

	var rec model.Presence
	err := r.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Absence of a record reads as offline.
			return domain.PresenceRecord{UserID: userID, State: domain.PresenceOffline}, nil
		}
		return domain.PresenceRecord{}, err
	}

	return toDomainPresence(&rec), nil
}

func (r *PostgresPresenceRepository) List(ctx context.Context) ([]domain.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []model.Presence
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}

	result := make([]domain.PresenceRecord, 0, len(records))
	for i := range records {
		result = append(result, toDomainPresence(&records[i]))
	}

	return result, nil
}

func toModelUser(user *domain.User) *model.User {
	var email *string
	if user.Email != "" {
		e := user.Email
		email = &e
	}
	return &model.User{
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		Email:        email,
		PhotoURL:     user.PhotoURL,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}

	return &domain.User{
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		Email:        email,
		PhotoURL:     user.PhotoURL,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func toModelMessage(msg *domain.ChatMessage) *model.Message {
	return &model.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		Seq:       msg.Seq,
		CreatedAt: msg.CreatedAt.UTC(),
	}
}

func toDomainMessage(msg *model.Message) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		Seq:       msg.Seq,
		CreatedAt: msg.CreatedAt.UTC(),
	}
}

func toDomainPresence(rec *model.Presence) domain.PresenceRecord {
	return domain.PresenceRecord{
		UserID:      rec.UserID,
		State:       domain.PresenceState(rec.State),
		LastChanged: rec.LastChanged.UTC(),
	}
}
