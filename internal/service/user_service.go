package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/auth"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/lib/logger/sl"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDisplayNameTooLong = errors.New("display name is too long")
)

const maxDisplayNameLength = 255

type UserService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	log    *slog.Logger
}

func NewUserService(users repository.UserRepository, tokens *auth.TokenService, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{users: users, tokens: tokens, log: log}
}

func (s *UserService) Register(ctx context.Context, displayName, email, password string) (*domain.User, string, error) {
	const op = "service.user.register"
	log := s.log.With(slog.String("op", op))

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, "", errors.New("display name is required")
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return nil, "", ErrDisplayNameTooLong
	}
	if email == "" {
		return nil, "", errors.New("email is required")
	}
	if len(password) < 6 {
		return nil, "", errors.New("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	user := domain.NewUser(displayName, strings.ToLower(email), string(hash))
	if err := s.users.Create(ctx, user); err != nil {
		log.Info("registration failed", sl.Err(err))
		return nil, "", err
	}

	token, err := s.tokens.Issue(user.ID, user.DisplayName)
	if err != nil {
		return nil, "", err
	}

	log.Info("user registered", slog.String("user_id", user.ID.String()))
	return user, token, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	const op = "service.user.login"
	log := s.log.With(slog.String("op", op))

	user, err := s.users.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Info("login rejected", slog.String("user_id", user.ID.String()))
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.DisplayName)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, photoURL string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName != "" {
		if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
			return nil, ErrDisplayNameTooLong
		}
		user.DisplayName = displayName
	}
	if photoURL != "" {
		user.PhotoURL = photoURL
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// ListContacts returns every profile except the requesting user's own,
// which backs the contact list screen.
func (s *UserService) ListContacts(ctx context.Context, except uuid.UUID) ([]*domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.User, 0, len(users))
	for _, user := range users {
		if user.ID == except {
			continue
		}
		result = append(result, user)
	}

	return result, nil
}
