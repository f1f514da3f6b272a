package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vimo-chat/vimo/internal/auth"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/lib/logger/handlers/slogdiscard"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	return NewUserService(repository.NewInMemoryUserRepository(), tokens, slogdiscard.NewDiscardLogger())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	user, token, err := svc.Register(ctx, "Alice", "Alice@Example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "Alice", user.DisplayName)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	got, token, err := svc.Login(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, user.ID, got.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	_, _, err := svc.Register(ctx, "Alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "Other Alice", "alice@example.com", "secret2")
	assert.ErrorIs(t, err, repository.ErrUserEmailExists)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	_, _, err := svc.Register(ctx, "   ", "alice@example.com", "secret1")
	assert.Error(t, err)

	_, _, err = svc.Register(ctx, "Alice", "", "secret1")
	assert.Error(t, err)

	_, _, err = svc.Register(ctx, "Alice", "alice@example.com", "short")
	assert.Error(t, err)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	_, _, err := svc.Register(ctx, "Alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	user, _, err := svc.Register(ctx, "Alice", "alice@example.com", "secret1")
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, user.ID, "Alice Cooper", "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.DisplayName)
	assert.Equal(t, "https://example.com/a.png", updated.PhotoURL)

	// Empty fields leave the current values in place.
	updated, err = svc.UpdateProfile(ctx, user.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.DisplayName)
	assert.Equal(t, "https://example.com/a.png", updated.PhotoURL)
}

func TestListContactsExcludesSelf(t *testing.T) {
	ctx := context.Background()
	svc := newUserService(t)

	alice, _, err := svc.Register(ctx, "Alice", "alice@example.com", "secret1")
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, "Bob", "bob@example.com", "secret2")
	require.NoError(t, err)

	contacts, err := svc.ListContacts(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Bob", contacts[0].DisplayName)
}
