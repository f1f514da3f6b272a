package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vimo-chat/vimo/internal/domain"
)

func TestMessageAppendAssignsSeqPerChannel(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMessageRepository()
	sender := uuid.New()

	for i := 1; i <= 3; i++ {
		msg := domain.NewChatMessage("a_b", sender, fmt.Sprintf("msg %d", i))
		require.NoError(t, repo.Append(ctx, msg))
		assert.Equal(t, uint64(i), msg.Seq)
	}

	other := domain.NewChatMessage("a_c", sender, "first in another channel")
	require.NoError(t, repo.Append(ctx, other))
	assert.Equal(t, uint64(1), other.Seq)
}

func TestMessageRecentReturnsTailInOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryMessageRepository()
	sender := uuid.New()

	for i := 1; i <= 5; i++ {
		msg := domain.NewChatMessage("a_b", sender, fmt.Sprintf("msg %d", i))
		require.NoError(t, repo.Append(ctx, msg))
	}

	msgs, err := repo.Recent(ctx, "a_b", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg 3", msgs[0].Text)
	assert.Equal(t, "msg 5", msgs[2].Text)

	all, err := repo.Recent(ctx, "a_b", 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := repo.Recent(ctx, "a_b", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUserRepositoryEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryUserRepository()

	alice := domain.NewUser("Alice", "alice@example.com", "hash")
	require.NoError(t, repo.Create(ctx, alice))

	dup := domain.NewUser("Other", "Alice@Example.com", "hash")
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrUserEmailExists)

	got, err := repo.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}

func TestUserRepositoryGetMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryUserRepository()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepositoryUpdateEmailConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryUserRepository()

	alice := domain.NewUser("Alice", "alice@example.com", "hash")
	require.NoError(t, repo.Create(ctx, alice))

	bob := domain.NewUser("Bob", "", "hash")
	require.NoError(t, repo.Create(ctx, bob))

	bob.Email = "alice@example.com"
	assert.ErrorIs(t, repo.Update(ctx, bob), ErrUserEmailExists)

	// The failed update leaves the index intact: alice still owns her
	// address and no empty-string entry appeared.
	got, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = repo.GetByEmail(ctx, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepositoryReturnsClones(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryUserRepository()

	alice := domain.NewUser("Alice", "alice@example.com", "hash")
	require.NoError(t, repo.Create(ctx, alice))

	got, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	got.DisplayName = "Mutated"

	again, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.DisplayName)
}

func TestPresenceRepositoryUpsertAndDefault(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryPresenceRepository()
	userID := uuid.New()

	rec, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, rec.State)

	require.NoError(t, repo.Upsert(ctx, domain.PresenceRecord{
		UserID: userID,
		State:  domain.PresenceOnline,
	}))

	rec, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, rec.State)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, userID, list[0].UserID)
}
