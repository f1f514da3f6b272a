package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/lib/logger/handlers/slogdiscard"
)

func newPresenceService() (*PresenceService, *repository.InMemoryPresenceRepository) {
	repo := repository.NewInMemoryPresenceRepository()
	return NewPresenceService(repo, slogdiscard.NewDiscardLogger()), repo
}

func TestPresenceConnectAndRelease(t *testing.T) {
	ctx := context.Background()
	svc, repo := newPresenceService()
	userID := uuid.New()

	lease, err := svc.Connect(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, domain.PresenceOnline, svc.State(userID))
	rec, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, rec.State)

	lease.Release(ctx)

	assert.Equal(t, domain.PresenceOffline, svc.State(userID))
	rec, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, rec.State)
}

func TestPresenceReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPresenceService()
	userID := uuid.New()

	lease, err := svc.Connect(ctx, userID)
	require.NoError(t, err)

	lease.Release(ctx)
	lease.Release(ctx)

	assert.Equal(t, domain.PresenceOffline, svc.State(userID))
}

func TestPresenceStaleReleaseDoesNotKnockReconnectOffline(t *testing.T) {
	ctx := context.Background()
	svc, repo := newPresenceService()
	userID := uuid.New()

	old, err := svc.Connect(ctx, userID)
	require.NoError(t, err)

	// Reconnect before the old socket's teardown runs.
	fresh, err := svc.Connect(ctx, userID)
	require.NoError(t, err)

	old.Release(ctx)

	assert.Equal(t, domain.PresenceOnline, svc.State(userID))
	rec, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, rec.State)

	fresh.Release(ctx)
	assert.Equal(t, domain.PresenceOffline, svc.State(userID))
}

func TestPresenceSubscriptionObservesTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPresenceService()
	userID := uuid.New()

	sub := svc.Subscribe()
	defer sub.Cancel()

	lease, err := svc.Connect(ctx, userID)
	require.NoError(t, err)

	online := <-sub.Events()
	assert.Equal(t, userID, online.UserID)
	assert.Equal(t, domain.PresenceOnline, online.State)

	lease.Release(ctx)

	offline := <-sub.Events()
	assert.Equal(t, userID, offline.UserID)
	assert.Equal(t, domain.PresenceOffline, offline.State)
}

func TestPresenceUnknownUserReadsOffline(t *testing.T) {
	ctx := context.Background()
	svc, repo := newPresenceService()
	userID := uuid.New()

	assert.Equal(t, domain.PresenceOffline, svc.State(userID))

	rec, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, rec.State)
}
