package http

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vimo-chat/vimo/internal/auth"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/internal/service"
	"github.com/vimo-chat/vimo/lib/logger/handlers/slogdiscard"
)

func TestWelcomeFrameCarriesPresenceAndStunServers(t *testing.T) {
	log := slogdiscard.NewDiscardLogger()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)

	users := repository.NewInMemoryUserRepository()
	userService := service.NewUserService(users, tokens, log)
	presenceService := service.NewPresenceService(repository.NewInMemoryPresenceRepository(), log)
	chatService := service.NewChatService(repository.NewInMemoryMessageRepository(), 0, log)
	signalService := service.NewSignalService(users, log)

	stun := []string{"stun:stun.example.com:3478"}
	ctrl := NewRealtimeController(
		userService, chatService, presenceService, signalService,
		tokens, 50, stun, log,
	)

	online := uuid.New()
	_, err = presenceService.Connect(context.Background(), online)
	require.NoError(t, err)

	sess := domain.NewSession(uuid.New(), "Alice")
	ctrl.sendWelcome(sess)

	event := <-sess.Events
	require.Equal(t, domain.SignalWelcome, event.Type)
	assert.Equal(t, sess.ID, event.Payload["session_id"])
	assert.Equal(t, stun, event.Payload["stun_servers"])

	states, ok := event.Payload["presence"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(domain.PresenceOnline), states[online.String()])
}
