package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/repository"
)

var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrMessageTooLong   = errors.New("message text is too long")
	ErrInvalidMessage   = errors.New("message text is not valid utf-8")
	ErrNotChannelMember = errors.New("sender is not a member of the channel")
)

const chatLiveBuffer = 64

// ChatService is the message relay: an append-only per-channel log exposed
// as a live feed. Sends and subscription snapshots are serialized per
// service, so every subscriber of a channel observes the same seq order.
type ChatService struct {
	messages repository.MessageRepository
	log      *slog.Logger
	maxLen   int

	mu   sync.Mutex
	subs map[string]map[*ChatSubscription]struct{}
}

func NewChatService(messages repository.MessageRepository, maxMessageLength int, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	if maxMessageLength <= 0 {
		maxMessageLength = 4000
	}
	return &ChatService{
		messages: messages,
		log:      log,
		maxLen:   maxMessageLength,
		subs:     make(map[string]map[*ChatSubscription]struct{}),
	}
}

func (s *ChatService) Send(ctx context.Context, channelID string, senderID uuid.UUID, text string) (*domain.ChatMessage, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !utf8.ValidString(text) {
		return nil, ErrInvalidMessage
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		return nil, ErrMessageTooLong
	}
	if !domain.IsChannelMember(channelID, senderID.String()) {
		return nil, ErrNotChannelMember
	}

	msg := domain.NewChatMessage(channelID, senderID, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}

	for sub := range s.subs[channelID] {
		sub.deliver(msg)
	}

	return msg, nil
}

// ChatSubscription is a live feed of one channel. The backlog arrives
// first, in ascending seq order, then new messages as they are appended.
type ChatSubscription struct {
	svc       *ChatService
	channelID string
	messages  chan *domain.ChatMessage
	once      sync.Once
}

func (sub *ChatSubscription) Messages() <-chan *domain.ChatMessage {
	return sub.messages
}

// Cancel stops delivery and releases the subscription. Idempotent.
func (sub *ChatSubscription) Cancel() {
	sub.once.Do(func() {
		sub.svc.mu.Lock()
		defer sub.svc.mu.Unlock()

		channel := sub.svc.subs[sub.channelID]
		delete(channel, sub)
		if len(channel) == 0 {
			delete(sub.svc.subs, sub.channelID)
		}
		close(sub.messages)
	})
}

func (sub *ChatSubscription) deliver(msg *domain.ChatMessage) {
	select {
	case sub.messages <- msg:
	default:
		sub.svc.log.Warn("chat subscriber queue full, dropping message",
			slog.String("channel_id", sub.channelID))
	}
}

// Subscribe snapshots the most recent limit messages and registers for live
// updates atomically, so no message falls between backlog and feed.
func (s *ChatService) Subscribe(ctx context.Context, channelID string, limit int) (*ChatSubscription, error) {
	if limit <= 0 {
		limit = chatLiveBuffer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backlog, err := s.messages.Recent(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}

	sub := &ChatSubscription{
		svc:       s,
		channelID: channelID,
		messages:  make(chan *domain.ChatMessage, len(backlog)+chatLiveBuffer),
	}
	for _, msg := range backlog {
		sub.messages <- msg
	}

	if s.subs[channelID] == nil {
		s.subs[channelID] = make(map[*ChatSubscription]struct{})
	}
	s.subs[channelID][sub] = struct{}{}

	return sub, nil
}

func (s *ChatService) Recent(ctx context.Context, channelID string, limit int) ([]*domain.ChatMessage, error) {
	return s.messages.Recent(ctx, channelID, limit)
}
