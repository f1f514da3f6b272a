package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/lib/logger/sl"
)

const presenceEventBuffer = 64

// PresenceService tracks who is online. Each connected session holds a
// lease; releasing the lease (explicit sign-out or socket teardown) is the
// disconnect-triggered write that flips the record to offline. A
// reconnecting client gets a fresh lease, so the cleanup registration is
// renewed on every connectivity transition.
type PresenceService struct {
	repo repository.PresenceRepository
	log  *slog.Logger

	mu     sync.Mutex
	leases map[uuid.UUID]*PresenceLease
	subs   map[*PresenceSubscription]struct{}
}

func NewPresenceService(repo repository.PresenceRepository, log *slog.Logger) *PresenceService {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceService{
		repo:   repo,
		log:    log,
		leases: make(map[uuid.UUID]*PresenceLease),
		subs:   make(map[*PresenceSubscription]struct{}),
	}
}

// PresenceLease marks one user online for as long as it is held. Release is
// idempotent and safe to call from deferred teardown paths.
type PresenceLease struct {
	svc    *PresenceService
	userID uuid.UUID
	once   sync.Once
}

func (l *PresenceLease) UserID() uuid.UUID {
	return l.userID
}

func (l *PresenceLease) Release(ctx context.Context) {
	l.once.Do(func() {
		l.svc.release(ctx, l)
	})
}

// Connect marks the user online and returns the lease that owns the
// offline write. A newer lease for the same user supersedes the old one,
// so a stale release after a quick reconnect does not knock the user
// offline.
func (s *PresenceService) Connect(ctx context.Context, userID uuid.UUID) (*PresenceLease, error) {
	lease := &PresenceLease{svc: s, userID: userID}

	s.mu.Lock()
	s.leases[userID] = lease
	s.mu.Unlock()

	rec := domain.PresenceRecord{
		UserID:      userID,
		State:       domain.PresenceOnline,
		LastChanged: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	s.broadcast(domain.PresenceEvent{
		UserID:      rec.UserID,
		State:       rec.State,
		LastChanged: rec.LastChanged,
	})

	return lease, nil
}

func (s *PresenceService) release(ctx context.Context, lease *PresenceLease) {
	s.mu.Lock()
	current := s.leases[lease.userID] == lease
	if current {
		delete(s.leases, lease.userID)
	}
	s.mu.Unlock()

	if !current {
		return
	}

	rec := domain.PresenceRecord{
		UserID:      lease.userID,
		State:       domain.PresenceOffline,
		LastChanged: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.log.Error("failed to persist offline presence",
			slog.String("user_id", lease.userID.String()), sl.Err(err))
	}

	s.broadcast(domain.PresenceEvent{
		UserID:      rec.UserID,
		State:       rec.State,
		LastChanged: rec.LastChanged,
	})
}

// PresenceSubscription is a live feed of presence transitions. Cancel is
// idempotent and stops delivery.
type PresenceSubscription struct {
	svc    *PresenceService
	events chan domain.PresenceEvent
	once   sync.Once
}

func (sub *PresenceSubscription) Events() <-chan domain.PresenceEvent {
	return sub.events
}

func (sub *PresenceSubscription) Cancel() {
	sub.once.Do(func() {
		sub.svc.mu.Lock()
		delete(sub.svc.subs, sub)
		close(sub.events)
		sub.svc.mu.Unlock()
	})
}

func (s *PresenceService) Subscribe() *PresenceSubscription {
	sub := &PresenceSubscription{
		svc:    s,
		events: make(chan domain.PresenceEvent, presenceEventBuffer),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	return sub
}

// Snapshot returns the last-known record of every user the tracker has
// seen. Users with no record read as offline via Get.
func (s *PresenceService) Snapshot(ctx context.Context) ([]domain.PresenceRecord, error) {
	return s.repo.List(ctx)
}

// State reports live connectivity: online while a lease is held.
func (s *PresenceService) State(userID uuid.UUID) domain.PresenceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leases[userID]; ok {
		return domain.PresenceOnline
	}
	return domain.PresenceOffline
}

func (s *PresenceService) broadcast(event domain.PresenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		select {
		case sub.events <- event:
		default:
			s.log.Warn("presence subscriber queue full, dropping event",
				slog.String("user_id", event.UserID.String()))
		}
	}
}
