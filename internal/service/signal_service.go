package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/lib/logger/sl"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTarget     = errors.New("invalid target id")
	ErrUnsupportedSignal = errors.New("unsupported signal type")
	ErrAlreadyInCall     = errors.New("already in a call")
	ErrNoPendingCall     = errors.New("no pending call to answer")
)

// SignalService routes call signals between connected sessions and tracks
// each user's call phase so a call aimed at a busy peer is answered with a
// busy signal instead of ringing them.
type SignalService struct {
	users repository.UserRepository
	log   *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
}

func NewSignalService(users repository.UserRepository, log *slog.Logger) *SignalService {
	if log == nil {
		log = slog.Default()
	}
	return &SignalService{
		users:    users,
		log:      log,
		sessions: make(map[uuid.UUID]*domain.Session),
	}
}

func (s *SignalService) Attach(sess *domain.Session) {
	s.mu.Lock()
	s.sessions[sess.UserID] = sess
	s.mu.Unlock()
}

// Detach removes the session and, when it was in a call, tears the call
// down from the counterpart's side too.
func (s *SignalService) Detach(sess *domain.Session) {
	s.mu.Lock()
	if s.sessions[sess.UserID] == sess {
		delete(s.sessions, sess.UserID)
	}
	s.mu.Unlock()

	state := sess.CallState()
	if !state.Busy() {
		return
	}
	sess.SetCallState(domain.CallState{Phase: domain.CallIdle})

	peer := s.session(state.PeerID)
	if peer == nil {
		return
	}
	if peerState := peer.CallState(); peerState.PeerID == sess.UserID {
		peer.SetCallState(domain.CallState{Phase: domain.CallIdle})
		peer.EnqueueEvent(domain.SignalMessage{
			Type:     domain.SignalHangup,
			SenderID: sess.UserID.String(),
			TargetID: peer.UserID.String(),
		})
	}
}

func (s *SignalService) Route(ctx context.Context, sess *domain.Session, msg *domain.SignalMessage) error {
	const op = "service.signal.route"
	if msg == nil {
		return errors.New("message is required")
	}
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", sess.UserID.String()),
		slog.String("type", msg.Type),
	)

	targetID, err := uuid.Parse(msg.TargetID)
	if err != nil {
		return ErrInvalidTarget
	}

	switch msg.Type {
	case domain.SignalCall:
		return s.routeCall(ctx, sess, targetID, msg, log)

	case domain.SignalAnswer:
		target := s.session(targetID)
		if target == nil {
			return ErrSessionNotFound
		}
		// Only the callee of a pending call may answer it; anything else
		// would let a stranger mark two sessions connected.
		if state := target.CallState(); state.Phase != domain.CallDialing || state.PeerID != sess.UserID {
			return ErrNoPendingCall
		}
		now := time.Now().UTC()
		sess.SetCallState(domain.CallState{Phase: domain.CallConnected, PeerID: targetID, StartedAt: now})
		target.SetCallState(domain.CallState{Phase: domain.CallConnected, PeerID: sess.UserID, StartedAt: now})
		s.forward(sess, target, msg)

	case domain.SignalReject, domain.SignalBusy, domain.SignalHangup:
		sess.SetCallState(domain.CallState{Phase: domain.CallIdle})
		target := s.session(targetID)
		if target == nil {
			return nil
		}
		if state := target.CallState(); state.PeerID == sess.UserID {
			target.SetCallState(domain.CallState{Phase: domain.CallIdle})
		}
		s.forward(sess, target, msg)

	case domain.SignalCandidate:
		target := s.session(targetID)
		if target == nil {
			return nil
		}
		s.forward(sess, target, msg)

	default:
		return ErrUnsupportedSignal
	}

	return nil
}

func (s *SignalService) routeCall(ctx context.Context, sess *domain.Session, targetID uuid.UUID, msg *domain.SignalMessage, log *slog.Logger) error {
	if sess.CallState().Busy() {
		return ErrAlreadyInCall
	}

	caller, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// No profile to show the callee, drop the invitation.
			log.Debug("dropping call from unknown profile")
			return nil
		}
		log.Error("caller lookup failed", sl.Err(err))
		return err
	}

	target := s.session(targetID)
	if target == nil {
		sess.EnqueueEvent(domain.SignalMessage{
			Type:     domain.SignalUnavailable,
			SenderID: targetID.String(),
			TargetID: sess.UserID.String(),
		})
		return nil
	}

	if target.CallState().Busy() {
		sess.EnqueueEvent(domain.SignalMessage{
			Type:     domain.SignalBusy,
			SenderID: targetID.String(),
			TargetID: sess.UserID.String(),
		})
		return nil
	}

	now := time.Now().UTC()
	sess.SetCallState(domain.CallState{Phase: domain.CallDialing, PeerID: targetID, StartedAt: now})
	target.SetCallState(domain.CallState{Phase: domain.CallRinging, PeerID: sess.UserID, StartedAt: now})

	forward := *msg
	forward.SenderID = sess.UserID.String()
	forward.TargetID = target.UserID.String()
	if forward.Payload == nil {
		forward.Payload = make(map[string]any)
	}
	forward.Payload["display_name"] = caller.DisplayName
	target.EnqueueEvent(forward)

	return nil
}

func (s *SignalService) session(userID uuid.UUID) *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[userID]
}

func (s *SignalService) forward(from, to *domain.Session, msg *domain.SignalMessage) {
	forward := *msg
	forward.SenderID = from.UserID.String()
	forward.TargetID = to.UserID.String()
	to.EnqueueEvent(forward)
}
