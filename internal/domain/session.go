package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session represents one connected client. It owns the socket, a buffered
// outbound event queue and the user's current call state.
type Session struct {
	ID          string
	UserID      uuid.UUID
	DisplayName string
	ConnectedAt time.Time
	LastSeen    time.Time
	Mutex       sync.RWMutex
	Socket      *websocket.Conn
	Events      chan SignalMessage
	Call        CallState
}

func NewSession(userID uuid.UUID, displayName string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		DisplayName: displayName,
		ConnectedAt: now,
		LastSeen:    now,
		Events:      make(chan SignalMessage, 256),
		Call:        CallState{Phase: CallIdle},
	}
}

func (s *Session) Touch() {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.LastSeen = time.Now().UTC()
}

// EnqueueEvent drops the event when the queue is full rather than blocking
// the caller.
func (s *Session) EnqueueEvent(event SignalMessage) {
	select {
	case s.Events <- event:
	default:
	}
}

func (s *Session) CallState() CallState {
	s.Mutex.RLock()
	defer s.Mutex.RUnlock()
	return s.Call
}

func (s *Session) SetCallState(state CallState) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.Call = state
}
