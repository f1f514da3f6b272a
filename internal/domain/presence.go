package domain

import (
	"time"

	"github.com/google/uuid"
)

type PresenceState string

const (
	PresenceOnline  PresenceState = "online"
	PresenceOffline PresenceState = "offline"
)

// PresenceRecord is the last-known connectivity of one user. The record is
// written only by the session that owns it; everyone else reads.
type PresenceRecord struct {
	UserID      uuid.UUID     `json:"user_id"`
	State       PresenceState `json:"state"`
	LastChanged time.Time     `json:"last_changed"`
}

// PresenceEvent is one state transition delivered to subscribers.
type PresenceEvent struct {
	UserID      uuid.UUID     `json:"user_id"`
	State       PresenceState `json:"state"`
	LastChanged time.Time     `json:"last_changed"`
}
