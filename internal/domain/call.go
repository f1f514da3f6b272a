package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallPhase is the lifecycle state of a call attempt. Keep values stable,
// they travel over the wire.
type CallPhase string

const (
	CallIdle      CallPhase = "idle"
	CallDialing   CallPhase = "dialing"
	CallRinging   CallPhase = "ringing"
	CallConnected CallPhase = "connected"
)

// CallState is the server-side view of one user's current call attempt,
// tracked so that a call directed at a busy peer can be answered with a
// busy signal instead of ringing them.
type CallState struct {
	Phase     CallPhase `json:"phase"`
	PeerID    uuid.UUID `json:"peer_id"`
	StartedAt time.Time `json:"started_at"`
}

func (s CallState) Busy() bool {
	return s.Phase != "" && s.Phase != CallIdle
}
