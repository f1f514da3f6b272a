package domain

import "github.com/pion/webrtc/v3"

// Signal message types exchanged over the realtime socket.
const (
	SignalChat        = "chat"
	SignalSubscribe   = "subscribe"
	SignalUnsubscribe = "unsubscribe"
	SignalPresence    = "presence"
	SignalCall        = "call"
	SignalAnswer      = "answer"
	SignalReject      = "reject"
	SignalBusy        = "busy"
	SignalUnavailable = "unavailable"
	SignalHangup      = "hangup"
	SignalCandidate   = "ice-candidate"
	SignalWelcome     = "welcome"
	SignalError       = "error"
)

type SignalMessage struct {
	Type      string                     `json:"type"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Channel   string                     `json:"channel,omitempty"`
	SenderID  string                     `json:"sender_id,omitempty"`
	TargetID  string                     `json:"target_id,omitempty"`
	Payload   map[string]any             `json:"payload,omitempty"`
}
