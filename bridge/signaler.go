package bridge

import (
	"context"

	"github.com/vimo-chat/vimo/internal/domain"
)

// Conn is one call leg on the signaling transport: the handle an inbound
// invitation arrives with, or the one Dial returns. Closing it before
// Answer rejects the call; closing it later hangs up.
type Conn interface {
	PeerID() string

	// Answer accepts an inbound call with the given local stream.
	Answer(local Stream) error

	Close() error

	// RemoteStreams delivers the remote media when the counterpart's
	// stream arrives.
	RemoteStreams() <-chan Stream

	// Done is closed when the connection ends, whichever side ends it.
	Done() <-chan struct{}
}

// Signaler is the peer signaling transport. Each client is identified by
// its user id.
type Signaler interface {
	Dial(ctx context.Context, peerID string, local Stream) (Conn, error)

	// Calls delivers inbound call connections.
	Calls() <-chan Conn
}

// Directory resolves a peer id to a profile. An inbound call whose caller
// cannot be resolved is dropped without ringing.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*domain.User, error)
}
