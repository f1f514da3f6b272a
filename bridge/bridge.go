package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/lib/logger/sl"
)

var (
	ErrBusy           = errors.New("another call is already active")
	ErrNoIncomingCall = errors.New("no incoming call to answer")
	ErrCallCancelled  = errors.New("call was cancelled")
)

type EventKind string

const (
	EventRinging   EventKind = "ringing"
	EventConnected EventKind = "connected"
	EventEnded     EventKind = "ended"
)

// Event is what the UI layer consumes: an incoming-call notification, the
// moment the remote stream arrives, or the end of the call.
type Event struct {
	Kind     EventKind
	PeerID   string
	PeerName string
	Remote   Stream
}

const eventBuffer = 16

// CallSession is the state of one call attempt. The bridge owns exactly
// one at a time; every transition goes through the bridge's lock and every
// exit path releases capture, the connection and the event watcher.
type CallSession struct {
	PeerID   string
	PeerName string
	Phase    domain.CallPhase

	conn      Conn
	local     Stream
	remote    Stream
	cancel    context.CancelFunc
	connected bool
	announced bool
}

// Bridge translates between the signaling transport's call events and the
// local call state machine:
//
//	Idle -> Dialing -> Connected -> Idle
//	Idle -> Ringing -> Connected -> Idle
//
// with Dialing and Ringing able to fall back to Idle on rejection or
// failure. A second inbound call while a session exists is auto-rejected.
type Bridge struct {
	media Media
	sig   Signaler
	dir   Directory
	log   *slog.Logger

	mu      sync.Mutex
	session *CallSession

	events chan Event
}

func New(media Media, sig Signaler, dir Directory, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		media:  media,
		sig:    sig,
		dir:    dir,
		log:    log,
		events: make(chan Event, eventBuffer),
	}
}

// Events is the feed the UI renders from.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Run consumes inbound calls from the signaler until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case conn, ok := <-b.sig.Calls():
			if !ok {
				return
			}
			b.handleInbound(ctx, conn)
		}
	}
}

// Phase reports the current call phase; Idle when no session exists.
func (b *Bridge) Phase() domain.CallPhase {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return domain.CallIdle
	}
	return b.session.Phase
}

// Session returns a copy of the current session state for display.
func (b *Bridge) Session() (CallSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return CallSession{}, false
	}
	return CallSession{
		PeerID:   b.session.PeerID,
		PeerName: b.session.PeerName,
		Phase:    b.session.Phase,
	}, true
}

// StartCall dials peerID. The session slot is claimed before capture is
// acquired so a concurrent inbound call sees busy; capture denial rolls
// the slot back to Idle and surfaces the error.
func (b *Bridge) StartCall(ctx context.Context, peerID string) error {
	sess := &CallSession{PeerID: peerID, Phase: domain.CallDialing}

	b.mu.Lock()
	if b.session != nil {
		b.mu.Unlock()
		return ErrBusy
	}
	b.session = sess
	b.mu.Unlock()

	local, err := b.media.Acquire(ctx, Constraints{Audio: true, Video: true})
	if err != nil {
		b.end(sess)
		return fmt.Errorf("acquire media: %w", err)
	}

	conn, err := b.sig.Dial(ctx, peerID, local)
	if err != nil {
		b.mu.Lock()
		sess.local = local
		b.mu.Unlock()
		b.end(sess)
		return fmt.Errorf("dial %s: %w", peerID, err)
	}

	b.mu.Lock()
	if b.session != sess {
		// Ended while dialing.
		b.mu.Unlock()
		local.Stop()
		conn.Close()
		return ErrCallCancelled
	}
	sess.local = local
	sess.conn = conn
	sess.announced = true
	b.mu.Unlock()

	b.watch(sess)
	return nil
}

func (b *Bridge) handleInbound(ctx context.Context, conn Conn) {
	b.mu.Lock()
	busy := b.session != nil
	b.mu.Unlock()
	if busy {
		b.log.Info("rejecting inbound call, busy", slog.String("peer_id", conn.PeerID()))
		conn.Close()
		return
	}

	caller, err := b.dir.Lookup(ctx, conn.PeerID())
	if err != nil {
		// No profile for the caller, drop without ringing.
		b.log.Debug("dropping call from unknown peer",
			slog.String("peer_id", conn.PeerID()), sl.Err(err))
		conn.Close()
		return
	}

	sess := &CallSession{
		PeerID:    conn.PeerID(),
		PeerName:  caller.DisplayName,
		Phase:     domain.CallRinging,
		conn:      conn,
		announced: true,
	}

	b.mu.Lock()
	if b.session != nil {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.session = sess
	b.mu.Unlock()

	b.watch(sess)
	b.emit(Event{Kind: EventRinging, PeerID: sess.PeerID, PeerName: sess.PeerName})
}

// Answer accepts the ringing inbound call. Capture denial tears the call
// down and surfaces the error.
func (b *Bridge) Answer(ctx context.Context) error {
	b.mu.Lock()
	sess := b.session
	if sess == nil || sess.Phase != domain.CallRinging {
		b.mu.Unlock()
		return ErrNoIncomingCall
	}
	conn := sess.conn
	b.mu.Unlock()

	local, err := b.media.Acquire(ctx, Constraints{Audio: true, Video: true})
	if err != nil {
		b.end(sess)
		return fmt.Errorf("acquire media: %w", err)
	}

	b.mu.Lock()
	if b.session != sess {
		b.mu.Unlock()
		local.Stop()
		return ErrCallCancelled
	}
	sess.local = local
	b.mu.Unlock()

	if err := conn.Answer(local); err != nil {
		b.end(sess)
		return fmt.Errorf("answer: %w", err)
	}

	return nil
}

// Reject declines the ringing inbound call without acquiring media.
func (b *Bridge) Reject() error {
	b.mu.Lock()
	sess := b.session
	if sess == nil || sess.Phase != domain.CallRinging {
		b.mu.Unlock()
		return ErrNoIncomingCall
	}
	b.mu.Unlock()

	b.end(sess)
	return nil
}

// End hangs up. Safe to call from any state, any number of times.
func (b *Bridge) End() {
	b.mu.Lock()
	sess := b.session
	b.mu.Unlock()
	if sess == nil {
		return
	}
	b.end(sess)
}

// SetMuted flips the local audio tracks. Local only, not renegotiated.
func (b *Bridge) SetMuted(muted bool) {
	b.setTrackKindEnabled("audio", !muted)
}

// SetVideoEnabled flips the local video tracks.
func (b *Bridge) SetVideoEnabled(enabled bool) {
	b.setTrackKindEnabled("video", enabled)
}

func (b *Bridge) setTrackKindEnabled(kind string, enabled bool) {
	b.mu.Lock()
	local := Stream(nil)
	if b.session != nil {
		local = b.session.local
	}
	b.mu.Unlock()

	if local == nil {
		return
	}
	for _, t := range local.Tracks() {
		if t.Kind() == kind {
			t.SetEnabled(enabled)
		}
	}
}

// watch pumps connection events into the state machine for the session's
// lifetime. The session context stops it on teardown.
func (b *Bridge) watch(sess *CallSession) {
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if b.session != sess {
		b.mu.Unlock()
		cancel()
		return
	}
	sess.cancel = cancel
	b.mu.Unlock()

	go func() {
		streams := sess.conn.RemoteStreams()
		for {
			select {
			case <-ctx.Done():
				return
			case remote, ok := <-streams:
				if !ok {
					// Stop selecting on the closed channel.
					streams = nil
					continue
				}
				b.onRemoteStream(sess, remote)
			case <-sess.conn.Done():
				b.end(sess)
				return
			}
		}
	}()
}

func (b *Bridge) onRemoteStream(sess *CallSession, remote Stream) {
	b.mu.Lock()
	if b.session != sess || sess.connected {
		b.mu.Unlock()
		return
	}
	sess.connected = true
	sess.remote = remote
	sess.Phase = domain.CallConnected
	b.mu.Unlock()

	b.emit(Event{Kind: EventConnected, PeerID: sess.PeerID, PeerName: sess.PeerName, Remote: remote})
}

// end releases everything the session holds: capture tracks, the remote
// stream reference, the connection and the watcher. Exactly one caller
// wins; later calls find the slot already cleared. EventEnded is only
// emitted for sessions the consumer was told about: a dial that failed
// before returning, or capture denial, ends silently since its error
// already reached the caller.
func (b *Bridge) end(sess *CallSession) {
	b.mu.Lock()
	if b.session != sess {
		b.mu.Unlock()
		return
	}
	b.session = nil
	local := sess.local
	conn := sess.conn
	cancel := sess.cancel
	announced := sess.announced
	sess.Phase = domain.CallIdle
	sess.remote = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if local != nil {
		local.Stop()
	}
	if conn != nil {
		conn.Close()
	}

	if announced {
		b.emit(Event{Kind: EventEnded, PeerID: sess.PeerID, PeerName: sess.PeerName})
	}
}

func (b *Bridge) emit(event Event) {
	select {
	case b.events <- event:
	default:
		b.log.Warn("event queue full, dropping event", slog.String("kind", string(event.Kind)))
	}
}
