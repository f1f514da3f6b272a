package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/lib/logger/handlers/slogdiscard"
)

type fakeTrack struct {
	kind string

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newFakeTrack(kind string) *fakeTrack {
	return &fakeTrack{kind: kind, enabled: true}
}

func (t *fakeTrack) Kind() string { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeConn struct {
	peerID string
	remote chan Stream
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	answered Stream
	once     sync.Once
}

func newFakeConn(peerID string) *fakeConn {
	return &fakeConn{
		peerID: peerID,
		remote: make(chan Stream, 1),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) PeerID() string { return c.peerID }

func (c *fakeConn) Answer(local Stream) error {
	c.mu.Lock()
	c.answered = local
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) RemoteStreams() <-chan Stream { return c.remote }
func (c *fakeConn) Done() <-chan struct{}        { return c.done }

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Answered() Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answered
}

type fakeSignaler struct {
	calls chan Conn

	mu     sync.Mutex
	dialed []*fakeConn
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{calls: make(chan Conn, 4)}
}

func (s *fakeSignaler) Dial(_ context.Context, peerID string, _ Stream) (Conn, error) {
	conn := newFakeConn(peerID)
	s.mu.Lock()
	s.dialed = append(s.dialed, conn)
	s.mu.Unlock()
	return conn, nil
}

func (s *fakeSignaler) Calls() <-chan Conn { return s.calls }

func (s *fakeSignaler) lastDialed() *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dialed) == 0 {
		return nil
	}
	return s.dialed[len(s.dialed)-1]
}

type fakeDirectory struct {
	users map[string]*domain.User
}

func (d *fakeDirectory) Lookup(_ context.Context, userID string) (*domain.User, error) {
	user, ok := d.users[userID]
	if !ok {
		return nil, ErrPeerNotFound
	}
	return user, nil
}

func grantedMedia(tracks func() []Track) Media {
	return MediaFunc(func(_ context.Context, _ Constraints) (Stream, error) {
		return NewStream(tracks()...), nil
	})
}

var errCaptureDenied = errors.New("permission denied")

func deniedMedia() Media {
	return MediaFunc(func(_ context.Context, _ Constraints) (Stream, error) {
		return nil, errCaptureDenied
	})
}

type bridgeFixture struct {
	bridge *Bridge
	sig    *fakeSignaler
	audio  *fakeTrack
	video  *fakeTrack
}

func newBridgeFixture(t *testing.T, media Media, peers map[string]*domain.User) *bridgeFixture {
	t.Helper()

	f := &bridgeFixture{sig: newFakeSignaler()}
	if media == nil {
		media = grantedMedia(func() []Track {
			f.audio = newFakeTrack("audio")
			f.video = newFakeTrack("video")
			return []Track{f.audio, f.video}
		})
	}

	f.bridge = New(media, f.sig, &fakeDirectory{users: peers}, slogdiscard.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.bridge.Run(ctx)

	return f
}

func waitEvent(t *testing.T, events <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case event := <-events:
			if event.Kind == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

func assertNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case event := <-events:
		t.Fatalf("unexpected %q event", event.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartCallConnectsOnRemoteStream(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	require.NoError(t, f.bridge.StartCall(context.Background(), "bob"))
	assert.Equal(t, domain.CallDialing, f.bridge.Phase())

	conn := f.sig.lastDialed()
	require.NotNil(t, conn)

	remote := NewStream(newFakeTrack("audio"))
	conn.remote <- remote

	event := waitEvent(t, f.bridge.Events(), EventConnected)
	assert.Equal(t, "bob", event.PeerID)
	assert.Same(t, remote, event.Remote)
	assert.Equal(t, domain.CallConnected, f.bridge.Phase())
}

func TestStartCallWhileBusy(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	require.NoError(t, f.bridge.StartCall(context.Background(), "bob"))

	err := f.bridge.StartCall(context.Background(), "carol")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestStartCallCaptureDenied(t *testing.T) {
	f := newBridgeFixture(t, deniedMedia(), nil)

	err := f.bridge.StartCall(context.Background(), "bob")
	require.Error(t, err)
	assert.ErrorIs(t, err, errCaptureDenied)
	assert.Equal(t, domain.CallIdle, f.bridge.Phase())

	// The call never became visible, so no ended event either.
	assertNoEvent(t, f.bridge.Events())
}

func TestEndReleasesEverything(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	require.NoError(t, f.bridge.StartCall(context.Background(), "bob"))
	conn := f.sig.lastDialed()
	require.NotNil(t, conn)

	f.bridge.End()

	waitEvent(t, f.bridge.Events(), EventEnded)
	assert.Equal(t, domain.CallIdle, f.bridge.Phase())
	assert.True(t, conn.Closed())
	assert.True(t, f.audio.Stopped())
	assert.True(t, f.video.Stopped())

	// A second hangup is a no-op.
	f.bridge.End()
	assertNoEvent(t, f.bridge.Events())
}

func TestClosedRemoteStreamChannelStillEndsCleanly(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	require.NoError(t, f.bridge.StartCall(context.Background(), "bob"))
	conn := f.sig.lastDialed()
	require.NotNil(t, conn)

	close(conn.remote)
	conn.Close()

	waitEvent(t, f.bridge.Events(), EventEnded)
	assert.Equal(t, domain.CallIdle, f.bridge.Phase())
	assert.True(t, f.audio.Stopped())
}

func TestRemoteHangupEndsCall(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	require.NoError(t, f.bridge.StartCall(context.Background(), "bob"))
	conn := f.sig.lastDialed()
	require.NotNil(t, conn)

	conn.Close()

	waitEvent(t, f.bridge.Events(), EventEnded)
	assert.Equal(t, domain.CallIdle, f.bridge.Phase())
	assert.True(t, f.audio.Stopped())
}

func TestInboundCallRingsAndAnswers(t *testing.T) {
	bob := domain.NewUser("Bob", "bob@example.com", "hash")
	f := newBridgeFixture(t, nil, map[string]*domain.User{
		bob.ID.String(): bob,
	})

	conn := newFakeConn(bob.ID.String())
	f.sig.calls <- conn

	ringing := waitEvent(t, f.bridge.Events(), EventRinging)
	assert.Equal(t, bob.ID.String(), ringing.PeerID)
	assert.Equal(t, "Bob", ringing.PeerName)
	assert.Equal(t, domain.CallRinging, f.bridge.Phase())

	require.NoError(t, f.bridge.Answer(context.Background()))
	assert.NotNil(t, conn.Answered())

	conn.remote <- NewStream(newFakeTrack("video"))
	waitEvent(t, f.bridge.Events(), EventConnected)
	assert.Equal(t, domain.CallConnected, f.bridge.Phase())

	// A second remote stream does not reconnect.
	conn.remote <- NewStream(newFakeTrack("video"))
	assertNoEvent(t, f.bridge.Events())
}

func TestInboundCallRejected(t *testing.T) {
	bob := domain.NewUser("Bob", "bob@example.com", "hash")
	f := newBridgeFixture(t, nil, map[string]*domain.User{
		bob.ID.String(): bob,
	})

	conn := newFakeConn(bob.ID.String())
	f.sig.calls <- conn

	waitEvent(t, f.bridge.Events(), EventRinging)
	require.NoError(t, f.bridge.Reject())

	waitEvent(t, f.bridge.Events(), EventEnded)
	assert.True(t, conn.Closed())
	assert.Equal(t, domain.CallIdle, f.bridge.Phase())
}

func TestInboundCallWhileBusyIsAutoRejected(t *testing.T) {
	bob := domain.NewUser("Bob", "bob@example.com", "hash")
	f := newBridgeFixture(t, nil, map[string]*domain.User{
		bob.ID.String(): bob,
	})

	require.NoError(t, f.bridge.StartCall(context.Background(), "carol"))

	conn := newFakeConn(bob.ID.String())
	f.sig.calls <- conn

	assert.Eventually(t, conn.Closed, time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.CallDialing, f.bridge.Phase())
}

func TestInboundCallFromUnknownPeerIsDropped(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	conn := newFakeConn("stranger")
	f.sig.calls <- conn

	assert.Eventually(t, conn.Closed, time.Second, 10*time.Millisecond)
	assertNoEvent(t, f.bridge.Events())
	assert.Equal(t, domain.CallIdle, f.bridge.Phase())
}

func TestAnswerWithoutRingingCall(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	assert.ErrorIs(t, f.bridge.Answer(context.Background()), ErrNoIncomingCall)
	assert.ErrorIs(t, f.bridge.Reject(), ErrNoIncomingCall)
}

func TestAnswerCaptureDeniedEndsCall(t *testing.T) {
	bob := domain.NewUser("Bob", "bob@example.com", "hash")
	f := newBridgeFixture(t, deniedMedia(), map[string]*domain.User{
		bob.ID.String(): bob,
	})

	conn := newFakeConn(bob.ID.String())
	f.sig.calls <- conn

	waitEvent(t, f.bridge.Events(), EventRinging)

	err := f.bridge.Answer(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errCaptureDenied)

	waitEvent(t, f.bridge.Events(), EventEnded)
	assert.True(t, conn.Closed())
	assert.Equal(t, domain.CallIdle, f.bridge.Phase())
}

func TestMuteTogglesOnlyAudio(t *testing.T) {
	f := newBridgeFixture(t, nil, nil)

	require.NoError(t, f.bridge.StartCall(context.Background(), "bob"))

	f.bridge.SetMuted(true)
	assert.False(t, f.audio.Enabled())
	assert.True(t, f.video.Enabled())

	f.bridge.SetVideoEnabled(false)
	assert.False(t, f.video.Enabled())

	f.bridge.SetMuted(false)
	assert.True(t, f.audio.Enabled())
	assert.False(t, f.video.Enabled())
}
