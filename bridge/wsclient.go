package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/lib/logger/sl"
)

var ErrPeerNotFound = errors.New("peer profile not found")

const noteBuffer = 64

// Client is the realtime client for the vimo backend: it speaks the
// signaling protocol over one authenticated WebSocket and negotiates the
// actual media transport peer-to-peer via WebRTC. It implements both the
// Signaler and Directory ports of the Bridge.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	ws      *websocket.Conn
	rtc     webrtc.Configuration
	log     *slog.Logger

	writeMu sync.Mutex

	mu    sync.Mutex
	links map[string]*peerLink

	calls  chan Conn
	notes  chan domain.SignalMessage
	closed chan struct{}
	once   sync.Once
}

// DialClient connects to the backend at baseURL (http or https) using a
// session token obtained from the auth endpoints.
func DialClient(ctx context.Context, baseURL, token string, stunServers []string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/ws"
	u.RawQuery = "token=" + url.QueryEscape(token)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	var rtc webrtc.Configuration
	if len(stunServers) > 0 {
		rtc.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   http.DefaultClient,
		ws:      ws,
		rtc:     rtc,
		log:     log,
		links:   make(map[string]*peerLink),
		calls:   make(chan Conn, 1),
		notes:   make(chan domain.SignalMessage, noteBuffer),
		closed:  make(chan struct{}),
	}

	go c.readLoop()

	return c, nil
}

func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
	return nil
}

// Calls implements Signaler.
func (c *Client) Calls() <-chan Conn {
	return c.calls
}

// Notifications carries everything that is not call signaling: chat
// messages, presence transitions, the welcome snapshot and server errors.
func (c *Client) Notifications() <-chan domain.SignalMessage {
	return c.notes
}

// SendChat appends a message to the channel's log.
func (c *Client) SendChat(channelID, text string) error {
	return c.send(domain.SignalMessage{
		Type:    domain.SignalChat,
		Channel: channelID,
		Payload: map[string]any{"text": text},
	})
}

// SubscribeChannel starts the live feed of a channel: the most recent
// limit messages first, then updates.
func (c *Client) SubscribeChannel(channelID string, limit int) error {
	return c.send(domain.SignalMessage{
		Type:    domain.SignalSubscribe,
		Channel: channelID,
		Payload: map[string]any{"limit": limit},
	})
}

func (c *Client) UnsubscribeChannel(channelID string) error {
	return c.send(domain.SignalMessage{
		Type:    domain.SignalUnsubscribe,
		Channel: channelID,
	})
}

// Dial implements Signaler: it sends the call invitation carrying an SDP
// offer and returns the leg the answer will arrive on.
func (c *Client) Dial(ctx context.Context, peerID string, local Stream) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	link := newPeerLink(c, peerID, false)
	if err := link.setupPeerConnection(local); err != nil {
		return nil, err
	}

	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		link.teardown()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := link.pc.SetLocalDescription(offer); err != nil {
		link.teardown()
		return nil, fmt.Errorf("set local description: %w", err)
	}

	c.register(link)

	if err := c.send(domain.SignalMessage{
		Type:     domain.SignalCall,
		TargetID: peerID,
		SDP:      &offer,
	}); err != nil {
		c.unregister(link)
		link.teardown()
		return nil, err
	}

	return link, nil
}

// Lookup implements Directory via the profile REST endpoint.
func (c *Client) Lookup(ctx context.Context, userID string) (*domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users/"+userID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPeerNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup %s: unexpected status %d", userID, resp.StatusCode)
	}

	var body struct {
		User *domain.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.User == nil {
		return nil, ErrPeerNotFound
	}

	return body.User, nil
}

func (c *Client) send(msg domain.SignalMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		var msg domain.SignalMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case domain.SignalCall:
			c.handleInboundCall(msg)
		case domain.SignalAnswer:
			if link := c.link(msg.SenderID); link != nil {
				link.handleAnswer(msg.SDP)
			}
		case domain.SignalCandidate:
			if link := c.link(msg.SenderID); link != nil && msg.Candidate != nil {
				link.addRemoteCandidate(*msg.Candidate)
			}
		case domain.SignalReject, domain.SignalBusy, domain.SignalHangup, domain.SignalUnavailable:
			if link := c.link(msg.SenderID); link != nil {
				link.remoteClosed()
			}
		default:
			select {
			case c.notes <- msg:
			default:
			}
		}
	}
}

func (c *Client) handleInboundCall(msg domain.SignalMessage) {
	link := newPeerLink(c, msg.SenderID, true)
	link.offer = msg.SDP

	c.register(link)

	select {
	case c.calls <- link:
	default:
		// Nobody consuming inbound calls, decline.
		link.Close()
	}
}

func (c *Client) register(link *peerLink) {
	c.mu.Lock()
	c.links[link.peerID] = link
	c.mu.Unlock()
}

func (c *Client) unregister(link *peerLink) {
	c.mu.Lock()
	if c.links[link.peerID] == link {
		delete(c.links, link.peerID)
	}
	c.mu.Unlock()
}

func (c *Client) link(peerID string) *peerLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.links[peerID]
}

// peerLink is one call leg: the WebRTC peer connection plus its signaling
// state. It implements Conn.
type peerLink struct {
	client  *Client
	peerID  string
	inbound bool
	offer   *webrtc.SessionDescription

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	answered  bool
	remoteStr *remoteStream
	pending   []webrtc.ICECandidateInit

	remote   chan Stream
	done     chan struct{}
	doneOnce sync.Once
	sendOnce sync.Once
}

func newPeerLink(c *Client, peerID string, inbound bool) *peerLink {
	return &peerLink{
		client:  c,
		peerID:  peerID,
		inbound: inbound,
		remote:  make(chan Stream, 2),
		done:    make(chan struct{}),
	}
}

func (l *peerLink) PeerID() string {
	return l.peerID
}

func (l *peerLink) RemoteStreams() <-chan Stream {
	return l.remote
}

func (l *peerLink) Done() <-chan struct{} {
	return l.done
}

func (l *peerLink) setupPeerConnection(local Stream) error {
	pc, err := webrtc.NewPeerConnection(l.client.rtc)
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	if local != nil {
		for _, t := range local.Tracks() {
			lt, ok := t.(*LocalTrack)
			if !ok {
				continue
			}
			if _, err := pc.AddTrack(lt.rtp); err != nil {
				pc.Close()
				return fmt.Errorf("add track: %w", err)
			}
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		if err := l.client.send(domain.SignalMessage{
			Type:      domain.SignalCandidate,
			TargetID:  l.peerID,
			Candidate: &init,
		}); err != nil {
			l.client.log.Debug("failed to send ice candidate", sl.Err(err))
		}
	})

	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		l.onRemoteTrack(tr)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			l.remoteClosed()
		}
	})

	l.mu.Lock()
	l.pc = pc
	l.mu.Unlock()

	return nil
}

// Answer implements Conn for inbound legs.
func (l *peerLink) Answer(local Stream) error {
	l.mu.Lock()
	if l.offer == nil || l.answered {
		l.mu.Unlock()
		return errors.New("nothing to answer")
	}
	l.answered = true
	offer := *l.offer
	l.mu.Unlock()

	if err := l.setupPeerConnection(local); err != nil {
		return err
	}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	l.flushCandidates()

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	return l.client.send(domain.SignalMessage{
		Type:     domain.SignalAnswer,
		TargetID: l.peerID,
		SDP:      &answer,
	})
}

func (l *peerLink) handleAnswer(sdp *webrtc.SessionDescription) {
	if sdp == nil {
		return
	}
	l.mu.Lock()
	l.answered = true
	pc := l.pc
	l.mu.Unlock()
	if pc == nil {
		return
	}

	if err := pc.SetRemoteDescription(*sdp); err != nil {
		l.client.log.Debug("failed to apply answer", sl.Err(err))
		return
	}
	l.flushCandidates()
}

// addRemoteCandidate buffers trickled candidates that arrive before the
// remote description is applied.
func (l *peerLink) addRemoteCandidate(cand webrtc.ICECandidateInit) {
	l.mu.Lock()
	pc := l.pc
	ready := pc != nil && pc.RemoteDescription() != nil
	if !ready {
		l.pending = append(l.pending, cand)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if err := pc.AddICECandidate(cand); err != nil {
		l.client.log.Debug("failed to add ice candidate", sl.Err(err))
	}
}

func (l *peerLink) flushCandidates() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	pc := l.pc
	l.mu.Unlock()

	for _, cand := range pending {
		if err := pc.AddICECandidate(cand); err != nil {
			l.client.log.Debug("failed to add ice candidate", sl.Err(err))
		}
	}
}

func (l *peerLink) onRemoteTrack(tr *webrtc.TrackRemote) {
	l.mu.Lock()
	created := false
	if l.remoteStr == nil {
		l.remoteStr = &remoteStream{}
		created = true
	}
	l.remoteStr.add(&remoteTrack{kind: tr.Kind().String(), enabled: true})
	stream := l.remoteStr
	l.mu.Unlock()

	if created {
		select {
		case l.remote <- stream:
		default:
		}
	}
}

// Close implements Conn: before answer it rejects, afterwards it hangs up.
func (l *peerLink) Close() error {
	select {
	case <-l.done:
		return nil
	default:
	}

	l.sendOnce.Do(func() {
		l.mu.Lock()
		answered := l.answered
		l.mu.Unlock()

		typ := domain.SignalHangup
		if l.inbound && !answered {
			typ = domain.SignalReject
		}
		_ = l.client.send(domain.SignalMessage{Type: typ, TargetID: l.peerID})
	})

	l.teardown()
	return nil
}

// remoteClosed handles the other side ending the call, no signal back.
func (l *peerLink) remoteClosed() {
	l.sendOnce.Do(func() {})
	l.teardown()
}

func (l *peerLink) teardown() {
	l.mu.Lock()
	pc := l.pc
	l.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
	l.client.unregister(l)
	l.doneOnce.Do(func() {
		close(l.done)
	})
}

// LocalTrack wraps a pion local track so it can travel through the Media
// port. SetEnabled only flips a local flag; sample writers are expected to
// consult Enabled before pushing media.
type LocalTrack struct {
	rtp webrtc.TrackLocal

	mu      sync.Mutex
	enabled bool
	stopped bool
	stop    func()
}

func NewLocalTrack(rtp webrtc.TrackLocal, stop func()) *LocalTrack {
	return &LocalTrack{rtp: rtp, enabled: true, stop: stop}
}

func (t *LocalTrack) Kind() string {
	return t.rtp.Kind().String()
}

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled && !t.stopped
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	stop := t.stop
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
}

type remoteTrack struct {
	kind string

	mu      sync.Mutex
	enabled bool
}

func (t *remoteTrack) Kind() string {
	return t.kind
}

func (t *remoteTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *remoteTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *remoteTrack) Stop() {}

type remoteStream struct {
	mu     sync.Mutex
	tracks []Track
}

func (s *remoteStream) add(t Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *remoteStream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *remoteStream) Stop() {}
