package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vimo-chat/vimo/internal/auth"
	"github.com/vimo-chat/vimo/internal/domain"
	"github.com/vimo-chat/vimo/internal/service"
	"github.com/vimo-chat/vimo/lib/logger/sl"
)

// RealtimeController owns the per-client WebSocket session: presence lease,
// channel subscriptions and call-signal routing all hang off the socket
// lifetime, so closing the socket tears everything down.
type RealtimeController struct {
	users        service.UserInteractor
	chat         service.ChatInteractor
	presence     service.PresenceInteractor
	signals      service.SignalRouter
	tokens       *auth.TokenService
	historyLimit int
	stunServers  []string
	log          *slog.Logger
	upgrader     websocket.Upgrader
}

func NewRealtimeController(
	users service.UserInteractor,
	chat service.ChatInteractor,
	presence service.PresenceInteractor,
	signals service.SignalRouter,
	tokens *auth.TokenService,
	historyLimit int,
	stunServers []string,
	log *slog.Logger,
) *RealtimeController {
	if log == nil {
		log = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &RealtimeController{
		users:        users,
		chat:         chat,
		presence:     presence,
		signals:      signals,
		tokens:       tokens,
		historyLimit: historyLimit,
		stunServers:  stunServers,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *RealtimeController) Connect(ctx *gin.Context) {
	token := ctx.Query("token")
	if token == "" {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	userID, err := c.tokens.Validate(token)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := c.users.GetUser(ctx.Request.Context(), userID)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ctx.String(http.StatusInternalServerError, "failed to upgrade connection")
		return
	}

	c.serve(conn, user)
}

func (c *RealtimeController) serve(conn *websocket.Conn, user *domain.User) {
	log := c.log.With(slog.String("user_id", user.ID.String()))

	sess := domain.NewSession(user.ID, user.DisplayName)
	sess.Socket = conn

	lease, err := c.presence.Connect(context.Background(), user.ID)
	if err != nil {
		log.Error("presence connect failed", sl.Err(err))
		_ = conn.WriteJSON(domain.SignalMessage{Type: domain.SignalError, Payload: map[string]any{"error": "presence unavailable"}})
		conn.Close()
		return
	}

	c.signals.Attach(sess)

	presSub := c.presence.Subscribe()
	chatSubs := make(map[string]*service.ChatSubscription)

	done := make(chan struct{})
	defer func() {
		for _, sub := range chatSubs {
			sub.Cancel()
		}
		presSub.Cancel()
		c.signals.Detach(sess)
		lease.Release(context.Background())
		close(done)
		conn.Close()
		log.Info("session closed")
	}()

	go c.writeEvents(sess, done)
	go pumpPresence(sess, presSub)

	c.sendWelcome(sess)
	log.Info("session established")

	for {
		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		sess.Touch()

		switch msg.Type {
		case domain.SignalChat:
			c.handleChat(sess, &msg)
		case domain.SignalSubscribe:
			c.handleSubscribe(sess, &msg, chatSubs)
		case domain.SignalUnsubscribe:
			if sub, ok := chatSubs[msg.Channel]; ok {
				sub.Cancel()
				delete(chatSubs, msg.Channel)
			}
		case domain.SignalCall, domain.SignalAnswer, domain.SignalReject,
			domain.SignalBusy, domain.SignalHangup, domain.SignalCandidate:
			if err := c.signals.Route(context.Background(), sess, &msg); err != nil {
				sess.EnqueueEvent(errorEvent(err))
			}
		default:
			sess.EnqueueEvent(errorEvent(service.ErrUnsupportedSignal))
		}
	}
}

func (c *RealtimeController) writeEvents(sess *domain.Session, done <-chan struct{}) {
	for {
		select {
		case event := <-sess.Events:
			if err := sess.Socket.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func pumpPresence(sess *domain.Session, sub *service.PresenceSubscription) {
	for event := range sub.Events() {
		sess.EnqueueEvent(domain.SignalMessage{
			Type:     domain.SignalPresence,
			SenderID: event.UserID.String(),
			Payload: map[string]any{
				"state":        string(event.State),
				"last_changed": event.LastChanged.UTC().Format(time.RFC3339Nano),
			},
		})
	}
}

func (c *RealtimeController) sendWelcome(sess *domain.Session) {
	snapshot, err := c.presence.Snapshot(context.Background())
	if err != nil {
		c.log.Error("presence snapshot failed", sl.Err(err))
		snapshot = nil
	}

	states := make(map[string]any, len(snapshot))
	for _, rec := range snapshot {
		states[rec.UserID.String()] = string(rec.State)
	}

	sess.EnqueueEvent(domain.SignalMessage{
		Type:     domain.SignalWelcome,
		TargetID: sess.UserID.String(),
		Payload: map[string]any{
			"session_id":   sess.ID,
			"presence":     states,
			"stun_servers": c.stunServers,
		},
	})
}

func (c *RealtimeController) handleChat(sess *domain.Session, msg *domain.SignalMessage) {
	text, _ := msg.Payload["text"].(string)

	sent, err := c.chat.Send(context.Background(), msg.Channel, sess.UserID, text)
	if err != nil {
		sess.EnqueueEvent(errorEvent(err))
		return
	}

	// The sender's own copy arrives through its channel subscription like
	// everyone else's; only an ack with the assigned seq goes back here.
	sess.EnqueueEvent(domain.SignalMessage{
		Type:    domain.SignalChat,
		Channel: sent.ChannelID,
		Payload: map[string]any{
			"ack": sent.ID.String(),
			"seq": sent.Seq,
		},
	})
}

func (c *RealtimeController) handleSubscribe(sess *domain.Session, msg *domain.SignalMessage, chatSubs map[string]*service.ChatSubscription) {
	channelID := msg.Channel
	if !domain.IsChannelMember(channelID, sess.UserID.String()) {
		sess.EnqueueEvent(errorEvent(service.ErrNotChannelMember))
		return
	}

	limit := c.historyLimit
	if raw, ok := msg.Payload["limit"].(float64); ok && raw > 0 {
		limit = int(raw)
	}

	if sub, ok := chatSubs[channelID]; ok {
		sub.Cancel()
		delete(chatSubs, channelID)
	}

	sub, err := c.chat.Subscribe(context.Background(), channelID, limit)
	if err != nil {
		sess.EnqueueEvent(errorEvent(err))
		return
	}
	chatSubs[channelID] = sub

	go pumpChat(sess, sub)
}

func pumpChat(sess *domain.Session, sub *service.ChatSubscription) {
	for msg := range sub.Messages() {
		sess.EnqueueEvent(domain.SignalMessage{
			Type:     domain.SignalChat,
			Channel:  msg.ChannelID,
			SenderID: msg.SenderID.String(),
			Payload: map[string]any{
				"id":        msg.ID.String(),
				"text":      msg.Text,
				"seq":       msg.Seq,
				"timestamp": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		})
	}
}

func errorEvent(err error) domain.SignalMessage {
	return domain.SignalMessage{
		Type:    domain.SignalError,
		Payload: map[string]any{"error": err.Error()},
	}
}
