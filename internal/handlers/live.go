package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
)

const (
	liveSendBuffer      = 8
	liveMaxMessageBytes = 4096
	liveWriteWait       = 10 * time.Second
	livePongWait        = 60 * time.Second
	livePingPeriod      = (livePongWait * 9) / 10
)

// Server to client message types.
const (
	messageIdentity     = "identity"
	messageSession      = "session"
	messageParticipants = "participants"
	messageSessions     = "sessions"
	messageError        = "error"
)

// Client to server message types.
const (
	messageToggle = "toggle"
	messageRename = "rename"
)

type identityMessage struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
}

type sessionMessage struct {
	Type    string               `json:"type"`
	Status  models.SessionStatus `json:"status"`
	Session *models.Session      `json:"session,omitempty"`
}

type participantsMessage struct {
	Type         string               `json:"type"`
	Participants []models.Participant `json:"participants"`
}

type sessionsMessage struct {
	Type     string                  `json:"type"`
	Sessions []models.SessionSummary `json:"sessions"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type clientMessage struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`
	Name  string `json:"name,omitempty"`
}

var errUnknownMessage error = &models.ValidationError{Field: "type", Message: "unknown message type"}

// LiveHandler streams session, participant and feed snapshots over
// WebSockets. Every subscription lives exactly as long as its connection.
type LiveHandler struct {
	sessions     *services.SessionService
	participants *services.ParticipantService
	feed         *services.FeedService
	upgrader     websocket.Upgrader
	logger       *logging.Logger
}

func NewLiveHandler(sessions *services.SessionService, participants *services.ParticipantService, feed *services.FeedService, logger *logging.Logger) *LiveHandler {
	if logger == nil {
		logger = logging.Default
	}
	return &LiveHandler{
		sessions:     sessions,
		participants: participants,
		feed:         feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

func (h *LiveHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	identity := middleware.IdentityFromContext(r.Context())
	if identity == "" {
		writeError(w, http.StatusUnauthorized, codeIdentityUnavailable, "Identity unavailable")
		return
	}

	client, ctx, ok := h.open(w, r)
	if !ok {
		return
	}
	defer client.shutdown()

	client.deliver(ctx, identityMessage{Type: messageIdentity, Identity: identity})

	sessionSub, err := h.sessions.Watch(ctx, sessionID)
	if errors.Is(err, services.ErrSessionNotFound) {
		client.deliver(ctx, sessionMessage{Type: messageSession, Status: models.SessionNotFound})
		return
	}
	if err != nil {
		h.deliverError(ctx, client, err)
		return
	}
	defer sessionSub.Close()

	participantSub, err := h.participants.Watch(ctx, sessionID)
	if err != nil {
		h.deliverError(ctx, client, err)
		return
	}
	defer participantSub.Close()

	go client.readPump(func(msg clientMessage) {
		h.handleClientMessage(ctx, client, sessionID, identity, msg)
	})

	joined := false
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-sessionSub.C():
			if !ok {
				h.subscriptionEnded(ctx, client, sessionSub.Err())
				return
			}
			client.deliver(ctx, sessionMessage{Type: messageSession, Status: state.Status, Session: state.Session})
			if state.Status != models.SessionReady || joined {
				continue
			}
			joined = true
			if _, err := h.participants.EnsureJoined(ctx, sessionID, identity); err != nil {
				h.deliverError(ctx, client, err)
			}
		case participants, ok := <-participantSub.C():
			if !ok {
				h.subscriptionEnded(ctx, client, participantSub.Err())
				return
			}
			client.deliver(ctx, participantsMessage{Type: messageParticipants, Participants: participants})
		}
	}
}

func (h *LiveHandler) Feed(w http.ResponseWriter, r *http.Request) {
	client, ctx, ok := h.open(w, r)
	if !ok {
		return
	}
	defer client.shutdown()

	sub, err := h.feed.WatchRecent(ctx)
	if err != nil {
		h.deliverError(ctx, client, err)
		return
	}
	defer sub.Close()

	go client.readPump(nil)

	for {
		select {
		case <-ctx.Done():
			return
		case summaries, ok := <-sub.C():
			if !ok {
				h.subscriptionEnded(ctx, client, sub.Err())
				return
			}
			client.deliver(ctx, sessionsMessage{Type: messageSessions, Sessions: summaries})
		}
	}
}

func (h *LiveHandler) open(w http.ResponseWriter, r *http.Request) (*liveClient, context.Context, bool) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(r.Context())
	client := newLiveClient(conn, cancel)
	go client.writePump(ctx)
	return client, ctx, true
}

func (h *LiveHandler) handleClientMessage(ctx context.Context, client *liveClient, sessionID, identity string, msg clientMessage) {
	var err error
	switch msg.Type {
	case messageToggle:
		if msg.Index == nil {
			err = services.ErrInvalidCell
			break
		}
		_, err = h.participants.Toggle(ctx, sessionID, identity, *msg.Index)
	case messageRename:
		_, err = h.participants.Rename(ctx, sessionID, identity, msg.Name)
	default:
		err = errUnknownMessage
	}
	if err != nil && ctx.Err() == nil {
		h.deliverError(ctx, client, err)
	}
}

func (h *LiveHandler) subscriptionEnded(ctx context.Context, client *liveClient, err error) {
	if err == nil || ctx.Err() != nil {
		return
	}
	h.logger.Error("Live subscription ended", map[string]interface{}{"error": err.Error()})
	h.deliverError(ctx, client, services.ErrStoreUnavailable)
}

func (h *LiveHandler) deliverError(ctx context.Context, client *liveClient, err error) {
	status, code, message := classifyError(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, services.ErrStoreUnavailable) {
		h.logger.Error("Live request failed", map[string]interface{}{"error": err.Error()})
	}
	client.deliver(ctx, errorMessage{Type: messageError, Code: code, Error: message})
}

type liveClient struct {
	conn   *websocket.Conn
	send   chan any
	cancel context.CancelFunc
	done   chan struct{}
}

func newLiveClient(conn *websocket.Conn, cancel context.CancelFunc) *liveClient {
	return &liveClient{
		conn:   conn,
		send:   make(chan any, liveSendBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// deliver queues msg for the writer, giving up once the connection ends.
func (c *liveClient) deliver(ctx context.Context, msg any) {
	select {
	case c.send <- msg:
	case <-ctx.Done():
	}
}

// shutdown ends the connection and waits for the writer to close it.
func (c *liveClient) shutdown() {
	c.cancel()
	<-c.done
}

func (c *liveClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			return
		}
	}
}

// flush writes whatever was queued before the connection ended.
func (c *liveClient) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *liveClient) write(msg any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *liveClient) readPump(handle func(clientMessage)) {
	defer c.cancel()

	c.conn.SetReadLimit(liveMaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if handle == nil {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = clientMessage{}
		}
		handle(msg)
	}
}
