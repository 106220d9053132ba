package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/store"
)

type liveEnvelope struct {
	Type         string                  `json:"type"`
	Identity     string                  `json:"identity"`
	Status       models.SessionStatus    `json:"status"`
	Session      *models.Session         `json:"session"`
	Participants []models.Participant    `json:"participants"`
	Sessions     []models.SessionSummary `json:"sessions"`
	Code         string                  `json:"code"`
	Error        string                  `json:"error"`
}

func dialLive(t *testing.T, env *testEnv, path, identity string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	header := http.Header{}
	if identity != "" {
		header.Set(testIdentityHeader, identity)
	}
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(liveEnvelope) bool) liveEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg liveEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("reading live message: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func participantWith(msg liveEnvelope, identity string, check func(models.Participant) bool) bool {
	if msg.Type != messageParticipants {
		return false
	}
	for _, p := range msg.Participants {
		if p.UserID == identity {
			return check(p)
		}
	}
	return false
}

func TestLiveHandler_SessionJoinsAndStreams(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "creator-1")
	conn := dialLive(t, env, "/ws/sessions/"+session.ID, "player-1")

	first := readUntil(t, conn, func(msg liveEnvelope) bool { return true })
	if first.Type != messageIdentity || first.Identity != "player-1" {
		t.Fatalf("expected identity message first, got %+v", first)
	}

	ready := readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageSession })
	if ready.Status != models.SessionReady || ready.Session == nil || ready.Session.ID != session.ID {
		t.Fatalf("unexpected session message %+v", ready)
	}

	// The joined participant and the bumped count arrive on separate
	// subscriptions in either order.
	sawParticipant, sawCount := false, false
	readUntil(t, conn, func(msg liveEnvelope) bool {
		if participantWith(msg, "player-1", func(models.Participant) bool { return true }) {
			sawParticipant = true
		}
		if msg.Type == messageSession && msg.Session != nil && msg.Session.ParticipantCount == 1 {
			sawCount = true
		}
		return sawParticipant && sawCount
	})

	index := firstItemIndex(t, session.Layout)
	if err := conn.WriteJSON(clientMessage{Type: messageToggle, Index: &index}); err != nil {
		t.Fatalf("write toggle: %v", err)
	}
	readUntil(t, conn, func(msg liveEnvelope) bool {
		return participantWith(msg, "player-1", func(p models.Participant) bool { return p.IsChecked(index) })
	})

	if err := conn.WriteJSON(clientMessage{Type: messageRename, Name: "Ada"}); err != nil {
		t.Fatalf("write rename: %v", err)
	}
	readUntil(t, conn, func(msg liveEnvelope) bool {
		return participantWith(msg, "player-1", func(p models.Participant) bool { return p.Name == "Ada" })
	})
}

func TestLiveHandler_SeesOtherParticipants(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "creator-1")
	conn := dialLive(t, env, "/ws/sessions/"+session.ID, "player-1")
	readUntil(t, conn, func(msg liveEnvelope) bool {
		return participantWith(msg, "player-1", func(models.Participant) bool { return true })
	})

	if _, err := env.participants.EnsureJoined(context.Background(), session.ID, "player-2"); err != nil {
		t.Fatalf("join player-2: %v", err)
	}
	readUntil(t, conn, func(msg liveEnvelope) bool {
		return participantWith(msg, "player-2", func(models.Participant) bool { return true })
	})
}

func TestLiveHandler_ClientErrors(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "creator-1")
	conn := dialLive(t, env, "/ws/sessions/"+session.ID, "player-1")
	readUntil(t, conn, func(msg liveEnvelope) bool {
		return participantWith(msg, "player-1", func(models.Participant) bool { return true })
	})

	if err := conn.WriteJSON(clientMessage{Type: "shout"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageError })
	if msg.Code != codeValidation {
		t.Fatalf("expected validation error, got %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageError })
	if msg.Code != codeValidation {
		t.Fatalf("expected validation error, got %+v", msg)
	}

	if err := conn.WriteJSON(clientMessage{Type: messageToggle}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageError })
	if msg.Code != codeValidation {
		t.Fatalf("expected validation error for missing index, got %+v", msg)
	}
}

func TestLiveHandler_MissingSession(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"abc123", "NOT-AN-ID"} {
		conn := dialLive(t, env, "/ws/sessions/"+id, "player-1")
		msg := readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageSession })
		if msg.Status != models.SessionNotFound || msg.Session != nil {
			t.Fatalf("%s: expected not_found, got %+v", id, msg)
		}
	}
}

func TestLiveHandler_SessionCreatedLater(t *testing.T) {
	env := newTestEnv(t)
	conn := dialLive(t, env, "/ws/sessions/abc123", "player-1")
	msg := readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageSession })
	if msg.Status != models.SessionNotFound {
		t.Fatalf("expected not_found, got %+v", msg)
	}

	if err := env.store.CreateDocument(context.Background(), "sessions/abc123", map[string]any{
		"layout":           make([]*string, models.Cells),
		"creatorId":        "creator-1",
		"participantCount": 0,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	msg = readUntil(t, conn, func(msg liveEnvelope) bool {
		return msg.Type == messageSession && msg.Status == models.SessionReady
	})
	if msg.Session.ID != "abc123" {
		t.Fatalf("unexpected session %+v", msg.Session)
	}
}

func TestLiveHandler_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/ws/sessions/abc123", "", nil)
	expectError(t, rec, http.StatusUnauthorized, codeIdentityUnavailable)
}

func TestLiveHandler_StoreUnavailable(t *testing.T) {
	env := newTestEnvWithStore(t, unavailableStore{})
	conn := dialLive(t, env, "/ws/sessions/abc123", "player-1")

	msg := readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageError })
	if msg.Code != codeStoreUnavailable {
		t.Fatalf("expected store_unavailable, got %+v", msg)
	}
}

func TestLiveHandler_Feed(t *testing.T) {
	env := newTestEnv(t)
	conn := dialLive(t, env, "/ws/sessions", "")

	msg := readUntil(t, conn, func(msg liveEnvelope) bool { return msg.Type == messageSessions })
	if len(msg.Sessions) != 0 {
		t.Fatalf("expected empty feed, got %v", msg.Sessions)
	}

	session := env.createSession(t, "creator-1")
	msg = readUntil(t, conn, func(msg liveEnvelope) bool {
		return msg.Type == messageSessions && len(msg.Sessions) == 1
	})
	if msg.Sessions[0].ID != session.ID || msg.Sessions[0].ItemCount != 10 {
		t.Fatalf("unexpected summary %+v", msg.Sessions[0])
	}
}

// countingNotifier tracks listeners that have been opened and not closed.
type countingNotifier struct {
	*store.MemoryNotifier
	open atomic.Int64
}

func (n *countingNotifier) Listen(ctx context.Context, channels ...string) (store.Listener, error) {
	l, err := n.MemoryNotifier.Listen(ctx, channels...)
	if err != nil {
		return nil, err
	}
	n.open.Add(1)
	return &countedListener{Listener: l, open: &n.open}, nil
}

type countedListener struct {
	store.Listener
	open *atomic.Int64
	once sync.Once
}

func (l *countedListener) Close() error {
	l.once.Do(func() { l.open.Add(-1) })
	return l.Listener.Close()
}

func TestLiveHandler_DisconnectReleasesSubscriptions(t *testing.T) {
	notifier := &countingNotifier{MemoryNotifier: store.NewMemoryNotifier()}
	logger := logging.New().SetLevel(logging.LevelError)
	env := newTestEnvWithStore(t, store.NewGateway(store.NewMemoryBackend(), notifier, logger))
	session := env.createSession(t, "creator-1")

	sessionConn := dialLive(t, env, "/ws/sessions/"+session.ID, "player-1")
	readUntil(t, sessionConn, func(msg liveEnvelope) bool {
		return participantWith(msg, "player-1", func(models.Participant) bool { return true })
	})
	feedConn := dialLive(t, env, "/ws/sessions", "")
	readUntil(t, feedConn, func(msg liveEnvelope) bool { return msg.Type == messageSessions })

	if got := notifier.open.Load(); got != 3 {
		t.Fatalf("expected 3 open listeners while connected, got %d", got)
	}

	_ = sessionConn.Close()
	_ = feedConn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for notifier.open.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected listeners released after disconnect, %d still open", notifier.open.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
