package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/middleware"
	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/services"
	"github.com/HammerMeetNail/livebingo/internal/store"
	"github.com/HammerMeetNail/livebingo/internal/testutil"
)

const testIdentityHeader = "X-Test-Identity"

const tenItems = "alpha\nbravo\ncharlie\ndelta\necho\nfoxtrot\ngolf\nhotel\nindia\njuliet"

type testEnv struct {
	store        store.Store
	sessions     *services.SessionService
	participants *services.ParticipantService
	feed         *services.FeedService
	sender       *recordingSender
	handler      http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.New().SetLevel(logging.LevelError)
	return newTestEnvWithStore(t, store.NewGateway(store.NewMemoryBackend(), store.NewMemoryNotifier(), logger))
}

func newTestEnvWithStore(t *testing.T, st store.Store) *testEnv {
	t.Helper()
	logger := logging.New().SetLevel(logging.LevelError)

	env := &testEnv{
		store:        st,
		sessions:     services.NewSessionService(st, services.DefaultRand),
		participants: services.NewParticipantService(st, services.DefaultRand, services.JoinModeCheckThenAct),
		feed:         services.NewFeedService(st),
		sender:       &recordingSender{},
	}
	invites := services.NewInviteService(env.sessions, env.sender, "https://bingo.example")

	sessionHandler := NewSessionHandler(env.sessions, env.participants, env.feed)
	inviteHandler := NewInviteHandler(invites, env.participants)
	shareHandler := NewShareHandler(env.sessions, env.participants, "https://bingo.example")
	liveHandler := NewLiveHandler(env.sessions, env.participants, env.feed, logger)
	pageHandler, err := NewPageHandler(env.sessions, env.participants, env.feed, "https://bingo.example")
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", sessionHandler.Create)
	mux.HandleFunc("GET /api/sessions/recent", sessionHandler.Recent)
	mux.HandleFunc("GET /api/sessions/{id}", sessionHandler.Get)
	mux.HandleFunc("POST /api/sessions/{id}/join", sessionHandler.Join)
	mux.HandleFunc("GET /api/sessions/{id}/participants", sessionHandler.Participants)
	mux.HandleFunc("PUT /api/sessions/{id}/cells/{index}", sessionHandler.Toggle)
	mux.HandleFunc("PUT /api/sessions/{id}/name", sessionHandler.Rename)
	mux.HandleFunc("POST /api/sessions/{id}/invites", inviteHandler.Create)
	mux.HandleFunc("GET /api/sessions/{id}/qr", shareHandler.QR)
	mux.HandleFunc("GET /og/sessions/{id}", shareHandler.Board)
	mux.HandleFunc("GET /ws/sessions/{id}", liveHandler.Session)
	mux.HandleFunc("GET /ws/sessions", liveHandler.Feed)
	mux.HandleFunc("GET /{$}", pageHandler.Home)
	mux.HandleFunc("GET /play/{id}", pageHandler.Session)

	env.handler = withTestIdentity(mux)
	return env
}

// withTestIdentity stands in for the identity middleware.
func withTestIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity := r.Header.Get(testIdentityHeader); identity != "" {
			r = r.WithContext(middleware.WithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}

func (e *testEnv) do(t *testing.T, method, path, identity string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewTestRequestWithJSON(t, method, path, body)
	if identity != "" {
		req.Header.Set(testIdentityHeader, identity)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T, creator string) *models.Session {
	t.Helper()
	session, err := e.sessions.Create(context.Background(), creator, tenItems)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	testutil.AssertStatusCode(t, rec, status)
	body := decodeBody[errorResponse](t, rec)
	if body.Code != code {
		t.Fatalf("expected code %q, got %q (%s)", code, body.Code, body.Error)
	}
	if strings.TrimSpace(body.Error) == "" {
		t.Fatal("expected an error message")
	}
}

// firstItemIndex returns the first non-gap cell of the layout.
func firstItemIndex(t *testing.T, layout models.Layout) int {
	t.Helper()
	for i := range layout {
		if !layout.IsGap(i) {
			return i
		}
	}
	t.Fatal("layout has no items")
	return -1
}

func firstGapIndex(t *testing.T, layout models.Layout) int {
	t.Helper()
	for i := range layout {
		if layout.IsGap(i) {
			return i
		}
	}
	t.Fatal("layout has no gaps")
	return -1
}

type recordingSender struct {
	mu   sync.Mutex
	sent []recordedInvite
}

type recordedInvite struct {
	to, subject, text string
}

func (s *recordingSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, recordedInvite{to: to, subject: subject, text: textBody})
	return nil
}

var errStoreDown = errors.New("connection refused")

// unavailableStore fails every operation.
type unavailableStore struct{}

func (unavailableStore) CreateDocument(ctx context.Context, path string, fields store.Fields) error {
	return errStoreDown
}

func (unavailableStore) ReadDocument(ctx context.Context, path string) (*store.Document, error) {
	return nil, errStoreDown
}

func (unavailableStore) MergeDocument(ctx context.Context, path string, fields store.Fields) error {
	return errStoreDown
}

func (unavailableStore) IncrementField(ctx context.Context, path, field string, delta int64) error {
	return errStoreDown
}

func (unavailableStore) QueryDocuments(ctx context.Context, q store.Query) ([]store.Document, error) {
	return nil, errStoreDown
}

func (unavailableStore) SubscribeDocument(ctx context.Context, path string) (*store.Subscription[store.DocumentSnapshot], error) {
	return nil, errStoreDown
}

func (unavailableStore) SubscribeQuery(ctx context.Context, q store.Query) (*store.Subscription[store.QuerySnapshot], error) {
	return nil, errStoreDown
}
