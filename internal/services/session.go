package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/store"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionIDTaken   = errors.New("session id already in use")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const sessionsCollection = "sessions"

func sessionPath(id string) string {
	return store.Doc(sessionsCollection, id)
}

// storeError marks a failed store call so handlers can tell it apart from
// validation and not-found outcomes.
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// NewSessionID returns a random lowercase base-36 id. Collisions are not
// checked here; CreateDocument rejects an id that is already taken.
func NewSessionID() (string, error) {
	base := big.NewInt(int64(len(sessionIDAlphabet)))
	id := make([]byte, models.SessionIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generating session id: %w", err)
		}
		id[i] = sessionIDAlphabet[n.Int64()]
	}
	return string(id), nil
}

type SessionService struct {
	store store.Store
	rng   Rand
	newID func() (string, error)
}

func NewSessionService(st store.Store, rng Rand) *SessionService {
	if rng == nil {
		rng = DefaultRand
	}
	return &SessionService{
		store: st,
		rng:   rng,
		newID: NewSessionID,
	}
}

// Create validates rawItems, lays out the board and stores the session in a
// single write. Nothing is written when validation fails.
func (s *SessionService) Create(ctx context.Context, creatorID, rawItems string) (*models.Session, error) {
	items, err := models.ParseItems(rawItems)
	if err != nil {
		return nil, err
	}
	if creatorID == "" {
		return nil, ErrIdentityRequired
	}

	layout := GenerateLayout(items, s.rng)

	id, err := s.newID()
	if err != nil {
		return nil, err
	}

	err = s.store.CreateDocument(ctx, sessionPath(id), store.Fields{
		"layout":           layout,
		"createdAt":        store.ServerTimestamp,
		"creatorId":        creatorID,
		"participantCount": 0,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, ErrSessionIDTaken
	}
	if err != nil {
		return nil, storeError("creating session", err)
	}

	return s.Get(ctx, id)
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	if !models.ValidSessionID(id) {
		return nil, ErrSessionNotFound
	}
	doc, err := s.store.ReadDocument(ctx, sessionPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, storeError("reading session", err)
	}
	return decodeSession(doc)
}

// Watch streams the session's state. A missing session yields a
// not_found state rather than an error, and the stream keeps running so a
// later create is observed.
func (s *SessionService) Watch(ctx context.Context, id string) (*store.Subscription[models.SessionState], error) {
	if !models.ValidSessionID(id) {
		return nil, ErrSessionNotFound
	}
	sub, err := s.store.SubscribeDocument(ctx, sessionPath(id))
	if err != nil {
		return nil, storeError("watching session", err)
	}
	return store.Map(sub, sessionState), nil
}

func sessionState(snap store.DocumentSnapshot) (models.SessionState, error) {
	if !snap.Exists() {
		return models.SessionState{Status: models.SessionNotFound}, nil
	}
	session, err := decodeSession(snap.Document)
	if err != nil {
		return models.SessionState{}, err
	}
	return models.SessionState{Status: models.SessionReady, Session: session}, nil
}

func decodeSession(doc *store.Document) (*models.Session, error) {
	session := &models.Session{}
	if err := doc.Decode(session); err != nil {
		return nil, err
	}
	session.ID = doc.ID()
	return session, nil
}
