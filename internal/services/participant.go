package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/store"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrIdentityRequired    = errors.New("identity required")

	ErrInvalidCell error = &models.ValidationError{Field: "index", Message: fmt.Sprintf("cell index must be between 0 and %d", models.Cells-1)}
	ErrEmptyName   error = &models.ValidationError{Field: "name", Message: "name cannot be empty"}
	ErrNameTooLong error = &models.ValidationError{Field: "name", Message: fmt.Sprintf("this server limits display names to %d characters", models.MaxNameLength)}
)

// JoinMode selects how EnsureJoined creates a missing participant record.
type JoinMode string

const (
	// JoinModeCheckThenAct reads, then writes and increments. Two first
	// joins racing for one identity can both create, and both increment
	// participantCount.
	JoinModeCheckThenAct JoinMode = "check_then_act"
	// JoinModeCreateIfAbsent creates the record in one conditional write and
	// increments only when that write created it.
	JoinModeCreateIfAbsent JoinMode = "create_if_absent"
)

func participantsCollection(sessionID string) string {
	return store.Doc(sessionsCollection, sessionID, "participants")
}

func participantPath(sessionID, identity string) string {
	return store.Doc(sessionsCollection, sessionID, "participants", identity)
}

type ParticipantService struct {
	store store.Store
	rng   Rand
	mode  JoinMode
}

func NewParticipantService(st store.Store, rng Rand, mode JoinMode) *ParticipantService {
	if rng == nil {
		rng = DefaultRand
	}
	if mode == "" {
		mode = JoinModeCheckThenAct
	}
	return &ParticipantService{
		store: st,
		rng:   rng,
		mode:  mode,
	}
}

func validIdentity(identity string) bool {
	return identity != "" && !strings.ContainsAny(identity, "/ \t\n")
}

// EnsureJoined makes sure identity has a participant record in the session
// and reports whether this call created it.
func (s *ParticipantService) EnsureJoined(ctx context.Context, sessionID, identity string) (bool, error) {
	if !validIdentity(identity) {
		return false, ErrIdentityRequired
	}
	if _, err := s.readSession(ctx, sessionID); err != nil {
		return false, err
	}

	path := participantPath(sessionID, identity)
	fields := store.Fields{
		"userId":         identity,
		"name":           GenerateDisplayName(s.rng),
		"checkedIndices": []int{},
		"lastActive":     store.ServerTimestamp,
	}

	switch s.mode {
	case JoinModeCreateIfAbsent:
		err := s.store.CreateDocument(ctx, path, fields)
		if errors.Is(err, store.ErrAlreadyExists) {
			return false, nil
		}
		if err != nil {
			return false, storeError("creating participant", err)
		}
	default:
		_, err := s.store.ReadDocument(ctx, path)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return false, storeError("reading participant", err)
		}
		if err := s.store.MergeDocument(ctx, path, fields); err != nil {
			return false, storeError("creating participant", err)
		}
	}

	if err := s.store.IncrementField(ctx, sessionPath(sessionID), "participantCount", 1); err != nil {
		return true, storeError("incrementing participant count", err)
	}
	return true, nil
}

func (s *ParticipantService) Get(ctx context.Context, sessionID, identity string) (*models.Participant, error) {
	if !validIdentity(identity) {
		return nil, ErrIdentityRequired
	}
	if !models.ValidSessionID(sessionID) {
		return nil, ErrSessionNotFound
	}
	doc, err := s.store.ReadDocument(ctx, participantPath(sessionID, identity))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, storeError("reading participant", err)
	}
	return decodeParticipant(*doc)
}

// Toggle flips index in the participant's marked set and refreshes
// lastActive. Toggling a gap is a no-op and writes nothing.
func (s *ParticipantService) Toggle(ctx context.Context, sessionID, identity string, index int) (*models.Participant, error) {
	if index < 0 || index >= models.Cells {
		return nil, ErrInvalidCell
	}
	session, err := s.readSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participant, err := s.Get(ctx, sessionID, identity)
	if err != nil {
		return nil, err
	}
	if session.Layout.IsGap(index) {
		return participant, nil
	}

	err = s.store.MergeDocument(ctx, participantPath(sessionID, identity), store.Fields{
		"checkedIndices": participant.ToggledIndices(index),
		"lastActive":     store.ServerTimestamp,
	})
	if err != nil {
		return nil, storeError("toggling cell", err)
	}
	return s.Get(ctx, sessionID, identity)
}

func (s *ParticipantService) Rename(ctx context.Context, sessionID, identity, name string) (*models.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if utf8.RuneCountInString(name) > models.MaxNameLength {
		return nil, ErrNameTooLong
	}
	if _, err := s.Get(ctx, sessionID, identity); err != nil {
		return nil, err
	}

	err := s.store.MergeDocument(ctx, participantPath(sessionID, identity), store.Fields{
		"name":       name,
		"lastActive": store.ServerTimestamp,
	})
	if err != nil {
		return nil, storeError("renaming participant", err)
	}
	return s.Get(ctx, sessionID, identity)
}

// List returns the session's participants in presence order.
func (s *ParticipantService) List(ctx context.Context, sessionID string) ([]models.Participant, error) {
	if !models.ValidSessionID(sessionID) {
		return nil, ErrSessionNotFound
	}
	docs, err := s.store.QueryDocuments(ctx, store.Query{Collection: participantsCollection(sessionID)})
	if err != nil {
		return nil, storeError("listing participants", err)
	}
	return decodeParticipants(docs)
}

// Watch streams the presence-ordered participant list, recomputed from every
// snapshot.
func (s *ParticipantService) Watch(ctx context.Context, sessionID string) (*store.Subscription[[]models.Participant], error) {
	if !models.ValidSessionID(sessionID) {
		return nil, ErrSessionNotFound
	}
	sub, err := s.store.SubscribeQuery(ctx, store.Query{Collection: participantsCollection(sessionID)})
	if err != nil {
		return nil, storeError("watching participants", err)
	}
	return store.Map(sub, func(snap store.QuerySnapshot) ([]models.Participant, error) {
		return decodeParticipants(snap.Documents)
	}), nil
}

func (s *ParticipantService) readSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if !models.ValidSessionID(sessionID) {
		return nil, ErrSessionNotFound
	}
	doc, err := s.store.ReadDocument(ctx, sessionPath(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, storeError("reading session", err)
	}
	return decodeSession(doc)
}

func decodeParticipant(doc store.Document) (*models.Participant, error) {
	p := &models.Participant{}
	if err := doc.Decode(p); err != nil {
		return nil, err
	}
	if p.UserID == "" {
		p.UserID = doc.ID()
	}
	if p.CheckedIndices == nil {
		p.CheckedIndices = []int{}
	}
	return p, nil
}

func decodeParticipants(docs []store.Document) ([]models.Participant, error) {
	participants := make([]models.Participant, 0, len(docs))
	for _, doc := range docs {
		p, err := decodeParticipant(doc)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return OrderByRecency(participants), nil
}
