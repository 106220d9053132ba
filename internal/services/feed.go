package services

import (
	"context"

	"github.com/HammerMeetNail/livebingo/internal/models"
	"github.com/HammerMeetNail/livebingo/internal/store"
)

var recentSessionsQuery = store.Query{
	Collection: sessionsCollection,
	OrderBy:    "createdAt",
	Descending: true,
	Limit:      models.RecentSessionsLimit,
}

// FeedService lists the most recently created sessions. It never writes.
type FeedService struct {
	store store.Store
}

func NewFeedService(st store.Store) *FeedService {
	return &FeedService{store: st}
}

func (s *FeedService) Recent(ctx context.Context) ([]models.SessionSummary, error) {
	docs, err := s.store.QueryDocuments(ctx, recentSessionsQuery)
	if err != nil {
		return nil, storeError("listing recent sessions", err)
	}
	return summarize(docs)
}

func (s *FeedService) WatchRecent(ctx context.Context) (*store.Subscription[[]models.SessionSummary], error) {
	sub, err := s.store.SubscribeQuery(ctx, recentSessionsQuery)
	if err != nil {
		return nil, storeError("watching recent sessions", err)
	}
	return store.Map(sub, func(snap store.QuerySnapshot) ([]models.SessionSummary, error) {
		return summarize(snap.Documents)
	}), nil
}

func summarize(docs []store.Document) ([]models.SessionSummary, error) {
	summaries := make([]models.SessionSummary, 0, len(docs))
	for i := range docs {
		session, err := decodeSession(&docs[i])
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, session.Summary())
	}
	return summaries, nil
}
