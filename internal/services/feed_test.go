package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

func TestFeedService_RecentNewestFirstAndBounded(t *testing.T) {
	st := newFakeStore()
	for i := 0; i < 8; i++ {
		createSession(t, st, fmt.Sprintf("sess%02d", i))
	}
	svc := NewFeedService(st)

	summaries, err := svc.Recent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != models.RecentSessionsLimit {
		t.Fatalf("expected %d summaries, got %d", models.RecentSessionsLimit, len(summaries))
	}
	if summaries[0].ID != "sess07" || summaries[5].ID != "sess02" {
		t.Fatalf("unexpected order: %s ... %s", summaries[0].ID, summaries[5].ID)
	}
	for i := 1; i < len(summaries); i++ {
		if summaries[i].CreatedAt.After(summaries[i-1].CreatedAt) {
			t.Fatalf("summaries out of order at %d", i)
		}
	}
	s := summaries[0]
	if s.ItemCount != 10 || s.Preview == "" || s.Preview[len(s.Preview)-3:] != "..." {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestFeedService_WatchRecent(t *testing.T) {
	st := newFakeStore()
	svc := NewFeedService(st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := svc.WatchRecent(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer sub.Close()

	if got := next(t, sub); len(got) != 0 {
		t.Fatalf("expected empty feed, got %v", got)
	}

	createSession(t, st, "abc123")
	got := next(t, sub)
	if len(got) != 1 || got[0].ID != "abc123" || got[0].ParticipantCount != 0 {
		t.Fatalf("unexpected feed %+v", got)
	}

	if _, err := NewParticipantService(st, nil, "").EnsureJoined(ctx, "abc123", "u1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case feed := <-sub.C():
			if len(feed) == 1 && feed[0].ParticipantCount == 1 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for participant count in feed")
		}
	}
}

func TestFeedService_StoreError(t *testing.T) {
	st := newFakeStore()
	st.subscribeErr = errors.New("down")
	if _, err := NewFeedService(st).WatchRecent(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
