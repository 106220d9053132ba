package models

import (
	"strings"
	"time"
)

const (
	Rows  = 4
	Cols  = 6
	Cells = Rows * Cols

	MinItems = 10
	MaxItems = 20

	RecentSessionsLimit = 6

	SessionIDLength = 6
)

// Layout is the flat row-major board. A nil slot is a gap.
type Layout []*string

func (l Layout) IsGap(index int) bool {
	if index < 0 || index >= len(l) {
		return true
	}
	return l[index] == nil
}

func (l Layout) ItemCount() int {
	n := 0
	for _, slot := range l {
		if slot != nil {
			n++
		}
	}
	return n
}

// Items returns the non-gap values in board order.
func (l Layout) Items() []string {
	items := make([]string, 0, len(l))
	for _, slot := range l {
		if slot != nil {
			items = append(items, *slot)
		}
	}
	return items
}

func (l Layout) Row(r int) Layout {
	if r < 0 || r >= Rows || len(l) < (r+1)*Cols {
		return nil
	}
	return l[r*Cols : (r+1)*Cols]
}

type Session struct {
	ID               string    `json:"id"`
	Layout           Layout    `json:"layout"`
	CreatedAt        time.Time `json:"createdAt"`
	CreatorID        string    `json:"creatorId"`
	ParticipantCount int       `json:"participantCount"`
}

type SessionStatus string

const (
	SessionReady    SessionStatus = "ready"
	SessionNotFound SessionStatus = "not_found"
)

// SessionState is one snapshot of a watched session. Session is nil unless
// Status is SessionReady.
type SessionState struct {
	Status  SessionStatus `json:"status"`
	Session *Session      `json:"session,omitempty"`
}

// SessionSummary is a feed entry.
type SessionSummary struct {
	ID               string    `json:"id"`
	Preview          string    `json:"preview"`
	ParticipantCount int       `json:"participantCount"`
	ItemCount        int       `json:"itemCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

const (
	previewItems     = 3
	previewSeparator = ", "
	previewMore      = "..."
)

// Preview joins the first three items and marks truncation.
func (l Layout) Preview() string {
	items := l.Items()
	if len(items) <= previewItems {
		return strings.Join(items, previewSeparator)
	}
	return strings.Join(items[:previewItems], previewSeparator) + previewMore
}

func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:               s.ID,
		Preview:          s.Layout.Preview(),
		ParticipantCount: s.ParticipantCount,
		ItemCount:        s.Layout.ItemCount(),
		CreatedAt:        s.CreatedAt,
	}
}

// ValidSessionID reports whether id has the shape of a generated session id.
func ValidSessionID(id string) bool {
	if len(id) != SessionIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
