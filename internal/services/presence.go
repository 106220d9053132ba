package services

import (
	"sort"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

// OrderByRecency returns participants most recently active first. Records
// without a lastActive value sort last; equal timestamps order by user id.
// The input slice is left untouched.
func OrderByRecency(participants []models.Participant) []models.Participant {
	ordered := make([]models.Participant, len(participants))
	copy(ordered, participants)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].LastActive, ordered[j].LastActive
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		}
		return ordered[i].UserID < ordered[j].UserID
	})
	return ordered
}
