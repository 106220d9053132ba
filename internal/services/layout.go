package services

import (
	"math/rand/v2"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

// Rand is the randomness the generators draw from.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand uses the goroutine-safe math/rand/v2 top-level source.
var DefaultRand Rand = globalRand{}

// GenerateLayout places items on the board. Callers validate the item count
// with models.ParseItems first; the input slice is not modified.
func GenerateLayout(items []string, rng Rand) models.Layout {
	shuffled := make([]*string, len(items))
	for i := range items {
		item := items[i]
		shuffled[i] = &item
	}
	shuffle(shuffled, rng)

	rows := make([][]*string, models.Rows)
	for k, item := range shuffled {
		rows[k%models.Rows] = append(rows[k%models.Rows], item)
	}

	layout := make(models.Layout, 0, models.Cells)
	for _, row := range rows {
		for len(row) < models.Cols {
			row = append(row, nil)
		}
		shuffle(row, rng)
		layout = append(layout, row...)
	}
	return layout
}

// shuffle is a Fisher-Yates shuffle from the last index down.
func shuffle(s []*string, rng Rand) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
