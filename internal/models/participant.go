package models

import (
	"sort"
	"time"
)

const MaxNameLength = 40

type Participant struct {
	UserID         string     `json:"userId"`
	Name           string     `json:"name"`
	CheckedIndices []int      `json:"checkedIndices"`
	LastActive     *time.Time `json:"lastActive,omitempty"`
}

func (p *Participant) IsChecked(index int) bool {
	for _, i := range p.CheckedIndices {
		if i == index {
			return true
		}
	}
	return false
}

// ToggledIndices returns the marked set with index flipped, sorted and
// without duplicates. The receiver is not modified.
func (p *Participant) ToggledIndices(index int) []int {
	seen := make(map[int]bool, len(p.CheckedIndices)+1)
	for _, i := range p.CheckedIndices {
		seen[i] = true
	}
	seen[index] = !seen[index]

	out := make([]int, 0, len(seen))
	for i, on := range seen {
		if on {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}
