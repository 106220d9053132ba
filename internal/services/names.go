package services

import (
	"fmt"
)

var (
	nameColors = []string{
		"Red", "Orange", "Yellow", "Green", "Blue", "Purple", "Pink", "Teal",
		"Silver", "Golden", "Crimson", "Indigo",
	}
	nameAdjectives = []string{
		"Funky", "Happy", "Sneaky", "Brave", "Lucky", "Sleepy", "Clever", "Jolly",
		"Mighty", "Quiet", "Speedy", "Witty",
	}
	nameNouns = []string{
		"Badger", "Otter", "Falcon", "Panda", "Tiger", "Walrus", "Koala", "Lynx",
		"Gecko", "Heron", "Moose", "Penguin",
	}
)

// GenerateDisplayName builds names like "Red-Funky-Badger-7". Names are not
// unique across participants.
func GenerateDisplayName(rng Rand) string {
	return fmt.Sprintf("%s-%s-%s-%d",
		nameColors[rng.IntN(len(nameColors))],
		nameAdjectives[rng.IntN(len(nameAdjectives))],
		nameNouns[rng.IntN(len(nameNouns))],
		rng.IntN(99)+1,
	)
}
