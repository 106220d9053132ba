package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxItemLength = 80

var ErrValidation = errors.New("validation failed")

// ValidationError describes input rejected before any state is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ParseItems splits newline-separated text into board items. Lines are
// trimmed and blank lines dropped.
func ParseItems(raw string) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	items := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))

	for _, line := range lines {
		item := strings.TrimSpace(line)
		if item == "" {
			continue
		}
		if utf8.RuneCountInString(item) > MaxItemLength {
			return nil, &ValidationError{
				Field:   "items",
				Message: fmt.Sprintf("item %q is longer than %d characters", truncate(item, 20), MaxItemLength),
			}
		}
		key := strings.ToLower(item)
		if seen[key] {
			return nil, &ValidationError{
				Field:   "items",
				Message: fmt.Sprintf("item %q appears more than once", item),
			}
		}
		seen[key] = true
		items = append(items, item)
	}

	if len(items) < MinItems || len(items) > MaxItems {
		return nil, &ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("enter between %d and %d items, got %d", MinItems, MaxItems, len(items)),
		}
	}
	return items, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
