package services

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/HammerMeetNail/livebingo/internal/models"
)

func seededRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed*0x9E3779B97F4A7C15+1))
}

func makeItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item %02d", i)
	}
	return items
}

func checkLayout(t *testing.T, items []string, layout models.Layout) {
	t.Helper()
	if len(layout) != models.Cells {
		t.Fatalf("expected %d slots, got %d", models.Cells, len(layout))
	}
	if got := layout.ItemCount(); got != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), got)
	}

	seen := map[string]int{}
	for _, item := range layout.Items() {
		seen[item]++
	}
	for _, item := range items {
		if seen[item] != 1 {
			t.Fatalf("item %q appears %d times", item, seen[item])
		}
	}

	minRow, maxRow := models.Cols, 0
	for r := 0; r < models.Rows; r++ {
		row := layout.Row(r)
		if len(row) != models.Cols {
			t.Fatalf("row %d has %d slots", r, len(row))
		}
		n := row.ItemCount()
		minRow = min(minRow, n)
		maxRow = max(maxRow, n)
	}
	if maxRow-minRow > 1 {
		t.Fatalf("row item counts differ by %d", maxRow-minRow)
	}
}

func TestGenerateLayout_Properties(t *testing.T) {
	for n := models.MinItems; n <= models.MaxItems; n++ {
		for seed := uint64(0); seed < 50; seed++ {
			items := makeItems(n)
			checkLayout(t, items, GenerateLayout(items, seededRand(seed)))
		}
	}
}

func TestGenerateLayout_TenItems(t *testing.T) {
	items := makeItems(10)
	layout := GenerateLayout(items, seededRand(7))
	checkLayout(t, items, layout)

	gaps := 0
	for i := range layout {
		if layout.IsGap(i) {
			gaps++
		}
	}
	if gaps != 14 {
		t.Fatalf("expected 14 gaps, got %d", gaps)
	}
	for r := 0; r < models.Rows; r++ {
		if n := layout.Row(r).ItemCount(); n < 2 || n > 3 {
			t.Fatalf("row %d has %d items, expected 2 or 3", r, n)
		}
	}
}

func TestGenerateLayout_TwentyItems(t *testing.T) {
	items := makeItems(20)
	layout := GenerateLayout(items, seededRand(11))
	checkLayout(t, items, layout)

	for r := 0; r < models.Rows; r++ {
		row := layout.Row(r)
		if gaps := models.Cols - row.ItemCount(); gaps != 1 {
			t.Fatalf("row %d has %d gaps, expected 1", r, gaps)
		}
	}
}

func TestGenerateLayout_LeavesInputAlone(t *testing.T) {
	items := makeItems(12)
	before := strings.Join(items, "|")
	GenerateLayout(items, seededRand(3))
	if strings.Join(items, "|") != before {
		t.Fatal("input slice was reordered")
	}
}

func TestGenerateLayout_DeterministicForSeed(t *testing.T) {
	items := makeItems(15)
	a := GenerateLayout(items, seededRand(42))
	b := GenerateLayout(items, seededRand(42))
	for i := range a {
		if (a[i] == nil) != (b[i] == nil) || (a[i] != nil && *a[i] != *b[i]) {
			t.Fatalf("slot %d differs between runs with the same seed", i)
		}
	}
}

func TestGenerateLayout_GapPositionsVary(t *testing.T) {
	items := makeItems(10)
	patterns := map[string]bool{}
	for seed := uint64(0); seed < 20; seed++ {
		layout := GenerateLayout(items, seededRand(seed))
		var b strings.Builder
		for i := range layout {
			if layout.IsGap(i) {
				b.WriteByte('.')
			} else {
				b.WriteByte('x')
			}
		}
		patterns[b.String()] = true
	}
	if len(patterns) < 2 {
		t.Fatal("expected gap positions to vary across seeds")
	}
}

func TestGenerateDisplayName(t *testing.T) {
	rng := seededRand(5)
	for i := 0; i < 200; i++ {
		name := GenerateDisplayName(rng)
		parts := strings.Split(name, "-")
		if len(parts) != 4 {
			t.Fatalf("unexpected name shape %q", name)
		}
		var n int
		if _, err := fmt.Sscanf(parts[3], "%d", &n); err != nil || n < 1 || n > 99 {
			t.Fatalf("suffix out of range in %q", name)
		}
	}
}
