package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func strp(s string) *string { return &s }

func TestLayout_Helpers(t *testing.T) {
	layout := make(Layout, Cells)
	layout[0] = strp("a")
	layout[7] = strp("b")
	layout[23] = strp("c")

	if layout.IsGap(0) || !layout.IsGap(1) {
		t.Fatal("unexpected gap detection")
	}
	if !layout.IsGap(-1) || !layout.IsGap(Cells) {
		t.Fatal("out of range indices should count as gaps")
	}
	if got := layout.ItemCount(); got != 3 {
		t.Fatalf("expected 3 items, got %d", got)
	}
	if got := strings.Join(layout.Items(), ","); got != "a,b,c" {
		t.Fatalf("unexpected items %q", got)
	}
	if row := layout.Row(1); len(row) != Cols || row[1] == nil || *row[1] != "b" {
		t.Fatalf("unexpected row 1: %v", row)
	}
	if layout.Row(Rows) != nil {
		t.Fatal("expected nil for row out of range")
	}
}

func TestLayout_Preview(t *testing.T) {
	tests := []struct {
		items []string
		want  string
	}{
		{[]string{"a"}, "a"},
		{[]string{"a", "b", "c"}, "a, b, c"},
		{[]string{"a", "b", "c", "d"}, "a, b, c..."},
	}

	for _, tt := range tests {
		layout := make(Layout, Cells)
		for i, item := range tt.items {
			layout[i*2] = strp(item)
		}
		if got := layout.Preview(); got != tt.want {
			t.Errorf("Preview(%v): expected %q, got %q", tt.items, tt.want, got)
		}
	}
}

func TestLayout_JSONGapsAreNull(t *testing.T) {
	layout := Layout{strp("a"), nil}
	raw, err := json.Marshal(layout)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `["a",null]` {
		t.Fatalf("unexpected encoding %s", raw)
	}
}

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc123", true},
		{"zzzzzz", true},
		{"ABC123", false},
		{"abc12", false},
		{"abc1234", false},
		{"abc-12", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidSessionID(tt.id); got != tt.want {
			t.Errorf("ValidSessionID(%q): expected %v, got %v", tt.id, tt.want, got)
		}
	}
}

func TestParticipant_ToggledIndices(t *testing.T) {
	p := &Participant{CheckedIndices: []int{5, 1}}

	on := p.ToggledIndices(3)
	if len(on) != 3 || on[0] != 1 || on[1] != 3 || on[2] != 5 {
		t.Fatalf("expected [1 3 5], got %v", on)
	}
	off := p.ToggledIndices(5)
	if len(off) != 1 || off[0] != 1 {
		t.Fatalf("expected [1], got %v", off)
	}
	if len(p.CheckedIndices) != 2 {
		t.Fatal("receiver must not change")
	}
	if !p.IsChecked(1) || p.IsChecked(3) {
		t.Fatal("unexpected IsChecked result")
	}
}

func TestParseItems(t *testing.T) {
	ten := "a\nb\nc\nd\ne\nf\ng\nh\ni\nj"

	items, err := ParseItems("  a  \n\nb\r\nc\nd\n \ne\nf\ng\nh\ni\nj\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 10 || items[0] != "a" {
		t.Fatalf("unexpected items %v", items)
	}

	if _, err := ParseItems(ten); err != nil {
		t.Fatalf("expected 10 items to pass, got %v", err)
	}

	nine := "a\nb\nc\nd\ne\nf\ng\nh\ni"
	if _, err := ParseItems(nine); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for 9 items, got %v", err)
	}

	var many []string
	for i := 0; i < MaxItems+1; i++ {
		many = append(many, strings.Repeat("x", i+1))
	}
	if _, err := ParseItems(strings.Join(many, "\n")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for 21 items, got %v", err)
	}

	if _, err := ParseItems(ten + "\nA"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	long := strings.Repeat("é", MaxItemLength+1)
	_, err = ParseItems(ten + "\n" + long)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "items" {
		t.Fatalf("expected items validation error, got %v", err)
	}

	if _, err := ParseItems(ten + "\n" + strings.Repeat("é", MaxItemLength)); err != nil {
		t.Fatalf("expected %d-rune item to pass, got %v", MaxItemLength, err)
	}
}
