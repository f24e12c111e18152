package utils

import (
	"testing"
	"time"
)

func TestNightsExcludesCheckOut(t *testing.T) {
	in, _ := ParseDate("2025-12-24")
	out, _ := ParseDate("2025-12-27")

	nights := Nights(in, out)
	want := []string{"2025-12-24", "2025-12-25", "2025-12-26"}
	if len(nights) != len(want) {
		t.Fatalf("expected %d nights, got %d", len(want), len(nights))
	}
	for i, n := range nights {
		if FormatDate(n) != want[i] {
			t.Errorf("night %d: expected %s, got %s", i, want[i], FormatDate(n))
		}
	}
}

func TestNightsEmptyForInvertedRange(t *testing.T) {
	in, _ := ParseDate("2025-01-10")
	if n := Nights(in, in); len(n) != 0 {
		t.Fatalf("expected no nights, got %d", len(n))
	}
}

func TestDateOnlyDropsClock(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	got := DateOnly(time.Date(2025, 3, 1, 23, 30, 0, 0, loc))
	if FormatDate(got) != "2025-03-01" || got.Location() != time.UTC {
		t.Fatalf("unexpected %v", got)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("10/01/2025"); err == nil {
		t.Fatal("expected error")
	}
}
