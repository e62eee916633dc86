package availability

import (
	"testing"
	"time"
)

func TestFreeTimes_Basic(t *testing.T) {
	h, err := ParseHours("09:00", "10:00", 15*time.Minute)
	if err != nil {
		t.Fatalf("ParseHours: %v", err)
	}
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)

	got := h.FreeTimes(day, []string{"09:15", "09:30"}, day)
	want := []string{"09:00", "09:45"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFreeTimes_SkipsPast(t *testing.T) {
	h, err := ParseHours("09:00", "10:00", 15*time.Minute)
	if err != nil {
		t.Fatalf("ParseHours: %v", err)
	}
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	now := day.Add(9*time.Hour + 31*time.Minute)

	got := h.FreeTimes(day, nil, now)
	if len(got) != 1 || got[0] != "09:45" {
		t.Fatalf("expected [09:45], got %v", got)
	}
}

func TestFreeTimes_IgnoresMalformedBookings(t *testing.T) {
	h, _ := ParseHours("09:00", "09:30", 30*time.Minute)
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	got := h.FreeTimes(day, []string{"bogus"}, day)
	if len(got) != 1 || got[0] != "09:00" {
		t.Fatalf("expected [09:00], got %v", got)
	}
}

func TestParseHours_Rejects(t *testing.T) {
	if _, err := ParseHours("18:00", "09:00", time.Hour); err == nil {
		t.Fatal("expected error for inverted window")
	}
	if _, err := ParseHours("9am", "18:00", time.Hour); err == nil {
		t.Fatal("expected error for malformed opening time")
	}
	if _, err := ParseHours("09:00", "18:00", 0); err == nil {
		t.Fatal("expected error for zero step")
	}
}

func TestFreeTimes_OffGridBookingTakesOnlyItsStart(t *testing.T) {
	h, err := ParseHours("14:00", "15:00", 30*time.Minute)
	if err != nil {
		t.Fatalf("ParseHours: %v", err)
	}
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)

	got := h.FreeTimes(day, []string{"14:10"}, day)
	if len(got) != 2 || got[0] != "14:00" || got[1] != "14:30" {
		t.Fatalf("expected [14:00 14:30], got %v", got)
	}
	got = h.FreeTimes(day, []string{"14:30"}, day)
	if len(got) != 1 || got[0] != "14:00" {
		t.Fatalf("expected [14:00], got %v", got)
	}
}
