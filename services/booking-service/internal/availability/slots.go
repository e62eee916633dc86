// Package availability lists the start times still open on a given day.
package availability

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// Hours is the daily opening window, as offsets from midnight, cut into fixed steps.
type Hours struct {
	Open  time.Duration
	Close time.Duration
	Step  time.Duration
}

// ParseHours builds Hours from "HH:MM" bounds.
func ParseHours(open, close string, step time.Duration) (Hours, error) {
	o, err := offset(open)
	if err != nil {
		return Hours{}, fmt.Errorf("opening time: %w", err)
	}
	c, err := offset(close)
	if err != nil {
		return Hours{}, fmt.Errorf("closing time: %w", err)
	}
	if c <= o {
		return Hours{}, fmt.Errorf("closing time %s must be after opening time %s", close, open)
	}
	if step <= 0 {
		return Hours{}, fmt.Errorf("slot length must be positive")
	}
	return Hours{Open: o, Close: c, Step: step}, nil
}

// FreeTimes returns the "HH:MM" starts on day (any instant within it; its
// location is used) that are not booked and not before now. A booking only
// takes its own start time, so off-grid bookings leave neighbouring starts open.
func (h Hours) FreeTimes(day time.Time, booked []string, now time.Time) []string {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	taken := make(map[time.Duration]bool, len(booked))
	for _, b := range booked {
		if off, err := offset(b); err == nil {
			taken[off] = true
		}
	}

	var out []string
	for _, t := range openSlots(midnight, h, taken, now) {
		out = append(out, t.Format(clockLayout))
	}
	return out
}

// openSlots walks the window in steps, keeping starts that fit a full step
// before closing, are not taken and are not in the past.
func openSlots(midnight time.Time, h Hours, taken map[time.Duration]bool, now time.Time) []time.Time {
	if h.Step <= 0 || h.Open+h.Step > h.Close {
		return nil
	}
	var slots []time.Time
	for off := h.Open; off+h.Step <= h.Close; off += h.Step {
		t := midnight.Add(off)
		if t.Before(now) || taken[off] {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

func offset(hhmm string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, hhmm)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
