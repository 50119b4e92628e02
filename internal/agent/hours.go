package agent

import (
	"fmt"

	"tkremote/internal/model"
)

// ValidWindow reports whether a day window describes a sane half-open
// interval: start strictly before end, both within a single day.
func ValidWindow(w model.DayWindow) bool {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return false
	}
	if w.StartMinute < 0 || w.StartMinute > 59 || w.EndMinute < 0 || w.EndMinute > 59 {
		return false
	}
	start := w.StartHour*60 + w.StartMinute
	end := w.EndHour*60 + w.EndMinute
	return start < end
}

// AllHours is the agent's encoding of an unrestricted day: every hour 0..23.
func AllHours() []string {
	hours := make([]string, 24)
	for h := 0; h < 24; h++ {
		hours[h] = fmt.Sprintf("%d", h)
	}
	return hours
}

// EncodeHours converts a day window into the agent's compact hour-list
// tokens. The second return value is false when the window does not
// restrict anything (disabled or invalid); the caller substitutes the full
// 24-hour enumeration so the weekly quota stays the only limiting factor.
//
// Whole-hour windows list each hour in [start, end) as a bare token. When
// minutes are involved, the boundary hours carry a minute-range suffix:
// 10:15-12:30 encodes as "10[15-59]", "11", "12[0-30]".
// The encoding is deterministic, so re-pushing identical state is
// idempotent on the remote side.
func EncodeHours(w model.DayWindow) ([]string, bool) {
	if !w.Enabled || !ValidWindow(w) {
		return nil, false
	}

	// Whole hours only
	if w.StartMinute == 0 && w.EndMinute == 0 {
		var tokens []string
		for h := w.StartHour; h < w.EndHour; h++ {
			tokens = append(tokens, fmt.Sprintf("%d", h))
		}
		return tokens, true
	}

	// Sub-hour precision within a single hour
	if w.StartHour == w.EndHour {
		return []string{fmt.Sprintf("%d[%d-%d]", w.StartHour, w.StartMinute, w.EndMinute)}, true
	}

	var tokens []string
	if w.StartMinute == 0 {
		tokens = append(tokens, fmt.Sprintf("%d", w.StartHour))
	} else {
		tokens = append(tokens, fmt.Sprintf("%d[%d-59]", w.StartHour, w.StartMinute))
	}
	for h := w.StartHour + 1; h < w.EndHour; h++ {
		tokens = append(tokens, fmt.Sprintf("%d", h))
	}
	if w.EndMinute != 0 {
		tokens = append(tokens, fmt.Sprintf("%d[0-%d]", w.EndHour, w.EndMinute))
	}
	return tokens, true
}
