package attendance

import (
	"math/rand/v2"
	"time"
)

// ScheduleState is an agent's randomized clock-out target. The target is
// nil until the first assignment and afterwards always lies inside the
// window of the day it was assigned for.
type ScheduleState struct {
	target *time.Time
	rng    *rand.Rand
}

// NewScheduleState uses rng for draws, or the global source when rng is nil.
// A non-nil rng must not be shared between goroutines.
func NewScheduleState(rng *rand.Rand) *ScheduleState {
	return &ScheduleState{rng: rng}
}

// Assign draws a target uniformly over today's window, where today is now's
// calendar date in the window's location.
func (s *ScheduleState) Assign(w Window, now time.Time) time.Time {
	now = now.In(w.Location)
	start, end := w.Bounds(now)

	drawn := start.Add(time.Duration(s.float64() * float64(end.Sub(start))))

	// Pin the draw back onto now's date.
	target := time.Date(now.Year(), now.Month(), now.Day(),
		drawn.Hour(), drawn.Minute(), drawn.Second(), drawn.Nanosecond(), w.Location)
	s.target = &target
	return target
}

// AssignNext draws a target in the next window that opens after after: the
// window of after's own date when it has not started yet, otherwise the
// following day's. The result is strictly later than after.
func (s *ScheduleState) AssignNext(w Window, after time.Time) time.Time {
	after = after.In(w.Location)
	if start, _ := w.Bounds(after); start.After(after) {
		return s.Assign(w, after)
	}
	return s.Assign(w, after.AddDate(0, 0, 1))
}

// IsDue reports whether a target exists and has passed.
func (s *ScheduleState) IsDue(now time.Time) bool {
	return s.target != nil && s.target.Before(now)
}

// Target returns a copy of the current target, nil before first assignment.
func (s *ScheduleState) Target() *time.Time {
	if s.target == nil {
		return nil
	}
	t := *s.target
	return &t
}

func (s *ScheduleState) float64() float64 {
	if s.rng != nil {
		return s.rng.Float64()
	}
	return rand.Float64()
}
