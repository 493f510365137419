package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
)

// TimeOfDay is a wall-clock hour and minute, reused across days.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// On returns the instant at which t occurs on day's calendar date in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("time of day %q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("time of day %q has an invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("time of day %q has an invalid minute", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// Window is the daily interval in which a clock-out target is drawn.
// End is never before Start; windows spanning midnight are rejected.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

func NewWindow(start, end TimeOfDay, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	if end.minutes() < start.minutes() {
		return Window{}, ErrWindowSpansMidnight
	}
	return Window{Start: start, End: end, Location: loc}, nil
}

// WindowFromConfig parses the configured HH:MM bounds.
func WindowFromConfig(cfg config.WindowConfig) (Window, error) {
	start, err := ParseTimeOfDay(cfg.Start)
	if err != nil {
		return Window{}, errors.Wrap(err, errors.ErrCodeConfig, "invalid TIME_WINDOW_START")
	}
	end, err := ParseTimeOfDay(cfg.End)
	if err != nil {
		return Window{}, errors.Wrap(err, errors.ErrCodeConfig, "invalid TIME_WINDOW_END")
	}
	return NewWindow(start, end, cfg.Location)
}

// Bounds returns the window's absolute start and end on day's date.
func (w Window) Bounds(day time.Time) (time.Time, time.Time) {
	return w.Start.On(day, w.Location), w.End.On(day, w.Location)
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}
