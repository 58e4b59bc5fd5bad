package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock instant within one day, parsed from the
// "HH:MM" form used in the environment definition file.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q: bad minute", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// UnmarshalYAML accepts the "HH:MM" string form.
func (t *TimeOfDay) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalYAML() (any, error) { return t.String(), nil }

// DayWindow is the daily period treated as "day"; everything outside
// is "night". A window may wrap midnight.
type DayWindow struct {
	Start TimeOfDay `yaml:"start"`
	End   TimeOfDay `yaml:"end"`
}

// Contains reports whether the wall-clock time of now falls inside
// the window.
func (w DayWindow) Contains(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	start, end := w.Start.minutes(), w.End.minutes()
	if start <= end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// Target is one quantity's regulated setpoint: a day value, a night
// value, and the hysteresis band for on/off actuators.
type Target struct {
	Day        float64 `yaml:"day"`
	Night      float64 `yaml:"night"`
	Hysteresis float64 `yaml:"hysteresis"`
}

// Setpoint resolves the active setpoint for the given instant.
func (t Target) Setpoint(now time.Time, day DayWindow) float64 {
	if day.Contains(now) {
		return t.Day
	}
	return t.Night
}
