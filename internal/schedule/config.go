package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMinutes is used whenever an interval is missing or invalid.
const DefaultMinutes = 15

// Mode selects how the next fire time is computed.
type Mode string

const (
	ModePeriodic Mode = "periodic"
	ModeCustom   Mode = "custom"
	ModeSpecific Mode = "specific"
)

// ParseMode maps a stored mode string onto a Mode.
// Anything unrecognised is treated as periodic.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCustom:
		return ModeCustom
	case ModeSpecific:
		return ModeSpecific
	default:
		return ModePeriodic
	}
}

// TimeOfDay is a wall-clock time in 24-hour local time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return TimeOfDay{}, fmt.Errorf("time of day %q is not in HH:MM form", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	t := TimeOfDay{Hour: hour, Minute: minute}
	if !t.valid() {
		return TimeOfDay{}, fmt.Errorf("time of day %q is out of range", s)
	}
	return t, nil
}

// ParseMinutes parses a user supplied interval.
// Non-numeric, zero and negative values yield DefaultMinutes and false.
func ParseMinutes(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return DefaultMinutes, false
	}
	return n, true
}

// Config describes one schedule. Only the field selected by Mode is used.
type Config struct {
	Mode          Mode
	PeriodMinutes int
	CustomMinutes int
	TimeOfDay     TimeOfDay
	RepeatDaily   bool
}

// Normalize returns a copy of c whose active fields are usable, along with
// the names of the fields that had to be replaced.
func (c Config) Normalize() (Config, []string) {
	var fixed []string
	switch c.Mode {
	case ModePeriodic, ModeCustom, ModeSpecific:
	default:
		c.Mode = ModePeriodic
		fixed = append(fixed, "mode")
	}

	switch c.Mode {
	case ModePeriodic:
		if c.PeriodMinutes < 1 {
			c.PeriodMinutes = DefaultMinutes
			fixed = append(fixed, "periodMinutes")
		}
	case ModeCustom:
		if c.CustomMinutes < 1 {
			c.CustomMinutes = DefaultMinutes
			fixed = append(fixed, "customMinutes")
		}
	case ModeSpecific:
		if !c.TimeOfDay.valid() {
			c.TimeOfDay = TimeOfDay{}
			fixed = append(fixed, "timeOfDay")
		}
	}
	return c, fixed
}

// intervalMinutes returns the active interval for the periodic modes.
func (c Config) intervalMinutes() int {
	if c.Mode == ModeCustom {
		return c.CustomMinutes
	}
	return c.PeriodMinutes
}
