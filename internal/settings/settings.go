// Package settings is the typed view over the flat key-value store.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/glizzus/chime-off/internal/repository"
	"github.com/glizzus/chime-off/internal/schedule"
)

const (
	KeyActive        = "isActive"
	KeyMode          = "scheduleMode"
	KeyPeriodMinutes = "periodMinutes"
	KeyCustomMinutes = "customMinutes"
	KeyTimeOfDay     = "timeOfDay"
	KeyRepeatDaily   = "repeatDaily"
	KeySelectedSound = "selectedSoundId"
	KeyVolume        = "volumePercent"
	KeyCustomSounds  = "customSounds"
)

const (
	DefaultSound  = "chime1"
	DefaultVolume = 50
)

var keys = []string{
	KeyActive,
	KeyMode,
	KeyPeriodMinutes,
	KeyCustomMinutes,
	KeyTimeOfDay,
	KeyRepeatDaily,
	KeySelectedSound,
	KeyVolume,
}

type Settings struct {
	Active        bool
	Mode          schedule.Mode
	PeriodMinutes int
	CustomMinutes int
	TimeOfDay     string
	RepeatDaily   bool
	SelectedSound string
	Volume        int

	// Invalid lists the keys whose stored values were replaced by defaults.
	Invalid []string
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	return Settings{
		Mode:          schedule.ModePeriodic,
		PeriodMinutes: schedule.DefaultMinutes,
		CustomMinutes: schedule.DefaultMinutes,
		SelectedSound: DefaultSound,
		Volume:        DefaultVolume,
	}
}

// Load reads every setting, substituting defaults for missing values and
// recording invalid ones.
func Load(ctx context.Context, kv repository.KV) (Settings, error) {
	raw, err := kv.Get(ctx, keys...)
	if err != nil {
		return Settings{}, err
	}
	return parse(raw), nil
}

func parse(raw map[string]string) Settings {
	s := Defaults()

	if v, ok := raw[KeyActive]; ok {
		s.Active = parseBool(v)
	}
	if v, ok := raw[KeyMode]; ok {
		s.Mode = schedule.ParseMode(v)
		if string(s.Mode) != strings.ToLower(strings.TrimSpace(v)) {
			s.Invalid = append(s.Invalid, KeyMode)
		}
	}
	if v, ok := raw[KeyPeriodMinutes]; ok {
		var valid bool
		if s.PeriodMinutes, valid = schedule.ParseMinutes(v); !valid {
			s.Invalid = append(s.Invalid, KeyPeriodMinutes)
		}
	}
	if v, ok := raw[KeyCustomMinutes]; ok {
		var valid bool
		if s.CustomMinutes, valid = schedule.ParseMinutes(v); !valid {
			s.Invalid = append(s.Invalid, KeyCustomMinutes)
		}
	}
	if v, ok := raw[KeyTimeOfDay]; ok {
		s.TimeOfDay = strings.TrimSpace(v)
	}
	if v, ok := raw[KeyRepeatDaily]; ok {
		s.RepeatDaily = parseBool(v)
	}
	if v, ok := raw[KeySelectedSound]; ok && v != "" {
		s.SelectedSound = v
	}
	if v, ok := raw[KeyVolume]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			s.Invalid = append(s.Invalid, KeyVolume)
		} else {
			s.Volume = ClampVolume(n)
		}
	}
	return s
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// ClampVolume limits a volume to 0..100.
func ClampVolume(v int) int {
	return min(max(v, 0), 100)
}

// Schedule builds the scheduler configuration. A specific-time mode with no
// usable time of day falls back to the periodic interval.
func (s Settings) Schedule() (schedule.Config, []string) {
	cfg := schedule.Config{
		Mode:          s.Mode,
		PeriodMinutes: s.PeriodMinutes,
		CustomMinutes: s.CustomMinutes,
		RepeatDaily:   s.RepeatDaily,
	}
	var fixed []string
	if s.Mode == schedule.ModeSpecific {
		tod, err := schedule.ParseTimeOfDay(s.TimeOfDay)
		if err != nil {
			cfg.Mode = schedule.ModePeriodic
			fixed = append(fixed, KeyTimeOfDay)
		} else {
			cfg.TimeOfDay = tod
		}
	}
	cfg, normalized := cfg.Normalize()
	return cfg, append(fixed, normalized...)
}

// Patch holds the settings to change. Nil fields are left alone.
type Patch struct {
	Active        *bool
	Mode          *schedule.Mode
	PeriodMinutes *int
	CustomMinutes *int
	TimeOfDay     *string
	RepeatDaily   *bool
	SelectedSound *string
	Volume        *int
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return len(p.values()) == 0
}

// TouchesSchedule reports whether applying p can change the armed schedule.
func (p Patch) TouchesSchedule() bool {
	return p.Active != nil || p.Mode != nil || p.PeriodMinutes != nil ||
		p.CustomMinutes != nil || p.TimeOfDay != nil || p.RepeatDaily != nil
}

func (p Patch) values() map[string]string {
	values := make(map[string]string)
	if p.Active != nil {
		values[KeyActive] = strconv.FormatBool(*p.Active)
	}
	if p.Mode != nil {
		values[KeyMode] = string(*p.Mode)
	}
	if p.PeriodMinutes != nil {
		values[KeyPeriodMinutes] = strconv.Itoa(*p.PeriodMinutes)
	}
	if p.CustomMinutes != nil {
		values[KeyCustomMinutes] = strconv.Itoa(*p.CustomMinutes)
	}
	if p.TimeOfDay != nil {
		values[KeyTimeOfDay] = *p.TimeOfDay
	}
	if p.RepeatDaily != nil {
		values[KeyRepeatDaily] = strconv.FormatBool(*p.RepeatDaily)
	}
	if p.SelectedSound != nil {
		values[KeySelectedSound] = *p.SelectedSound
	}
	if p.Volume != nil {
		values[KeyVolume] = strconv.Itoa(ClampVolume(*p.Volume))
	}
	return values
}

// Validate rejects patches that would store a value the user clearly did
// not mean. Intervals are not checked here; the scheduler normalizes them.
func (p Patch) Validate() error {
	if p.TimeOfDay != nil && *p.TimeOfDay != "" {
		if _, err := schedule.ParseTimeOfDay(*p.TimeOfDay); err != nil {
			return err
		}
	}
	if p.Volume != nil && (*p.Volume < 0 || *p.Volume > 100) {
		return fmt.Errorf("volume %d is not between 0 and 100", *p.Volume)
	}
	return nil
}

// Save writes the fields present in p.
func Save(ctx context.Context, kv repository.KV, p Patch) error {
	values := p.values()
	if len(values) == 0 {
		return nil
	}
	return kv.Set(ctx, values)
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}
