// Package presenters turns the chime state into something a user can see.
package presenters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glizzus/chime-off/internal/schedule"
)

// Status is what the user sees of the chime.
type Status struct {
	Enabled bool
	// NextFireAt is zero when the chime is disabled.
	NextFireAt time.Time
	// Notice is a non-fatal message such as a missing sound.
	Notice string

	Schedule schedule.Config
	SoundID  string
	Volume   int
}

type Presenter interface {
	Present(ctx context.Context, status Status) error
}

// NoNextFire is shown in place of a time when nothing is armed.
const NoNextFire = "--:--"

// FormatNextFire renders the next fire time as HH:MM in t's location.
func FormatNextFire(t time.Time) string {
	if t.IsZero() {
		return NoNextFire
	}
	return t.Format("15:04")
}

type BadgeStyle struct {
	Text  string
	Color string
}

var (
	badgeOn  = BadgeStyle{Text: "ON", Color: "#4CAF50"}
	badgeOff = BadgeStyle{Text: "OFF", Color: "#9e9e9e"}
)

func Badge(enabled bool) BadgeStyle {
	if enabled {
		return badgeOn
	}
	return badgeOff
}

// DescribeSchedule renders cfg the way the status line shows it.
func DescribeSchedule(cfg schedule.Config) string {
	cfg, _ = cfg.Normalize()
	switch cfg.Mode {
	case schedule.ModeSpecific:
		if cfg.RepeatDaily {
			return fmt.Sprintf("daily at %s", cfg.TimeOfDay)
		}
		return fmt.Sprintf("once at %s", cfg.TimeOfDay)
	case schedule.ModeCustom:
		return fmt.Sprintf("every %s (custom)", minutes(cfg.CustomMinutes))
	default:
		return fmt.Sprintf("every %s", minutes(cfg.PeriodMinutes))
	}
}

func minutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

// Summary is the one-line form of a status.
func Summary(status Status) string {
	badge := Badge(status.Enabled)
	if !status.Enabled {
		return fmt.Sprintf("[%s] next: %s", badge.Text, NoNextFire)
	}
	return fmt.Sprintf(
		"[%s] next: %s, %s, sound %s at %d%%",
		badge.Text,
		FormatNextFire(status.NextFireAt),
		DescribeSchedule(status.Schedule),
		status.SoundID,
		status.Volume,
	)
}

type LogPresenter struct{}

func (p *LogPresenter) Present(ctx context.Context, status Status) error {
	attrs := []any{
		slog.Bool("enabled", status.Enabled),
		slog.String("next", FormatNextFire(status.NextFireAt)),
	}
	if status.Enabled {
		attrs = append(attrs,
			slog.String("schedule", DescribeSchedule(status.Schedule)),
			slog.String("soundID", status.SoundID),
			slog.Int("volume", status.Volume),
		)
	}
	if status.Notice != "" {
		attrs = append(attrs, slog.String("notice", status.Notice))
		slog.WarnContext(ctx, "Chime status", attrs...)
		return nil
	}
	slog.InfoContext(ctx, "Chime status", attrs...)
	return nil
}

var _ Presenter = (*LogPresenter)(nil)

// Multi presents to every presenter, joining their errors.
type Multi []Presenter

func (m Multi) Present(ctx context.Context, status Status) error {
	var errs []error
	for _, p := range m {
		if err := p.Present(ctx, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Presenter = (Multi)(nil)
