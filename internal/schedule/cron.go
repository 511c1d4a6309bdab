package schedule

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
)

// CronExpr returns the cron expression equivalent to a daily specific-time
// schedule. Only ModeSpecific schedules have one.
func CronExpr(cfg Config) (string, bool) {
	cfg, _ = cfg.Normalize()
	if cfg.Mode != ModeSpecific {
		return "", false
	}
	return fmt.Sprintf("%d %d * * *", cfg.TimeOfDay.Minute, cfg.TimeOfDay.Hour), true
}

// Upcoming returns the next n fire times of cfg as seen from now.
// It returns an error if n is less than 1.
func Upcoming(cfg Config, now time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	cfg, _ = cfg.Normalize()
	first := ComputeNextFire(cfg, now)
	firstAt := now.Add(first.Delay)

	if !first.Recurring() {
		return []time.Time{firstAt}, nil
	}

	if expr, ok := CronExpr(cfg); ok {
		// Evaluate daily series on the calendar so the wall-clock time
		// survives DST transitions.
		times, err := NextRunTimesAfter(expr, now, n)
		if err != nil {
			return nil, err
		}
		return times, nil
	}

	times := make([]time.Time, 0, n)
	for i := range n {
		times = append(times, firstAt.Add(time.Duration(i)*first.Period))
	}
	return times, nil
}

// NextRunTimesAfter returns the next N run times of a cron expression after
// a specific time, in the location of after.
// It returns an error if the cron expression is invalid or if n is less than 1.
func NextRunTimesAfter(cron string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be greater than 0")
	}
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return nil, err
	}
	return expr.NextN(after, uint(n)), nil
}
