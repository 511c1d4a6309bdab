package schedule

import "time"

// NextFire describes when a schedule fires next.
type NextFire struct {
	// Delay until the first fire. Always positive.
	Delay time.Duration
	// Period between fires after the first one. Zero for a one-shot schedule.
	Period time.Duration
	// At is now+Delay truncated to the minute, for display.
	At time.Time
}

// Recurring reports whether the schedule fires more than once.
func (n NextFire) Recurring() bool {
	return n.Period > 0
}

// ComputeNextFire returns the next fire for cfg as seen from now.
// Invalid fields in cfg are normalized rather than rejected.
func ComputeNextFire(cfg Config, now time.Time) NextFire {
	cfg, _ = cfg.Normalize()

	var next NextFire
	if cfg.Mode == ModeSpecific {
		next = specificTime(cfg, now)
	} else {
		next = alignedInterval(cfg.intervalMinutes(), now)
	}
	next.At = now.Add(next.Delay).Truncate(time.Minute)
	return next
}

// alignedInterval lines fires up with clock multiples of m minutes within
// the hour, so m=15 fires at :00, :15, :30 and :45. The position within the
// hour keeps its seconds so the delay is exact to the nanosecond.
func alignedInterval(m int, now time.Time) NextFire {
	period := time.Duration(m) * time.Minute
	sinceHour := time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second +
		time.Duration(now.Nanosecond())

	delay := period - sinceHour%period
	if delay <= 0 {
		delay += period
	}
	return NextFire{Delay: delay, Period: period}
}

func specificTime(cfg Config, now time.Time) NextFire {
	candidate := time.Date(
		now.Year(), now.Month(), now.Day(),
		cfg.TimeOfDay.Hour, cfg.TimeOfDay.Minute, 0, 0,
		now.Location(),
	)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	next := NextFire{Delay: candidate.Sub(now)}
	if cfg.RepeatDaily {
		next.Period = 24 * time.Hour
	}
	return next
}
