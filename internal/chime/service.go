// Package chime runs the enable/disable state machine of the chime: it reads
// the settings, arms the timer, plays the selected sound when the timer fires
// and keeps the presenter informed.
package chime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glizzus/chime-off/internal/events"
	"github.com/glizzus/chime-off/internal/generator"
	"github.com/glizzus/chime-off/internal/player"
	"github.com/glizzus/chime-off/internal/presenters"
	"github.com/glizzus/chime-off/internal/repository"
	"github.com/glizzus/chime-off/internal/schedule"
	"github.com/glizzus/chime-off/internal/settings"
	"github.com/glizzus/chime-off/internal/sounds"
	"github.com/glizzus/chime-off/internal/timer"
)

// Timer is the part of timer.Host the service drives.
type Timer interface {
	Arm(ctx context.Context, delay, period time.Duration)
	Disarm()
	Next() (time.Time, bool)
	Close()
}

var _ Timer = (*timer.Host)(nil)

const (
	noticeStorage  = "Settings store is unavailable, the chime is off"
	noticePlayback = "The chime sound could not be played"
)

type Options struct {
	KV         repository.KV
	Dispatcher player.Dispatcher
	Presenter  presenters.Presenter
	// Publisher receives a record of every fire. Optional.
	Publisher events.Publisher

	Now      func() time.Time
	Location *time.Location
	// NewTimer builds the timer that calls back into the service.
	// Defaults to timer.New with TimerOptions.
	NewTimer     func(timer.Callback) Timer
	TimerOptions []timer.Option
	IDs          generator.Generator[string]
}

type Service struct {
	kv         repository.KV
	dispatcher player.Dispatcher
	presenter  presenters.Presenter
	publisher  events.Publisher
	now        func() time.Time
	location   *time.Location
	ids        generator.Generator[string]
	timer      Timer

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	armed    bool
	armedCfg schedule.Config
	next     schedule.NextFire
	soundID  string
	volume   int
	lastNote string
}

func NewService(opts Options) (*Service, error) {
	if opts.KV == nil {
		return nil, errors.New("a settings store is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("a dispatcher is required")
	}
	if opts.Presenter == nil {
		opts.Presenter = &presenters.LogPresenter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.IDs == nil {
		opts.IDs = &generator.UUIDV4Generator{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		kv:         opts.KV,
		dispatcher: opts.Dispatcher,
		presenter:  opts.Presenter,
		publisher:  opts.Publisher,
		now:        opts.Now,
		location:   opts.Location,
		ids:        opts.IDs,
		ctx:        ctx,
		cancel:     cancel,
	}
	if opts.NewTimer != nil {
		s.timer = opts.NewTimer(s.Fire)
	} else {
		s.timer = timer.New(s.Fire, append([]timer.Option{timer.WithClock(opts.Now)}, opts.TimerOptions...)...)
	}
	return s, nil
}

// Close disarms the timer and waits for a running fire to finish.
func (s *Service) Close() {
	s.cancel()
	s.timer.Close()
}

func (s *Service) clock() time.Time {
	return s.now().In(s.location)
}

// Restore re-enters the persisted state on startup.
func (s *Service) Restore(ctx context.Context) (presenters.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := settings.Load(ctx, s.kv)
	if err != nil {
		return s.degradeLocked(ctx, "restore", err)
	}
	slog.Info("Restoring chime", "active", st.Active, "mode", st.Mode)
	return s.applyLocked(ctx, st, ""), nil
}

// Toggle enables or disables the chime.
func (s *Service) Toggle(ctx context.Context, on bool) (presenters.Status, error) {
	return s.Update(ctx, settings.Patch{Active: &on})
}

// UpdateSchedule changes the schedule settings and re-arms an enabled chime.
func (s *Service) UpdateSchedule(ctx context.Context, patch settings.Patch) (presenters.Status, error) {
	return s.Update(ctx, patch)
}

// Update saves patch. The timer is rebuilt only when the patch touches the
// schedule; sound and volume changes apply from the next fire. An empty patch
// reports the current status.
func (s *Service) Update(ctx context.Context, patch settings.Patch) (presenters.Status, error) {
	if err := patch.Validate(); err != nil {
		return presenters.Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.Empty() {
		return s.statusLocked(s.lastNote), nil
	}
	if err := settings.Save(ctx, s.kv, patch); err != nil {
		return s.degradeLocked(ctx, "update", err)
	}
	st, err := settings.Load(ctx, s.kv)
	if err != nil {
		return s.degradeLocked(ctx, "update", err)
	}

	if patch.TouchesSchedule() || !s.armed {
		return s.applyLocked(ctx, st, ""), nil
	}
	s.soundID, s.volume = st.SelectedSound, st.Volume
	status := s.statusLocked("")
	s.presentLocked(ctx, status)
	return status, nil
}

// Sync re-reads the store and re-arms when the schedule changed behind the
// service's back, for example from another process sharing the store.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := settings.Load(ctx, s.kv)
	if err != nil {
		_, err = s.degradeLocked(ctx, "sync", err)
		return err
	}

	cfg, _ := st.Schedule()
	switch {
	case st.Active && (!s.armed || cfg != s.armedCfg):
		slog.Info("Schedule changed in store, re-arming", "mode", cfg.Mode)
		s.applyLocked(ctx, st, "")
	case !st.Active && s.armed:
		slog.Info("Chime disabled in store, disarming")
		s.applyLocked(ctx, st, "")
	case st.Active && (st.SelectedSound != s.soundID || st.Volume != s.volume):
		s.soundID, s.volume = st.SelectedSound, st.Volume
		s.presentLocked(ctx, s.statusLocked(s.lastNote))
	}
	return nil
}

// Status reports the current state without changing it.
func (s *Service) Status(ctx context.Context) (presenters.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := settings.Load(ctx, s.kv); err != nil {
		return presenters.Status{}, err
	}
	return s.statusLocked(s.lastNote), nil
}

// Upcoming previews the next n fire times of the stored schedule. While an
// interval series of that schedule is armed, the preview follows it.
func (s *Service) Upcoming(ctx context.Context, n int) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := settings.Load(ctx, s.kv)
	if err != nil {
		return nil, err
	}
	cfg, _ := st.Schedule()
	if n > 0 && s.armed && cfg == s.armedCfg && s.next.Recurring() && cfg.Mode != schedule.ModeSpecific {
		if deadline, ok := s.timer.Next(); ok {
			times := make([]time.Time, 0, n)
			for i := range n {
				times = append(times, deadline.Add(time.Duration(i)*s.next.Period).In(s.location))
			}
			return times, nil
		}
	}
	return schedule.Upcoming(cfg, s.clock(), n)
}

// Fire is the timer callback.
func (s *Service) Fire(ctx context.Context, firedAt time.Time) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	st, err := settings.Load(ctx, s.kv)
	if err != nil {
		s.degradeLocked(ctx, "fire", err)
		s.mu.Unlock()
		return
	}
	if !st.Active {
		slog.Info("Timer fired while the chime is disabled, disarming")
		s.disarmLocked()
		s.mu.Unlock()
		return
	}
	oneShot := !s.next.Recurring()
	s.mu.Unlock()

	slog.Info("Chime firing", "soundID", st.SelectedSound, "volume", st.Volume, "firedAt", firedAt)
	notice, played := s.play(ctx, st)
	s.publish(ctx, st, firedAt, played)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		// Disarmed or re-armed while playing; that path already presented.
		return
	}
	s.lastNote = notice

	if oneShot {
		slog.Info("One-shot chime done, disabling")
		if err := settings.Save(ctx, s.kv, settings.Patch{Active: settings.Ptr(false)}); err != nil {
			s.degradeLocked(ctx, "fire", err)
			return
		}
		s.disarmLocked()
		s.presentLocked(ctx, s.statusLocked(notice))
		return
	}

	s.soundID, s.volume = st.SelectedSound, st.Volume
	s.refreshLocked()
	s.presentLocked(ctx, s.statusLocked(notice))
}

func (s *Service) play(ctx context.Context, st settings.Settings) (notice string, played bool) {
	err := s.dispatcher.Play(ctx, st.SelectedSound, st.Volume)
	if err == nil {
		return "", true
	}

	var missing *sounds.MissingError
	if errors.As(err, &missing) {
		slog.Warn("Chime sound is missing", "soundID", missing.ID)
		return fmt.Sprintf("Sound %q was not found", missing.ID), false
	}
	if ctx.Err() != nil {
		return "", false
	}
	slog.Error("Failed to play chime", "soundID", st.SelectedSound, slog.Any("error", err))
	return noticePlayback, false
}

func (s *Service) publish(ctx context.Context, st settings.Settings, firedAt time.Time, played bool) {
	if s.publisher == nil {
		return
	}
	id, err := s.ids.Next()
	if err != nil {
		slog.Error("Failed to generate fire ID", slog.Any("error", err))
		return
	}
	fire := events.Fire{
		ID:      id,
		SoundID: st.SelectedSound,
		Volume:  st.Volume,
		At:      firedAt,
		Played:  played,
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), fire); err != nil {
		slog.Error("Failed to publish fire", slog.Any("error", err))
	}
}

// refreshLocked updates the next fire after a recurring fire. Interval
// series keep the timer's own deadlines so the period holds across the hour.
// A daily chime is recomputed and re-armed when the timer drifted off the
// wall clock, as it does across a DST change.
func (s *Service) refreshLocked() {
	now := s.clock()
	deadline, ok := s.timer.Next()
	if ok && s.armedCfg.Mode != schedule.ModeSpecific {
		s.next = schedule.NextFire{
			Delay:  deadline.Sub(now),
			Period: s.next.Period,
			At:     deadline.In(s.location).Truncate(time.Minute),
		}
		return
	}

	next := schedule.ComputeNextFire(s.armedCfg, now)
	if ok && deadline.In(s.location).Truncate(time.Minute).Equal(next.At) {
		s.next = next
		return
	}
	slog.Info("Timer drifted from schedule, re-arming", "want", next.At, "had", deadline)
	s.armLocked(next)
}

// applyLocked arms or disarms the timer to match st and presents the result.
func (s *Service) applyLocked(ctx context.Context, st settings.Settings, notice string) presenters.Status {
	s.soundID, s.volume = st.SelectedSound, st.Volume
	s.lastNote = notice

	if !st.Active {
		s.disarmLocked()
		status := s.statusLocked(notice)
		s.presentLocked(ctx, status)
		return status
	}

	cfg, fixed := st.Schedule()
	if invalid := append(st.Invalid, fixed...); len(invalid) > 0 {
		slog.Warn("Schedule configuration normalized", "fields", invalid, "mode", cfg.Mode)
	}

	next := schedule.ComputeNextFire(cfg, s.clock())
	s.armedCfg = cfg
	s.armLocked(next)

	status := s.statusLocked(notice)
	s.presentLocked(ctx, status)
	return status
}

// armLocked clears the armed schedule before creating the new one.
func (s *Service) armLocked(next schedule.NextFire) {
	s.timer.Disarm()
	s.timer.Arm(s.ctx, next.Delay, next.Period)
	s.armed = true
	s.next = next
	slog.Info("Chime armed", "next", next.At, "delay", next.Delay, "period", next.Period)
}

func (s *Service) disarmLocked() {
	s.timer.Disarm()
	if s.armed {
		slog.Info("Chime disarmed")
	}
	s.armed = false
	s.armedCfg = schedule.Config{}
	s.next = schedule.NextFire{}
}

// degradeLocked turns the chime off in memory after a storage failure. The
// stored state is left alone since it could not be reached.
func (s *Service) degradeLocked(ctx context.Context, op string, err error) (presenters.Status, error) {
	slog.Error("Settings store failed, disabling chime", "op", op, slog.Any("error", err))
	s.disarmLocked()
	s.lastNote = noticeStorage
	status := s.statusLocked(noticeStorage)
	s.presentLocked(ctx, status)
	return status, fmt.Errorf("failed to %s chime: %w", op, err)
}

func (s *Service) statusLocked(notice string) presenters.Status {
	status := presenters.Status{
		Enabled: s.armed,
		Notice:  notice,
		SoundID: s.soundID,
		Volume:  s.volume,
	}
	if s.armed {
		status.NextFireAt = s.next.At
		status.Schedule = s.armedCfg
	}
	return status
}

func (s *Service) presentLocked(ctx context.Context, status presenters.Status) {
	if err := s.presenter.Present(context.WithoutCancel(ctx), status); err != nil {
		slog.Error("Failed to present chime status", slog.Any("error", err))
	}
}

// IsStorageError reports whether err came from an unreachable settings
// store.
func IsStorageError(err error) bool {
	var unavailable *repository.UnavailableError
	return errors.As(err, &unavailable)
}
