package chime_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/chime-off/internal/chime"
	"github.com/glizzus/chime-off/internal/events"
	"github.com/glizzus/chime-off/internal/presenters"
	"github.com/glizzus/chime-off/internal/repository"
	"github.com/glizzus/chime-off/internal/schedule"
	"github.com/glizzus/chime-off/internal/settings"
	"github.com/glizzus/chime-off/internal/sounds"
	"github.com/glizzus/chime-off/internal/timer"
	"github.com/google/go-cmp/cmp"
)

type arm struct {
	Delay  time.Duration
	Period time.Duration
}

type fakeTimer struct {
	now func() time.Time

	mu       sync.Mutex
	calls    []string
	arms     []arm
	armed    bool
	deadline time.Time
	period   time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

func (f *fakeTimer) Arm(ctx context.Context, delay, period time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "arm")
	f.arms = append(f.arms, arm{Delay: delay, Period: period})
	f.armed = true
	f.deadline = f.now().Add(delay)
	f.period = period
	f.ctx, f.cancel = context.WithCancel(ctx)
}

func (f *fakeTimer) Disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "disarm")
	if f.cancel != nil {
		f.cancel()
	}
	f.armed = false
}

func (f *fakeTimer) Next() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deadline, f.armed
}

func (f *fakeTimer) Close() { f.Disarm() }

// fire advances the series the way timer.Host does and returns the context
// to pass to the callback.
func (f *fakeTimer) fire() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.period == 0 {
		f.armed = false
	} else {
		f.deadline = f.deadline.Add(f.period)
	}
	return f.ctx
}

type playCall struct {
	SoundID string
	Volume  int
}

type fakeDispatcher struct {
	mu    sync.Mutex
	plays []playCall
	err   error
}

func (d *fakeDispatcher) Play(_ context.Context, soundID string, volume int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plays = append(d.plays, playCall{SoundID: soundID, Volume: volume})
	return d.err
}

type recordingPresenter struct {
	mu       sync.Mutex
	statuses []presenters.Status
}

func (p *recordingPresenter) Present(_ context.Context, status presenters.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *recordingPresenter) last(t *testing.T) presenters.Status {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.statuses) == 0 {
		t.Fatal("nothing was presented")
	}
	return p.statuses[len(p.statuses)-1]
}

type recordingPublisher struct {
	fires []events.Fire
}

func (p *recordingPublisher) Publish(_ context.Context, fire events.Fire) error {
	p.fires = append(p.fires, fire)
	return nil
}

type staticIDs struct{}

func (staticIDs) Next() (string, error) { return "fire-1", nil }

// brokenKV fails every call once broken is set.
type brokenKV struct {
	*repository.MemoryKV
	broken bool
}

func (b *brokenKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if b.broken {
		return nil, &repository.UnavailableError{Op: "get", Err: errors.New("connection refused")}
	}
	return b.MemoryKV.Get(ctx, keys...)
}

func (b *brokenKV) Set(ctx context.Context, values map[string]string) error {
	if b.broken {
		return &repository.UnavailableError{Op: "set", Err: errors.New("connection refused")}
	}
	return b.MemoryKV.Set(ctx, values)
}

type harness struct {
	svc        *chime.Service
	kv         *brokenKV
	timer      *fakeTimer
	dispatcher *fakeDispatcher
	presenter  *recordingPresenter
	publisher  *recordingPublisher
	now        time.Time
}

func newHarness(t *testing.T, now time.Time, stored map[string]string) *harness {
	t.Helper()
	h := &harness{
		kv:         &brokenKV{MemoryKV: repository.NewMemoryKV()},
		dispatcher: &fakeDispatcher{},
		presenter:  &recordingPresenter{},
		publisher:  &recordingPublisher{},
		now:        now,
	}
	clock := func() time.Time { return h.now }
	h.timer = &fakeTimer{now: clock}
	if len(stored) > 0 {
		if err := h.kv.Set(t.Context(), stored); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}

	svc, err := chime.NewService(chime.Options{
		KV:         h.kv,
		Dispatcher: h.dispatcher,
		Presenter:  h.presenter,
		Publisher:  h.publisher,
		Now:        clock,
		Location:   time.UTC,
		NewTimer:   func(timer.Callback) chime.Timer { return h.timer },
		IDs:        staticIDs{},
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	t.Cleanup(svc.Close)
	h.svc = svc
	return h
}

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 5, 14, hour, minute, second, 0, time.UTC)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := chime.NewService(chime.Options{Dispatcher: &fakeDispatcher{}}); err == nil {
		t.Error("expected an error without a store")
	}
	if _, err := chime.NewService(chime.Options{KV: repository.NewMemoryKV()}); err == nil {
		t.Error("expected an error without a dispatcher")
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name     string
		stored   map[string]string
		wantArms []arm
		wantNext time.Time
		enabled  bool
	}{
		{
			name:    "fresh install stays disabled",
			stored:  nil,
			enabled: false,
		},
		{
			name:     "active periodic",
			stored:   map[string]string{settings.KeyActive: "true", settings.KeyPeriodMinutes: "15"},
			wantArms: []arm{{Delay: 15 * time.Minute, Period: 15 * time.Minute}},
			wantNext: at(14, 45, 0),
			enabled:  true,
		},
		{
			name: "active custom with bad value normalizes",
			stored: map[string]string{
				settings.KeyActive:        "true",
				settings.KeyMode:          "custom",
				settings.KeyCustomMinutes: "abc",
			},
			wantArms: []arm{{Delay: 15 * time.Minute, Period: 15 * time.Minute}},
			wantNext: at(14, 45, 0),
			enabled:  true,
		},
		{
			name: "active daily",
			stored: map[string]string{
				settings.KeyActive:      "true",
				settings.KeyMode:        "specific",
				settings.KeyTimeOfDay:   "18:00",
				settings.KeyRepeatDaily: "true",
			},
			wantArms: []arm{{Delay: 3*time.Hour + 30*time.Minute, Period: 24 * time.Hour}},
			wantNext: at(18, 0, 0),
			enabled:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, at(14, 30, 0), tt.stored)

			status, err := h.svc.Restore(t.Context())
			if err != nil {
				t.Fatalf("Restore returned error: %v", err)
			}
			if status.Enabled != tt.enabled {
				t.Errorf("Enabled = %v, want %v", status.Enabled, tt.enabled)
			}
			if !status.NextFireAt.Equal(tt.wantNext) {
				t.Errorf("NextFireAt = %v, want %v", status.NextFireAt, tt.wantNext)
			}
			if diff := cmp.Diff(tt.wantArms, h.timer.arms); diff != "" {
				t.Errorf("arms mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(status, h.presenter.last(t)); diff != "" {
				t.Errorf("presented status mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToggleClearsBeforeCreating(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), nil)

	if _, err := h.svc.Toggle(t.Context(), true); err != nil {
		t.Fatalf("Toggle(true) returned error: %v", err)
	}
	if _, err := h.svc.Toggle(t.Context(), true); err != nil {
		t.Fatalf("second Toggle(true) returned error: %v", err)
	}
	status, err := h.svc.Toggle(t.Context(), false)
	if err != nil {
		t.Fatalf("Toggle(false) returned error: %v", err)
	}

	want := []string{"disarm", "arm", "disarm", "arm", "disarm"}
	if diff := cmp.Diff(want, h.timer.calls); diff != "" {
		t.Errorf("timer calls mismatch (-want +got):\n%s", diff)
	}
	if status.Enabled || !status.NextFireAt.IsZero() {
		t.Errorf("expected a disabled status, got %+v", status)
	}
	if presenters.FormatNextFire(status.NextFireAt) != "--:--" {
		t.Errorf("disabled status should show no next time")
	}

	stored, err := settings.Load(t.Context(), h.kv)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if stored.Active {
		t.Error("isActive should be persisted as false")
	}
}

func TestUpdateScheduleRearms(t *testing.T) {
	h := newHarness(t, at(9, 0, 0), map[string]string{settings.KeyActive: "true"})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	status, err := h.svc.UpdateSchedule(t.Context(), settings.Patch{
		Mode:      settings.Ptr(schedule.ModeSpecific),
		TimeOfDay: settings.Ptr("18:00"),
	})
	if err != nil {
		t.Fatalf("UpdateSchedule returned error: %v", err)
	}

	want := []arm{
		{Delay: 15 * time.Minute, Period: 15 * time.Minute},
		{Delay: 9 * time.Hour, Period: 0},
	}
	if diff := cmp.Diff(want, h.timer.arms); diff != "" {
		t.Errorf("arms mismatch (-want +got):\n%s", diff)
	}
	if !status.NextFireAt.Equal(at(18, 0, 0)) {
		t.Errorf("NextFireAt = %v, want 18:00", status.NextFireAt)
	}
}

func TestUpdateVolumeKeepsTimer(t *testing.T) {
	h := newHarness(t, at(9, 0, 0), map[string]string{settings.KeyActive: "true"})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	status, err := h.svc.Update(t.Context(), settings.Patch{Volume: settings.Ptr(80)})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if len(h.timer.arms) != 1 {
		t.Errorf("volume change re-armed the timer: %+v", h.timer.arms)
	}
	if status.Volume != 80 {
		t.Errorf("Volume = %d, want 80", status.Volume)
	}
}

func TestUpdateEmptyPatchReportsStatus(t *testing.T) {
	h := newHarness(t, at(9, 0, 0), map[string]string{settings.KeyActive: "true"})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	// Nothing is written, so a broken store goes unnoticed.
	h.kv.broken = true

	status, err := h.svc.Update(t.Context(), settings.Patch{})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if !status.Enabled || !status.NextFireAt.Equal(at(9, 15, 0)) {
		t.Errorf("unexpected status: %+v", status)
	}
	if diff := cmp.Diff([]string{"disarm", "arm"}, h.timer.calls); diff != "" {
		t.Errorf("timer calls mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	h := newHarness(t, at(9, 0, 0), nil)

	if _, err := h.svc.Update(t.Context(), settings.Patch{Volume: settings.Ptr(150)}); err == nil {
		t.Error("expected an error for volume 150")
	}
	if _, err := h.svc.Update(t.Context(), settings.Patch{TimeOfDay: settings.Ptr("25:00")}); err == nil {
		t.Error("expected an error for time 25:00")
	}
	if len(h.timer.calls) != 0 {
		t.Errorf("rejected patches touched the timer: %v", h.timer.calls)
	}
}

func TestFirePeriodic(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), map[string]string{
		settings.KeyActive:        "true",
		settings.KeySelectedSound: "bell",
		settings.KeyVolume:        "30",
	})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	h.now = at(14, 45, 0).Add(300 * time.Millisecond)
	h.svc.Fire(h.timer.fire(), h.now)

	if diff := cmp.Diff([]playCall{{SoundID: "bell", Volume: 30}}, h.dispatcher.plays); diff != "" {
		t.Errorf("plays mismatch (-want +got):\n%s", diff)
	}
	if len(h.timer.arms) != 1 {
		t.Errorf("an aligned series should not be re-armed, arms: %+v", h.timer.arms)
	}
	status := h.presenter.last(t)
	if !status.Enabled || !status.NextFireAt.Equal(at(15, 0, 0)) {
		t.Errorf("unexpected status after fire: %+v", status)
	}

	want := []events.Fire{{ID: "fire-1", SoundID: "bell", Volume: 30, At: h.now, Played: true}}
	if diff := cmp.Diff(want, h.publisher.fires); diff != "" {
		t.Errorf("published fires mismatch (-want +got):\n%s", diff)
	}
}

func TestFireKeepsIntervalSeries(t *testing.T) {
	tests := []struct {
		name    string
		stored  map[string]string
		wantGap time.Duration
	}{
		{
			name:    "custom 45 minutes",
			stored:  map[string]string{settings.KeyMode: "custom", settings.KeyCustomMinutes: "45"},
			wantGap: 45 * time.Minute,
		},
		{
			name:    "custom 90 minutes",
			stored:  map[string]string{settings.KeyMode: "custom", settings.KeyCustomMinutes: "90"},
			wantGap: 90 * time.Minute,
		},
		{
			name:    "periodic 7 minutes",
			stored:  map[string]string{settings.KeyPeriodMinutes: "7"},
			wantGap: 7 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.stored[settings.KeyActive] = "true"
			h := newHarness(t, at(10, 0, 0), tt.stored)
			if _, err := h.svc.Restore(t.Context()); err != nil {
				t.Fatalf("Restore returned error: %v", err)
			}

			var fires []time.Time
			for range 4 {
				deadline, ok := h.timer.Next()
				if !ok {
					t.Fatalf("timer disarmed after %d fires", len(fires))
				}
				h.now = deadline
				fires = append(fires, deadline)
				h.svc.Fire(h.timer.fire(), h.now)

				next, _ := h.timer.Next()
				if got := h.presenter.last(t).NextFireAt; !got.Equal(next.Truncate(time.Minute)) {
					t.Errorf("presented next fire %v; timer deadline is %v", got, next)
				}
			}

			for i := 1; i < len(fires); i++ {
				if gap := fires[i].Sub(fires[i-1]); gap != tt.wantGap {
					t.Errorf("gap between fire %d and %d = %v, want %v", i, i+1, gap, tt.wantGap)
				}
			}
			if len(h.timer.arms) != 1 {
				t.Errorf("an interval series should be armed once, arms: %+v", h.timer.arms)
			}

			upcoming, err := h.svc.Upcoming(t.Context(), 2)
			if err != nil {
				t.Fatalf("Upcoming returned error: %v", err)
			}
			want := []time.Time{fires[3].Add(tt.wantGap), fires[3].Add(2 * tt.wantGap)}
			if diff := cmp.Diff(want, upcoming); diff != "" {
				t.Errorf("Upcoming mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFireRearmsDailyWhenSeriesDrifts(t *testing.T) {
	h := newHarness(t, at(8, 0, 0), map[string]string{
		settings.KeyActive:      "true",
		settings.KeyMode:        "specific",
		settings.KeyTimeOfDay:   "09:00",
		settings.KeyRepeatDaily: "true",
	})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	// Fired a day late, so the timer's next deadline is already behind the
	// wall clock.
	h.now = at(9, 0, 0).AddDate(0, 0, 1).Add(time.Hour)
	h.svc.Fire(h.timer.fire(), h.now)

	if len(h.timer.arms) != 2 {
		t.Fatalf("expected a re-arm, arms: %+v", h.timer.arms)
	}
	if got := h.timer.arms[1]; got.Delay != 23*time.Hour || got.Period != 24*time.Hour {
		t.Errorf("re-armed with %+v, want 23h delay and 24h period", got)
	}
	if got, want := h.presenter.last(t).NextFireAt, at(9, 0, 0).AddDate(0, 0, 2); !got.Equal(want) {
		t.Errorf("presented next fire %v, want %v", got, want)
	}
}

func TestFireOneShotDisables(t *testing.T) {
	h := newHarness(t, at(9, 0, 0), map[string]string{
		settings.KeyActive:    "true",
		settings.KeyMode:      "specific",
		settings.KeyTimeOfDay: "18:00",
	})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	h.now = at(18, 0, 0)
	h.svc.Fire(h.timer.fire(), h.now)

	if len(h.dispatcher.plays) != 1 {
		t.Errorf("expected one play, got %d", len(h.dispatcher.plays))
	}
	status := h.presenter.last(t)
	if status.Enabled {
		t.Errorf("one-shot should leave the chime disabled, got %+v", status)
	}
	stored, err := settings.Load(t.Context(), h.kv)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if stored.Active {
		t.Error("one-shot should persist isActive=false")
	}
}

func TestFireMissingSound(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), map[string]string{
		settings.KeyActive:        "true",
		settings.KeySelectedSound: "custom_1",
	})
	h.dispatcher.err = &sounds.MissingError{ID: "custom_1"}
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	h.now = at(14, 45, 0)
	h.svc.Fire(h.timer.fire(), h.now)

	status := h.presenter.last(t)
	if !status.Enabled {
		t.Error("a missing sound should not disable the chime")
	}
	if !strings.Contains(status.Notice, "custom_1") {
		t.Errorf("Notice = %q, want it to name the sound", status.Notice)
	}
	if len(h.publisher.fires) != 1 || h.publisher.fires[0].Played {
		t.Errorf("expected one unplayed fire record, got %+v", h.publisher.fires)
	}
}

func TestFireWhileInactive(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), map[string]string{settings.KeyActive: "true"})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if err := h.kv.Set(t.Context(), map[string]string{settings.KeyActive: "false"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	h.now = at(14, 45, 0)
	h.svc.Fire(h.timer.fire(), h.now)

	if len(h.dispatcher.plays) != 0 {
		t.Errorf("inactive chime played: %+v", h.dispatcher.plays)
	}
	if _, armed := h.timer.Next(); armed {
		t.Error("inactive chime left the timer armed")
	}
}

func TestFireIgnoresCancelledContext(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), map[string]string{settings.KeyActive: "true"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	h.svc.Fire(ctx, h.now)
	if len(h.dispatcher.plays) != 0 {
		t.Errorf("cancelled fire played: %+v", h.dispatcher.plays)
	}
}

func TestStorageFailureDegrades(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), map[string]string{settings.KeyActive: "true"})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	h.kv.broken = true
	status, err := h.svc.Toggle(t.Context(), true)
	if err == nil {
		t.Fatal("expected an error from a broken store")
	}
	if !chime.IsStorageError(err) {
		t.Errorf("IsStorageError(%v) = false", err)
	}
	if status.Enabled || status.Notice == "" {
		t.Errorf("expected a disabled status with a notice, got %+v", status)
	}
	if _, armed := h.timer.Next(); armed {
		t.Error("timer still armed after storage failure")
	}

	if err := h.svc.Sync(t.Context()); !chime.IsStorageError(err) {
		t.Errorf("Sync error = %v, want a storage error", err)
	}

	h.kv.broken = false
	if err := h.svc.Sync(t.Context()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if !h.presenter.last(t).Enabled {
		t.Error("Sync should re-arm once the store is back")
	}
}

func TestSyncPicksUpExternalChanges(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), map[string]string{settings.KeyActive: "true"})
	if _, err := h.svc.Restore(t.Context()); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	if err := h.svc.Sync(t.Context()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(h.timer.arms) != 1 {
		t.Errorf("unchanged store re-armed the timer: %+v", h.timer.arms)
	}

	if err := h.kv.Set(t.Context(), map[string]string{settings.KeyPeriodMinutes: "30"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := h.svc.Sync(t.Context()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(h.timer.arms) != 2 || h.timer.arms[1].Period != 30*time.Minute {
		t.Errorf("expected a 30 minute re-arm, arms: %+v", h.timer.arms)
	}

	if err := h.kv.Set(t.Context(), map[string]string{settings.KeyActive: "false"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := h.svc.Sync(t.Context()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if h.presenter.last(t).Enabled {
		t.Error("Sync should disarm a chime disabled in the store")
	}
}

func TestUpcoming(t *testing.T) {
	h := newHarness(t, at(14, 30, 0), map[string]string{settings.KeyPeriodMinutes: "20"})

	got, err := h.svc.Upcoming(t.Context(), 3)
	if err != nil {
		t.Fatalf("Upcoming returned error: %v", err)
	}
	want := []time.Time{at(14, 40, 0), at(15, 0, 0), at(15, 20, 0)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Upcoming mismatch (-want +got):\n%s", diff)
	}
}
