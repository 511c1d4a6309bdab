package schedule_test

import (
	"testing"

	"github.com/glizzus/chime-off/internal/schedule"
	"github.com/google/go-cmp/cmp"
)

func TestParseMinutes(t *testing.T) {
	table := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{input: "15", want: 15, wantOK: true},
		{input: " 45 ", want: 45, wantOK: true},
		{input: "1", want: 1, wantOK: true},
		{input: "0", want: schedule.DefaultMinutes, wantOK: false},
		{input: "-3", want: schedule.DefaultMinutes, wantOK: false},
		{input: "abc", want: schedule.DefaultMinutes, wantOK: false},
		{input: "", want: schedule.DefaultMinutes, wantOK: false},
		{input: "2.5", want: schedule.DefaultMinutes, wantOK: false},
	}

	for _, tc := range table {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := schedule.ParseMinutes(tc.input)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("ParseMinutes(%q) = (%d, %v); want (%d, %v)", tc.input, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	valid := map[string]schedule.TimeOfDay{
		"09:00": {Hour: 9},
		"18:45": {Hour: 18, Minute: 45},
		"0:05":  {Minute: 5},
		"23:59": {Hour: 23, Minute: 59},
	}
	for input, want := range valid {
		t.Run(input, func(t *testing.T) {
			got, err := schedule.ParseTimeOfDay(input)
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) returned error: %v", input, err)
			}
			if got != want {
				t.Errorf("ParseTimeOfDay(%q) = %v; want %v", input, got, want)
			}
			if input == "09:00" && got.String() != "09:00" {
				t.Errorf("String() = %q; want %q", got.String(), "09:00")
			}
		})
	}

	for _, input := range []string{"", "9", "24:00", "12:60", "ab:cd", "-1:30"} {
		t.Run("invalid "+input, func(t *testing.T) {
			if got, err := schedule.ParseTimeOfDay(input); err == nil {
				t.Errorf("ParseTimeOfDay(%q) expected error but got %v", input, got)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	table := map[string]schedule.Mode{
		"periodic": schedule.ModePeriodic,
		"custom":   schedule.ModeCustom,
		"SPECIFIC": schedule.ModeSpecific,
		"15":       schedule.ModePeriodic,
		"":         schedule.ModePeriodic,
	}
	for input, want := range table {
		if got := schedule.ParseMode(input); got != want {
			t.Errorf("ParseMode(%q) = %q; want %q", input, got, want)
		}
	}
}

func TestConfigNormalize(t *testing.T) {
	table := []struct {
		name      string
		cfg       schedule.Config
		want      schedule.Config
		wantFixed []string
	}{
		{
			name:      "valid periodic config is untouched",
			cfg:       schedule.Config{Mode: schedule.ModePeriodic, PeriodMinutes: 30},
			want:      schedule.Config{Mode: schedule.ModePeriodic, PeriodMinutes: 30},
			wantFixed: nil,
		},
		{
			name:      "inactive fields are not normalized",
			cfg:       schedule.Config{Mode: schedule.ModeCustom, CustomMinutes: 5, PeriodMinutes: -1},
			want:      schedule.Config{Mode: schedule.ModeCustom, CustomMinutes: 5, PeriodMinutes: -1},
			wantFixed: nil,
		},
		{
			name:      "unknown mode and zero period",
			cfg:       schedule.Config{Mode: "bogus"},
			want:      schedule.Config{Mode: schedule.ModePeriodic, PeriodMinutes: schedule.DefaultMinutes},
			wantFixed: []string{"mode", "periodMinutes"},
		},
		{
			name:      "out of range time of day",
			cfg:       schedule.Config{Mode: schedule.ModeSpecific, TimeOfDay: schedule.TimeOfDay{Hour: 25}},
			want:      schedule.Config{Mode: schedule.ModeSpecific},
			wantFixed: []string{"timeOfDay"},
		},
	}

	for _, tc := range table {
		t.Run(tc.name, func(t *testing.T) {
			got, fixed := tc.cfg.Normalize()
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Normalize() config mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.wantFixed, fixed); diff != "" {
				t.Errorf("Normalize() fixed fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
