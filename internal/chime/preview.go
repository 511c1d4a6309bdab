package chime

import (
	"time"

	"github.com/glizzus/chime-off/internal/presenters"
	"github.com/glizzus/chime-off/internal/schedule"
	"github.com/glizzus/chime-off/internal/settings"
)

// Preview is the status a service in sync with st would report at now. It
// lets tools that only read the store show the same status as the daemon.
func Preview(st settings.Settings, now time.Time) presenters.Status {
	status := presenters.Status{
		Enabled: st.Active,
		SoundID: st.SelectedSound,
		Volume:  st.Volume,
	}
	if !st.Active {
		return status
	}
	cfg, _ := st.Schedule()
	status.Schedule = cfg
	status.NextFireAt = schedule.ComputeNextFire(cfg, now).At
	return status
}
