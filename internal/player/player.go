// Package player dispatches chime playback to a sound output.
package player

import (
	"context"
	"io"
	"log/slog"

	"github.com/glizzus/chime-off/internal/sounds"
)

// Dispatcher plays a sound at a volume between 0 and 100.
type Dispatcher interface {
	Play(ctx context.Context, soundID string, volumePercent int) error
}

// Opener resolves a sound ID to its data. *sounds.Catalog implements it.
type Opener interface {
	Open(ctx context.Context, id string) (sounds.Sound, io.ReadCloser, error)
}

var _ Opener = (*sounds.Catalog)(nil)

// LogDispatcher resolves the sound but only logs what it would play.
type LogDispatcher struct {
	sounds Opener
}

func NewLogDispatcher(sounds Opener) *LogDispatcher {
	return &LogDispatcher{sounds: sounds}
}

func (d *LogDispatcher) Play(ctx context.Context, soundID string, volumePercent int) error {
	sound, r, err := d.sounds.Open(ctx, soundID)
	if err != nil {
		return err
	}
	defer r.Close()

	slog.InfoContext(
		ctx,
		"Dry run mode: chime would play",
		slog.String("soundID", sound.ID),
		slog.String("soundName", sound.Name),
		slog.Int("volume", volumePercent),
	)
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
