package player

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
)

// FFPlayDispatcher plays sounds on the local machine through ffplay.
type FFPlayDispatcher struct {
	sounds Opener
	binary string
	// run executes the prepared command; replaced in tests.
	run func(cmd *exec.Cmd) error
}

func NewFFPlayDispatcher(sounds Opener, binary string) *FFPlayDispatcher {
	if binary == "" {
		binary = "ffplay"
	}
	return &FFPlayDispatcher{
		sounds: sounds,
		binary: binary,
		run:    func(cmd *exec.Cmd) error { return cmd.Run() },
	}
}

func ffplayArgs(volumePercent int) []string {
	volumePercent = min(max(volumePercent, 0), 100)
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-volume", strconv.Itoa(volumePercent),
		"-i", "pipe:0",
	}
}

func (d *FFPlayDispatcher) command(ctx context.Context, r io.Reader, volumePercent int) *exec.Cmd {
	cmd := exec.CommandContext(ctx, d.binary, ffplayArgs(volumePercent)...)
	cmd.Stdin = r
	return cmd
}

func (d *FFPlayDispatcher) Play(ctx context.Context, soundID string, volumePercent int) error {
	sound, r, err := d.sounds.Open(ctx, soundID)
	if err != nil {
		return err
	}
	defer r.Close()

	slog.Debug("playing chime locally", "soundID", sound.ID, "volume", volumePercent)
	if err := d.run(d.command(ctx, r, volumePercent)); err != nil {
		return fmt.Errorf("failed to play %s with %s: %w", sound.ID, d.binary, err)
	}
	return nil
}

var _ Dispatcher = (*FFPlayDispatcher)(nil)
