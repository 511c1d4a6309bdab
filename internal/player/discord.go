package player

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/chime-off/internal/opus"
	"github.com/glizzus/chime-off/internal/voice"
)

// DiscordDispatcher plays chimes into a guild voice channel.
type DiscordDispatcher struct {
	session   *discordgo.Session
	sounds    Opener
	guildID   string
	channelID string
}

// NewDiscordDispatcher plays into channelID, or into the most attended voice
// channel of the guild when channelID is empty or gone.
func NewDiscordDispatcher(session *discordgo.Session, sounds Opener, guildID, channelID string) *DiscordDispatcher {
	return &DiscordDispatcher{
		session:   session,
		sounds:    sounds,
		guildID:   guildID,
		channelID: channelID,
	}
}

func (d *DiscordDispatcher) Play(ctx context.Context, soundID string, volumePercent int) error {
	sound, r, err := d.sounds.Open(ctx, soundID)
	if err != nil {
		return err
	}
	defer r.Close()

	channels, err := d.session.GuildChannels(d.guildID)
	if err != nil {
		return fmt.Errorf("failed to get guild channels: %w", err)
	}
	channel := voice.ChooseChannel(channels, d.channelID)
	if channel == nil {
		return fmt.Errorf("no voice channel found in guild %s", d.guildID)
	}

	encoded, err := opus.Encode(ctx, r, volumePercent)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", sound.ID, err)
	}
	defer encoded.Close()

	slog.Info(
		"playing chime in voice channel",
		"soundID", sound.ID,
		"guildID", d.guildID,
		"channelID", channel.ID,
		"volume", volumePercent,
	)
	return voice.WithVoiceChannel(d.session, d.guildID, channel.ID, func(_ *discordgo.Session, vc *discordgo.VoiceConnection) error {
		if err := opus.StreamToVoice(ctx, opus.NewFrameReader(encoded), opus.VoiceSender(vc)); err != nil {
			return fmt.Errorf("failed to stream audio: %w", err)
		}
		return nil
	})
}

var _ Dispatcher = (*DiscordDispatcher)(nil)
