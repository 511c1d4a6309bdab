package voice

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// MaxAttendedChannel returns the channel with the most members in it.
// This returns nil if there are no voice channels.
func MaxAttendedChannel(channels []*discordgo.Channel) *discordgo.Channel {
	var maxAttendedChannel *discordgo.Channel
	maxAttended := -1

	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}

		if len(channel.Members) > maxAttended {
			maxAttendedChannel = channel
			maxAttended = len(channel.Members)
		}
	}

	return maxAttendedChannel
}

// ChooseChannel returns the voice channel with ID preferredID when it exists,
// and otherwise the most attended voice channel.
func ChooseChannel(channels []*discordgo.Channel, preferredID string) *discordgo.Channel {
	if preferredID != "" {
		for _, channel := range channels {
			if channel.ID == preferredID && channel.Type == discordgo.ChannelTypeGuildVoice {
				return channel
			}
		}
		slog.Warn("configured voice channel not found, using the most attended one", "channelID", preferredID)
	}
	return MaxAttendedChannel(channels)
}

type VoiceChannelFunc func(*discordgo.Session, *discordgo.VoiceConnection) error

// WithVoiceChannel is a utility function
// that joins a voice channel and executes a callback.
// It handles the voice state updates for you.
func WithVoiceChannel(s *discordgo.Session, guildID, channelID string, callback VoiceChannelFunc) error {
	slog.Debug("joining voice channel", "guildID", guildID, "channelID", channelID)
	voiceConn, err := s.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("unable to join the voice channel: %w", err)
	}

	if err := voiceConn.Speaking(true); err != nil {
		return fmt.Errorf("error setting speaking state to 'true': %w", err)
	}
	defer func() {
		if err := voiceConn.Speaking(false); err != nil {
			slog.Error("failed to stop speaking", "error", err)
		}

		if err := voiceConn.Disconnect(); err != nil {
			slog.Error("failed to disconnect", "error", err)
		}
	}()

	if err = callback(s, voiceConn); err != nil {
		return fmt.Errorf("error executing callback: %w", err)
	}

	return nil
}
