package presenters

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/chime-off/internal/sounds"
)

var embedColorOn = 0x4CAF50
var embedColorOff = 0x9e9e9e

// BuildStatusEmbed renders a status as a Discord embed.
func BuildStatusEmbed(status Status) *discordgo.MessageEmbed {
	badge := Badge(status.Enabled)
	color := embedColorOff
	if status.Enabled {
		color = embedColorOn
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Next chime", Value: FormatNextFire(status.NextFireAt), Inline: true},
	}
	if status.Enabled {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Schedule", Value: DescribeSchedule(status.Schedule), Inline: true},
			&discordgo.MessageEmbedField{Name: "Sound", Value: fmt.Sprintf("%s (%d%%)", status.SoundID, status.Volume), Inline: true},
		)
	}

	embed := &discordgo.MessageEmbed{
		Title:  "Chime " + badge.Text,
		Color:  color,
		Fields: fields,
	}
	if status.Notice != "" {
		embed.Description = status.Notice
	}
	return embed
}

func BuildStatusResponse(status Status) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{BuildStatusEmbed(status)},
		},
	}
}

var noSoundsFoundResponse = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseChannelMessageWithSource,
	Data: &discordgo.InteractionResponseData{
		Content: "No sounds found",
	},
}

func soundToSelectMenuOption(s sounds.Sound, selectedID string) discordgo.SelectMenuOption {
	description := "Built-in"
	if s.Custom() {
		description = "Uploaded"
	}
	return discordgo.SelectMenuOption{
		Label:       s.Name,
		Value:       s.ID,
		Description: description,
		Default:     s.ID == selectedID,
	}
}

var soundSelectMinValues = 1

// Discord caps a select menu at 25 options.
const maxSelectOptions = 25

const ComponentIDSoundSelect = "chime_sound_select"

// BuildSoundSelectResponse offers every sound in a select menu. The menu's
// custom ID carries instanceID so the selection can be routed back.
func BuildSoundSelectResponse(list []sounds.Sound, selectedID, instanceID string) *discordgo.InteractionResponse {
	if len(list) == 0 {
		return noSoundsFoundResponse
	}
	if len(list) > maxSelectOptions {
		list = list[:maxSelectOptions]
	}

	var options []discordgo.SelectMenuOption
	for _, s := range list {
		options = append(options, soundToSelectMenuOption(s, selectedID))
	}

	menu := discordgo.SelectMenu{
		CustomID:    ComponentIDSoundSelect + ":" + instanceID,
		Placeholder: "Select a sound",
		MinValues:   &soundSelectMinValues,
		MaxValues:   1,
		Options:     options,
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "**Choose a chime sound**",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{menu},
				},
			},
		},
	}
}

// BuildSoundSelectedResponse replaces the select menu once a sound is picked.
func BuildSoundSelectedResponse(name string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    fmt.Sprintf("Chime sound set to **%s**", name),
			Components: []discordgo.MessageComponent{},
		},
	}
}

// MessageResponse is a plain, optionally ephemeral, reply.
func MessageResponse(content string, ephemeral bool) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

// CustomStatusUpdater is the part of a Discord session that sets the bot's
// custom status.
type CustomStatusUpdater interface {
	UpdateCustomStatus(state string) error
}

// PresencePresenter shows the badge and next fire time as the bot's status.
type PresencePresenter struct {
	Session CustomStatusUpdater
}

func (p *PresencePresenter) Present(ctx context.Context, status Status) error {
	state := fmt.Sprintf("Chime %s", Badge(status.Enabled).Text)
	if status.Enabled {
		state += " · next " + FormatNextFire(status.NextFireAt)
	}
	if status.Notice != "" {
		state += " · " + strings.TrimSpace(status.Notice)
	}
	if err := p.Session.UpdateCustomStatus(state); err != nil {
		return fmt.Errorf("failed to update custom status: %w", err)
	}
	return nil
}

var _ Presenter = (*PresencePresenter)(nil)
var _ CustomStatusUpdater = (*discordgo.Session)(nil)
