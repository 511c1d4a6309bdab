package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	CommandPing  = "ping"
	CommandChime = "chime"

	SubcommandStatus = "status"
	SubcommandOn     = "on"
	SubcommandOff    = "off"
	SubcommandEvery  = "every"
	SubcommandAt     = "at"
	SubcommandVolume = "volume"
	SubcommandSound  = "sound"
	SubcommandUpload = "upload"
)

var minVolume = 0.0
var minMinutes = 1.0

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        CommandPing,
		Description: "Check that the bot is responding",
	},
	{
		Name:        CommandChime,
		Description: "Control the chime",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        SubcommandStatus,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Show whether the chime is on and when it rings next",
			},
			{
				Name:        SubcommandOn,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Turn the chime on",
			},
			{
				Name:        SubcommandOff,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Turn the chime off",
			},
			{
				Name:        SubcommandEvery,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Ring on every multiple of an interval within the hour",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "minutes",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Description: "Interval in minutes, for example 15 rings at :00, :15, :30 and :45",
						Required:    true,
						MinValue:    &minMinutes,
					},
					{
						Name:        "custom",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Description: "Store the interval as a custom interval",
						Required:    false,
					},
				},
			},
			{
				Name:        SubcommandAt,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Ring at a time of day",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "time",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "Time of day as HH:MM in 24-hour time",
						Required:    true,
					},
					{
						Name:        "daily",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Description: "Repeat every day instead of once",
						Required:    false,
					},
				},
			},
			{
				Name:        SubcommandVolume,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Set the chime volume",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "percent",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Description: "Volume from 0 to 100",
						Required:    true,
						MinValue:    &minVolume,
						MaxValue:    100,
					},
				},
			},
			{
				Name:        SubcommandSound,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Choose the chime sound",
			},
			{
				Name:        SubcommandUpload,
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Upload a sound and select it",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "audio",
						Type:        discordgo.ApplicationCommandOptionAttachment,
						Description: "The audio file to play when the chime rings",
						Required:    true,
					},
				},
			},
		},
	},
}

// CommandRegistrar is the part of a Discord session that registers commands.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// EstablishCommands registers Commands for guildID, or globally when guildID
// is empty.
func EstablishCommands(s CommandRegistrar, appID, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(appID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}

var _ CommandRegistrar = (*discordgo.Session)(nil)

// commandMatcher matches an application command and, when subcommand is not
// empty, its first subcommand.
func commandMatcher(name, subcommand string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionApplicationCommand {
			return false
		}
		data := i.ApplicationCommandData()
		if data.Name != name {
			return false
		}
		if subcommand == "" {
			return true
		}
		return len(data.Options) > 0 && data.Options[0].Name == subcommand
	}
}

// subcommandOptions returns the options of the invoked subcommand keyed by
// name.
func subcommandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return options
	}
	for _, option := range data.Options[0].Options {
		options[option.Name] = option
	}
	return options
}

func intOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) (int, error) {
	option, ok := options[name]
	if !ok {
		return 0, &OptionError{Option: name, Reason: "is required"}
	}
	if option.Type != discordgo.ApplicationCommandOptionInteger {
		return 0, &OptionError{Option: name, Reason: "must be an integer"}
	}
	return int(option.IntValue()), nil
}

func stringOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) (string, error) {
	option, ok := options[name]
	if !ok {
		return "", &OptionError{Option: name, Reason: "is required"}
	}
	if option.Type != discordgo.ApplicationCommandOptionString {
		return "", &OptionError{Option: name, Reason: "must be a string"}
	}
	return option.StringValue(), nil
}

func boolOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	option, ok := options[name]
	if !ok || option.Type != discordgo.ApplicationCommandOptionBoolean {
		return false
	}
	return option.BoolValue()
}
