package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/chime-off/internal/generator"
)

// DiscordSession is the part of a discordgo session used to answer
// interactions.
type DiscordSession interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, opts ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, wh *discordgo.WebhookEdit, opts ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ DiscordSession = (*discordgo.Session)(nil)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)

// InteractionHandler answers one interaction.
type InteractionHandler = func(DiscordSession, *discordgo.InteractionCreate)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID)
}

// interactionTimeout bounds the work done for one interaction, including
// downloading an uploaded sound.
const interactionTimeout = 2 * time.Minute

// NewInteractionHandler routes interactions through the chime flows. With a
// nil controller only /ping is answered.
func NewInteractionHandler(
	controller ChimeController,
	library SoundLibrary,
	idGenerator generator.Generator[string],
) InteractionHandler {
	fm := NewFlowManager(idGenerator)
	fm.RegisterFlow(PingFlow)
	if controller != nil {
		for _, flow := range NewChimeFlows(controller, library, nil) {
			fm.RegisterFlow(flow)
		}
	}

	return func(s DiscordSession, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
		defer cancel()

		if err := fm.Router(ctx, s, i); err != nil {
			slog.Warn("Failed to handle interaction", "interactionID", i.ID, "error", err)
			if err := s.InteractionRespond(i.Interaction, errorResponse(err)); err != nil {
				slog.Error("Failed to report interaction error", "error", err)
			}
		}
	}
}

// errorResponse tells the user what went wrong without leaking internals.
func errorResponse(err error) *discordgo.InteractionResponse {
	return ephemeral(userMessage(err))
}

func userMessage(err error) string {
	var userErr *UserError
	var optionErr *OptionError
	switch {
	case errors.As(err, &userErr):
		return userErr.Message
	case errors.As(err, &optionErr):
		return "Invalid " + optionErr.Error()
	case isCatalogError(err):
		return err.Error()
	case isStorageError(err):
		return "The chime settings are unavailable right now. The chime has been turned off."
	default:
		return "Something went wrong."
	}
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
}

// Adapt lets an InteractionHandler be registered on a discordgo session.
func Adapt(h InteractionHandler) InteractionCreateHandler {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		h(s, i)
	}
}

func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.InteractionCreate != nil {
		s.AddHandler(handlers.InteractionCreate)
	}

	return s, nil
}
