package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/chime-off/internal/chime"
	"github.com/glizzus/chime-off/internal/presenters"
	"github.com/glizzus/chime-off/internal/schedule"
	"github.com/glizzus/chime-off/internal/settings"
	"github.com/glizzus/chime-off/internal/sounds"
)

// ChimeController is the part of chime.Service the commands drive.
type ChimeController interface {
	Status(ctx context.Context) (presenters.Status, error)
	Toggle(ctx context.Context, on bool) (presenters.Status, error)
	Update(ctx context.Context, patch settings.Patch) (presenters.Status, error)
}

var _ ChimeController = (*chime.Service)(nil)

// SoundLibrary is the part of sounds.Catalog the commands use.
type SoundLibrary interface {
	List(ctx context.Context) ([]sounds.Sound, error)
	Find(ctx context.Context, id string) (sounds.Sound, error)
	Add(ctx context.Context, up sounds.Upload) (sounds.Sound, error)
	UploadsEnabled() bool
}

var _ SoundLibrary = (*sounds.Catalog)(nil)

type chimeHandlers struct {
	controller ChimeController
	library    SoundLibrary
	fetcher    *AttachmentFetcher
}

// NewChimeFlows builds the /chime flows. A nil client downloads attachments
// with http.DefaultClient.
func NewChimeFlows(controller ChimeController, library SoundLibrary, client HTTPClient) []*Flow {
	if client == nil {
		client = http.DefaultClient
	}
	h := &chimeHandlers{
		controller: controller,
		library:    library,
		fetcher:    &AttachmentFetcher{httpClient: client},
	}

	single := func(sub string, handler NodeHandler) *Flow {
		return &Flow{
			ID: CommandChime + " " + sub,
			Root: &Node{
				ID:      sub,
				Matcher: commandMatcher(CommandChime, sub),
				Handler: handler,
			},
		}
	}

	return []*Flow{
		single(SubcommandStatus, h.status),
		single(SubcommandOn, h.toggle(true)),
		single(SubcommandOff, h.toggle(false)),
		single(SubcommandEvery, h.every),
		single(SubcommandAt, h.at),
		single(SubcommandVolume, h.volume),
		single(SubcommandUpload, h.upload),
		{
			ID: CommandChime + " " + SubcommandSound,
			Root: &Node{
				ID:      SubcommandSound,
				Matcher: commandMatcher(CommandChime, SubcommandSound),
				Handler: h.soundMenu,
				Next: []*Node{
					{
						ID:      "sound_selected",
						Matcher: componentMatcher(presenters.ComponentIDSoundSelect),
						Handler: h.soundSelected,
					},
				},
			},
		},
	}
}

func componentMatcher(componentID string) func(*discordgo.InteractionCreate) bool {
	return func(i *discordgo.InteractionCreate) bool {
		if i.Type != discordgo.InteractionMessageComponent {
			return false
		}
		return strings.HasPrefix(i.MessageComponentData().CustomID, componentID+":")
	}
}

func respondStatus(s DiscordSession, i *discordgo.InteractionCreate, status presenters.Status) error {
	return s.InteractionRespond(i.Interaction, presenters.BuildStatusResponse(status))
}

func (h *chimeHandlers) status(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	status, err := h.controller.Status(ctx)
	if err != nil {
		return err
	}
	return respondStatus(s, i, status)
}

func (h *chimeHandlers) toggle(on bool) NodeHandler {
	return func(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
		status, err := h.controller.Toggle(ctx, on)
		if err != nil {
			return err
		}
		return respondStatus(s, i, status)
	}
}

func (h *chimeHandlers) update(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, patch settings.Patch) error {
	if err := patch.Validate(); err != nil {
		return &UserError{Message: err.Error()}
	}
	status, err := h.controller.Update(ctx, patch)
	if err != nil {
		return err
	}
	return respondStatus(s, i, status)
}

func (h *chimeHandlers) every(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	options := subcommandOptions(i)
	minutes, err := intOption(options, "minutes")
	if err != nil {
		return err
	}
	if minutes < 1 {
		return &UserError{Message: "The interval must be at least 1 minute."}
	}

	patch := settings.Patch{Mode: settings.Ptr(schedule.ModePeriodic), PeriodMinutes: &minutes}
	if boolOption(options, "custom") {
		patch = settings.Patch{Mode: settings.Ptr(schedule.ModeCustom), CustomMinutes: &minutes}
	}
	return h.update(ctx, s, i, patch)
}

func (h *chimeHandlers) at(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	options := subcommandOptions(i)
	raw, err := stringOption(options, "time")
	if err != nil {
		return err
	}
	tod, err := schedule.ParseTimeOfDay(raw)
	if err != nil {
		return &UserError{Message: fmt.Sprintf("%q is not a time of day, use HH:MM.", raw)}
	}

	return h.update(ctx, s, i, settings.Patch{
		Mode:        settings.Ptr(schedule.ModeSpecific),
		TimeOfDay:   settings.Ptr(tod.String()),
		RepeatDaily: settings.Ptr(boolOption(options, "daily")),
	})
}

func (h *chimeHandlers) volume(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	percent, err := intOption(subcommandOptions(i), "percent")
	if err != nil {
		return err
	}
	return h.update(ctx, s, i, settings.Patch{Volume: &percent})
}

func (h *chimeHandlers) soundMenu(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, fc *FlowContext) error {
	list, err := h.library.List(ctx)
	if err != nil {
		return err
	}
	status, err := h.controller.Status(ctx)
	if err != nil {
		return err
	}
	return s.InteractionRespond(i.Interaction, presenters.BuildSoundSelectResponse(list, status.SoundID, fc.InstanceID))
}

func (h *chimeHandlers) soundSelected(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	values := i.MessageComponentData().Values
	if len(values) != 1 {
		return &UserError{Message: "Select exactly one sound."}
	}

	sound, err := h.library.Find(ctx, values[0])
	if err != nil {
		return err
	}
	if _, err := h.controller.Update(ctx, settings.Patch{SelectedSound: &sound.ID}); err != nil {
		return err
	}
	return s.InteractionRespond(i.Interaction, presenters.BuildSoundSelectedResponse(sound.Name))
}

func (h *chimeHandlers) upload(ctx context.Context, s DiscordSession, i *discordgo.InteractionCreate, _ *FlowContext) error {
	if !h.library.UploadsEnabled() {
		return sounds.ErrUploadsDisabled
	}

	attachment, err := AttachmentFromCommand(i.ApplicationCommandData().Resolved)
	if err != nil {
		return err
	}

	// Downloading can outlast the three seconds Discord waits for an answer.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return fmt.Errorf("failed to defer upload response: %w", err)
	}

	content := h.storeUpload(ctx, attachment)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		return fmt.Errorf("failed to edit upload response: %w", err)
	}
	return nil
}

func (h *chimeHandlers) storeUpload(ctx context.Context, attachment *discordgo.MessageAttachment) string {
	body, err := h.fetcher.Fetch(ctx, attachment.URL)
	if err != nil {
		return "Failed to download the attachment."
	}
	defer body.Close()

	sound, err := h.library.Add(ctx, sounds.Upload{
		Filename:    attachment.Filename,
		ContentType: attachment.ContentType,
		Size:        int64(attachment.Size),
		Data:        body,
	})
	if err != nil {
		return userMessage(err)
	}
	if _, err := h.controller.Update(ctx, settings.Patch{SelectedSound: &sound.ID}); err != nil {
		return fmt.Sprintf("Uploaded **%s** but could not select it. %s", sound.Name, userMessage(err))
	}
	return fmt.Sprintf("Uploaded **%s** and selected it.", sound.Name)
}

func isCatalogError(err error) bool {
	var missing *sounds.MissingError
	var upload *sounds.UploadError
	return errors.As(err, &missing) ||
		errors.As(err, &upload) ||
		errors.Is(err, sounds.ErrUploadsDisabled) ||
		errors.Is(err, sounds.ErrBuiltin) ||
		errors.Is(err, sounds.ErrUnreadableList)
}

func isStorageError(err error) bool {
	return chime.IsStorageError(err)
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return presenters.MessageResponse(content, true)
}
