package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/chime-off/internal/app"
	"github.com/glizzus/chime-off/internal/chime"
	"github.com/glizzus/chime-off/internal/config"
	"github.com/glizzus/chime-off/internal/handler"
	"github.com/glizzus/chime-off/internal/player"
	"github.com/glizzus/chime-off/internal/presenters"
	"github.com/glizzus/chime-off/internal/sounds"
	"github.com/glizzus/chime-off/internal/timer"
)

type discordBot struct {
	session *discordgo.Session
	cfg     *config.DiscordConfig
}

func newDiscordBot() (*discordBot, error) {
	cfg, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load discord config: %w", err)
	}
	if cfg.GuildID == "" {
		return nil, errors.New("DISCORD_GUILD_ID is required to play into a voice channel")
	}
	session, err := handler.NewSession(cfg.Token, handler.Handlers{Ready: handler.ReadyLog})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &discordBot{session: session, cfg: cfg}, nil
}

func (b *discordBot) open(svc *chime.Service, catalog *sounds.Catalog) error {
	b.session.AddHandler(handler.Adapt(handler.NewInteractionHandler(svc, catalog, nil)))
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	guildID := b.cfg.GuildID
	if b.cfg.RunBotGlobally {
		guildID = ""
	}
	if err := handler.EstablishCommands(b.session, b.session.State.User.ID, guildID); err != nil {
		return err
	}
	return nil
}

func (b *discordBot) close() {
	if err := b.session.Close(); err != nil {
		slog.Warn("failed to close session", "error", err)
	}
}

func newDispatcher(cfg *config.ChimeConfig, catalog *sounds.Catalog, bot *discordBot) player.Dispatcher {
	switch cfg.Dispatcher {
	case config.DispatcherFFPlay:
		return player.NewFFPlayDispatcher(catalog, "")
	case config.DispatcherDiscord:
		return player.NewDiscordDispatcher(bot.session, catalog, bot.cfg.GuildID, bot.cfg.VoiceChannelID)
	default:
		return player.NewLogDispatcher(catalog)
	}
}

func syncForever(ctx context.Context, svc *chime.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.Sync(ctx); err != nil {
				slog.Error("failed to sync chime", "error", err)
			}
		}
	}
}

func runChimeForever() error {
	if err := app.LoadEnv(); err != nil {
		return err
	}

	cfg, err := config.NewChimeConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := app.SetupLogging(cfg); err != nil {
		return err
	}
	location, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backends.Close(); err != nil {
			slog.Warn("failed to close backends", "error", err)
		}
	}()

	catalog, err := backends.Catalog(cfg)
	if err != nil {
		return fmt.Errorf("failed to load sound catalog: %w", err)
	}

	presenter := presenters.Multi{&presenters.LogPresenter{}}

	var bot *discordBot
	if cfg.Dispatcher == config.DispatcherDiscord {
		bot, err = newDiscordBot()
		if err != nil {
			return err
		}
		presenter = append(presenter, &presenters.PresencePresenter{Session: bot.session})
	}

	opts := chime.Options{
		KV:           backends.KV,
		Dispatcher:   newDispatcher(cfg, catalog, bot),
		Presenter:    presenter,
		Location:     location,
		TimerOptions: []timer.Option{timer.WithResolution(cfg.TimerResolution)},
	}
	if stream := backends.FireStream(cfg); stream != nil {
		opts.Publisher = stream
	}

	svc, err := chime.NewService(opts)
	if err != nil {
		return fmt.Errorf("failed to create chime service: %w", err)
	}
	defer svc.Close()

	if bot != nil {
		if err := bot.open(svc, catalog); err != nil {
			return err
		}
		defer bot.close()
	}

	// A store that is down at startup leaves the chime off until Sync
	// reaches it.
	if _, err := svc.Restore(ctx); err != nil {
		slog.Error("failed to restore chime", "error", err)
	}

	go syncForever(ctx, svc, cfg.SyncInterval)

	<-ctx.Done()
	slog.Info("Shutting down")
	return nil
}

func main() {
	if err := runChimeForever(); err != nil {
		log.Fatalf("failed to run chime: %v", err)
	}
}
